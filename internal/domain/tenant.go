package domain

import "context"

// Unlimited disables a quota or throttle
const Unlimited = -1

// PlanQuota holds the plan features this engine cares about
type PlanQuota struct {
	Name         string `json:"name"`
	AlertsPerDay int    `json:"alertsPerDay"`
	SMSEnabled   bool   `json:"smsEnabled"`
}

// Plans mirrors the billing plans of the app
var Plans = map[string]PlanQuota{
	"starter":    {Name: "starter", AlertsPerDay: 2, SMSEnabled: false},
	"pro":        {Name: "pro", AlertsPerDay: 50, SMSEnabled: true},
	"enterprise": {Name: "enterprise", AlertsPerDay: Unlimited, SMSEnabled: true},
}

// QuotaProvider looks up a tenant's billing-plan quota
type QuotaProvider interface {
	// PlanQuota returns nil, nil when the tenant has no known plan
	PlanQuota(ctx context.Context, tenantID string) (*PlanQuota, error)
}
