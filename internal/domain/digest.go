package domain

import "time"

// Digest is the weekly activity summary sent to a tenant
type Digest struct {
	TenantID          string    `json:"tenant_id"`
	WeekStart         time.Time `json:"week_start"`
	WeekEnd           time.Time `json:"week_end"`
	TotalSessions     int       `json:"total_sessions"`
	EndedSessions     int       `json:"ended_sessions"`
	AvgIntentScore    float64   `json:"avg_intent_score"`
	Leads             int       `json:"leads"`
	AlertsSent        int       `json:"alerts_sent"`
	AlertsFailed      int       `json:"alerts_failed"`
	AlertsQuietHours  int       `json:"alerts_quiet_hours"`
	AlertsDailyLimits int       `json:"alerts_daily_limit"`
}

// DigestStats summarizes one digest run
type DigestStats struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}
