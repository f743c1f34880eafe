// Package scoring computes the 0-100 purchase intent score of a chat session.
package scoring

import (
	"math"

	"github.com/Rrens/mattressai-engine/internal/domain"
)

// MaxScore caps every computed score
const MaxScore = 100

// Weights shared by both scoring paths
const (
	weightCompletion      = 30
	weightRecsViewed      = 20
	weightRecsClicked     = 20
	weightAddToCart       = 20
	weightCheckoutStarted = 10
	weightDwell           = 10

	dwellThresholdMinutes = 3.0
)

// FromSignals scores explicit signals supplied by the caller
func FromSignals(s domain.IntentSignals) int {
	score := 0
	if s.TotalQuestions > 0 {
		completed := s.CompletedAnswers
		if completed > s.TotalQuestions {
			completed = s.TotalQuestions
		}
		if completed > 0 {
			score += int(math.Floor(weightCompletion * float64(completed) / float64(s.TotalQuestions)))
		}
	}
	if s.RecsViewed {
		score += weightRecsViewed
	}
	if s.RecsClicked > 0 {
		score += weightRecsClicked
	}
	if s.AddedToCart {
		score += weightAddToCart
	}
	if s.CheckoutStarted {
		score += weightCheckoutStarted
	}
	if s.DwellMinutes > dwellThresholdMinutes {
		score += weightDwell
	}
	return clamp(score)
}

// FromEvents replays a session's events. Events may be in any order.
func FromEvents(events []domain.Event) int {
	if len(events) == 0 {
		return 0
	}

	var dataPoints int
	var recsShown, recsClicked, addedToCart, checkout bool
	first, last := events[0].Timestamp, events[0].Timestamp

	for _, e := range events {
		switch e.Type {
		case domain.EventDataPointCaptured:
			dataPoints++
		case domain.EventRecommendationShown:
			recsShown = true
		case domain.EventRecommendationClicked:
			recsClicked = true
		case domain.EventAddToCart:
			addedToCart = true
		case domain.EventCheckoutStarted:
			checkout = true
		}
		if e.Timestamp.Before(first) {
			first = e.Timestamp
		}
		if e.Timestamp.After(last) {
			last = e.Timestamp
		}
	}

	score := 0
	switch {
	case dataPoints >= 3:
		score += weightCompletion
	case dataPoints == 2:
		score += 20
	case dataPoints == 1:
		score += 10
	}
	if recsShown {
		score += weightRecsViewed
	}
	if recsClicked {
		score += weightRecsClicked
	}
	if addedToCart {
		score += weightAddToCart
	}
	if checkout {
		score += weightCheckoutStarted
	}
	if last.Sub(first).Minutes() > dwellThresholdMinutes {
		score += weightDwell
	}
	return clamp(score)
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
