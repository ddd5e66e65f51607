package spotify

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ewilliams-labs/duet/internal/logging"
	"github.com/ewilliams-labs/duet/internal/metrics"
)

const breakerName = "spotify-api"

// BreakerSettings tunes the circuit breaker guarding the API.
type BreakerSettings struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func newBreaker(s BreakerSettings) *gobreaker.CircuitBreaker[*http.Response] {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Component("spotify").Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		// A caller giving up says nothing about Spotify's health.
		IsExcluded: isContextError,
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
