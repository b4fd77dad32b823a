package instagram

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/m3rciful/instarepost/core/logger"
)

// guard throttles outgoing calls and stops calling Instagram for a while
// after a run of transport or server failures.
type guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuard(perMinute, burst int, openFor time.Duration) *guard {
	if perMinute <= 0 {
		perMinute = 30
	}
	if burst <= 0 {
		burst = 3
	}
	if openFor <= 0 {
		openFor = time.Minute
	}
	return &guard{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "instagram",
			MaxRequests: 1,
			Interval:    2 * time.Minute,
			Timeout:     openFor,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// Answers about the post itself are not outages.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					IsType(err, ErrorTypeNotFound) ||
					IsType(err, ErrorTypeAuth) ||
					IsType(err, ErrorTypeChallenge) ||
					IsType(err, ErrorTypeParsing) ||
					IsType(err, ErrorTypeInvalidURL)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.IG.Warn("circuit breaker state change",
					slog.String("event", "ig.breaker"),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

func (g *guard) do(ctx context.Context, fn func() error) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return classify(err)
	}
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, fn()
	})
	return classify(err)
}
