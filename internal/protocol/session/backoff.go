package session

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the retry delay for attempt N (1-based).
// Multiplier 1.0 without jitter yields a constant delay.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || cfg.Multiplier <= 1.0 {
		return jitter(cfg, cfg.InitialDelay, rng)
	}
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return jitter(cfg, time.Duration(delay), rng)
}

func jitter(cfg BackoffConfig, delay time.Duration, rng *rand.Rand) time.Duration {
	if !cfg.Jitter || delay <= 0 {
		return delay
	}
	f := 0.5
	if rng != nil {
		f = 0.5 + rng.Float64()
	}
	return time.Duration(float64(delay) * f)
}
