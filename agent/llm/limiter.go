package llm

import "golang.org/x/time/rate"

// RateConfig bounds outbound model calls for the whole process.
type RateConfig struct {
	RequestsPerSec float64 `split_words:"true" default:"2"`
	MaxBucketSize  int     `split_words:"true" default:"5"`
}

// NewLimiter returns a shared limiter. A non-positive rate disables
// limiting.
func NewLimiter(cfg RateConfig) *rate.Limiter {
	if cfg.RequestsPerSec <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := cfg.MaxBucketSize
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), burst)
}
