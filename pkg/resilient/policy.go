package resilient

import "time"

// Policy bounds a resilient call.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`

	// BaseDelay is multiplied by the attempt number to get the wait before a retry.
	BaseDelay time.Duration `yaml:"base_delay" env:"BASE_DELAY"`

	// MaxDelay caps the wait between attempts.
	MaxDelay time.Duration `yaml:"max_delay" env:"MAX_DELAY"`

	// Timeout bounds each attempt. Zero disables the per-attempt timer.
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DefaultPolicy returns 3 retries, 1s base delay, 10s max delay, 10s timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
		Timeout:    10 * time.Second,
	}
}

// Delay returns the wait after the given failed attempt (1-based):
// min(BaseDelay*attempt, MaxDelay).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return max(d, 0)
}

func (p Policy) attempts() int {
	return max(p.MaxRetries, 0) + 1
}
