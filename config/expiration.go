package config

import "time"

// ExpirationMode selects how the age limit of a tier is derived.
type ExpirationMode string

const (
	// ExpireNever keeps entries until they are evicted by count/cost.
	ExpireNever ExpirationMode = "never"

	// ExpireSeconds evicts entries which were not accessed for the given number of seconds.
	ExpireSeconds ExpirationMode = "seconds"

	// ExpireInstant derives the age limit from the distance between now and a fixed instant.
	ExpireInstant ExpirationMode = "instant"
)

// neverAge mirrors "practically never": 68 years.
const neverAge = 68 * 365 * 24 * time.Hour

// Expiration is the expiration policy of a tier. The zero value means ExpireNever.
type Expiration struct {
	Mode ExpirationMode `yaml:"mode"`

	// Seconds is used when Mode is ExpireSeconds. Zero or negative evicts everything on the next trim.
	Seconds float64 `yaml:"seconds"`

	// Instant is used when Mode is ExpireInstant.
	Instant time.Time `yaml:"instant"`
}

func Never() Expiration               { return Expiration{Mode: ExpireNever} }
func Seconds(n float64) Expiration    { return Expiration{Mode: ExpireSeconds, Seconds: n} }
func At(instant time.Time) Expiration { return Expiration{Mode: ExpireInstant, Instant: instant} }
func (e Expiration) IsNever() bool    { return e.Mode == "" || e.Mode == ExpireNever }

// AgeLimit returns the maximum idle age of an entry at the moment now.
// For ExpireInstant the limit shrinks as now approaches the instant and becomes
// non-positive once it has passed, which empties the tier on the next age trim.
func (e Expiration) AgeLimit(now time.Time) time.Duration {
	switch e.Mode {
	case ExpireSeconds:
		return time.Duration(e.Seconds * float64(time.Second))
	case ExpireInstant:
		return e.Instant.Sub(now)
	default:
		return neverAge
	}
}

// Deadline returns the instant after which an entry written at now is considered expired.
func (e Expiration) Deadline(now time.Time) time.Time {
	switch e.Mode {
	case ExpireSeconds, ExpireInstant:
		return now.Add(e.AgeLimit(now))
	default:
		return now.Add(neverAge)
	}
}
