package scoring

import "time"

const day = 24 * time.Hour

// AgeDays returns how many days before now the document was created.
// Future timestamps (clock skew) yield 0.
func AgeDays(created, now time.Time) float64 {
	age := now.Sub(created)
	if age < 0 {
		return 0
	}
	return float64(age) / float64(day)
}

// Decay returns the recency multiplier 1 / (1 + age/halfLife).
// Negative ages are clamped to 0. halfLife must be positive; callers validate it.
func Decay(ageDays, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	return 1 / (1 + ageDays/halfLifeDays)
}

// Score fuses similarity and decay multiplicatively.
func Score(similarity, decay float64) float64 {
	return similarity * decay
}
