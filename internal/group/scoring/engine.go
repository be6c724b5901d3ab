// Package scoring implements the time-decay score formula for a single
// answer. It is pure computation; persistence and idempotency live in the
// group service.
package scoring

import (
	"math"
	"time"
)

// Config holds the scoring constants.
type Config struct {
	Base     int // awarded for any correct answer
	MaxBonus int // extra points for an instant correct answer, decaying to 0
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		Base:     500,
		MaxBonus: 500,
	}
}

// Engine computes scores with configurable constants.
type Engine struct {
	config Config
}

// NewEngine creates a scoring engine with the provided config.
func NewEngine(config Config) *Engine {
	if config.Base == 0 && config.MaxBonus == 0 {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Score computes points for one answer.
// Formula: base + max(0, round(maxBonus * (1 - elapsed/budget))) when correct,
// 0 otherwise. Elapsed is only clamped below at zero: a late-but-accepted
// correct answer still earns the base while the bonus floors at 0 on its own.
func (e *Engine) Score(correct bool, elapsed, budget time.Duration) int {
	if !correct {
		return 0
	}
	if elapsed < 0 {
		elapsed = 0
	}

	bonus := 0
	if budget > 0 {
		ratio := 1 - float64(elapsed.Milliseconds())/float64(budget.Milliseconds())
		bonus = int(math.Round(float64(e.config.MaxBonus) * ratio))
		if bonus < 0 {
			bonus = 0
		}
	}
	return e.config.Base + bonus
}
