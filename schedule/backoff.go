package schedule

import "time"

// MaxBackoffCap bounds the exponent so the shift below cannot overflow
const MaxBackoffCap = 16

// BackoffDelay returns base * 2^min(level, maxLevel)
func BackoffDelay(base time.Duration, level, maxLevel int) time.Duration {
	if base <= 0 {
		return 0
	}
	if level < 0 {
		level = 0
	}
	if maxLevel < 0 {
		maxLevel = 0
	}
	if maxLevel > MaxBackoffCap {
		maxLevel = MaxBackoffCap
	}
	if level > maxLevel {
		level = maxLevel
	}
	return base << uint(level)
}
