package profile

// DefaultXPPerLevel is the XP span of one level when the ledger computes levels in-process.
const DefaultXPPerLevel = 100

// LevelForXP returns the level a profile holds after reaching xp. Levels never go
// down, so a level already earned through CompleteLevel is kept even when xp lags behind it.
func LevelForXP(current, xp, perLevel int) int {
	if perLevel <= 0 {
		perLevel = DefaultXPPerLevel
	}

	level := 1 + xp/perLevel
	if level < current {
		return current
	}
	return level
}
