package services

// championBonus is awarded once, to the tournament winner, on finalization.
const championBonus = 100

// calculateMatchPoints returns the bonus credited to a match winner. Rounds
// closer to the final pay more; anything deeper than the quarter-final layer
// gets the capped default.
func calculateMatchPoints(round, totalRounds int) int {
	switch totalRounds - round {
	case 0: // final
		return 50
	case 1: // semi-final
		return 30
	case 2: // quarter-final
		return 20
	default:
		return 10
	}
}
