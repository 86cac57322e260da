package rules

import "github.com/playrow/partyroom-backend/internal/entity"

const DieSides = 6

// Transitions is the static ladder/snake mapping keyed by landed cell.
// Ladders climb, snakes slide. A destination cell is never re-resolved,
// so a roll applies at most one transition.
var Transitions = map[int]int{
	// ladders
	4:  14,
	9:  31,
	20: 38,
	28: 84,
	40: 59,
	51: 67,
	63: 81,
	71: 91,
	// snakes
	17: 7,
	54: 34,
	62: 19,
	64: 60,
	87: 24,
	93: 73,
	95: 75,
	99: 78,
}

// ResolveMove applies a die roll to a position and returns the resulting
// position and whether it wins. Overshooting the final cell clamps to it
// and wins immediately. After landing, the ladder/snake mapping of the
// landed cell is applied exactly once and the win is re-evaluated at the
// destination, never chaining a second mapping from there.
func ResolveMove(position, die int) (int, bool) {
	landed := position + die
	if landed >= entity.FinalCell {
		return entity.FinalCell, true
	}

	if destination, ok := Transitions[landed]; ok {
		landed = destination
	}

	return landed, landed == entity.FinalCell
}
