package rules

import "github.com/playrow/partyroom-backend/internal/entity"

// beats maps a choice to the choice it defeats.
var beats = map[string]string{
	entity.ChoiceRock:     entity.ChoiceScissors,
	entity.ChoiceScissors: entity.ChoicePaper,
	entity.ChoicePaper:    entity.ChoiceRock,
}

// IsValidChoice reports whether the string is one of rock, paper, scissors.
func IsValidChoice(choice string) bool {
	_, ok := beats[choice]
	return ok
}

// RPSRoundWinner returns the winning seat (1 or 2) for a pair of choices,
// or entity.TieSlot for equal choices. A missing choice never wins: until
// both seats have chosen the round is undecided and 0 is returned.
func RPSRoundWinner(first, second string) int {
	if first == "" || second == "" {
		return 0
	}

	if first == second {
		return entity.TieSlot
	}

	if beats[first] == second {
		return 1
	}

	return 2
}
