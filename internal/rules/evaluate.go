package rules

import "github.com/playrow/partyroom-backend/internal/entity"

// Outcome is the completion policy's verdict for a room row.
// RoundWinner and GameWinner are seat numbers, entity.TieSlot for a draw,
// or 0 while undecided.
type Outcome struct {
	Status      string
	RoundWinner int
	GameWinner  int
}

// Evaluate decides whether the current round or game is over. It is pure:
// it never mutates the room and depends on nothing but the row, so every
// branch can be tested without a store. A decisive round awards exactly
// one point to exactly one seat; a tie awards none.
func Evaluate(room *entity.Room) Outcome {
	outcome := Outcome{Status: room.Status}

	if !room.IsPlaying() {
		return outcome
	}

	switch room.Game {
	case entity.GameRPS:
		return evaluateRPS(room)
	case entity.GameTicTacToe:
		return evaluateTicTacToe(room)
	case entity.GameSnakes:
		return evaluateSnakes(room)
	}

	return outcome
}

func evaluateRPS(room *entity.Room) Outcome {
	winner := RPSRoundWinner(room.Slots[0].Choice, room.Slots[1].Choice)
	if winner == 0 {
		return Outcome{Status: entity.StatusPlaying}
	}

	outcome := Outcome{Status: entity.StatusRoundComplete, RoundWinner: winner}

	// The winning seat's score has not been incremented yet, so the
	// match is over once it sits one point short of the target.
	if winner != entity.TieSlot && room.Slots[winner-1].Score+1 >= entity.RPSTargetScore {
		outcome.Status = entity.StatusGameComplete
		outcome.GameWinner = winner
	}

	return outcome
}

func evaluateTicTacToe(room *entity.Room) Outcome {
	winner := CheckBoard(room.Board)
	if winner == 0 {
		return Outcome{Status: entity.StatusPlaying}
	}

	// A single board is the whole game: any line or a full board ends it.
	return Outcome{
		Status:      entity.StatusGameComplete,
		RoundWinner: winner,
		GameWinner:  winner,
	}
}

func evaluateSnakes(room *entity.Room) Outcome {
	for i, slot := range room.Slots {
		if slot.Position == entity.FinalCell {
			return Outcome{
				Status:      entity.StatusFinished,
				RoundWinner: i + 1,
				GameWinner:  i + 1,
			}
		}
	}

	return Outcome{Status: entity.StatusPlaying}
}
