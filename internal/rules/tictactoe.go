package rules

import "github.com/playrow/partyroom-backend/internal/entity"

// WinCombos are the 8 tic-tac-toe lines: 3 rows, 3 columns, 2 diagonals.
var WinCombos = [][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// CheckBoard returns the winning seat (1 for X, 2 for O), entity.TieSlot
// for a full board with no line, or 0 while the board is still open.
func CheckBoard(board [9]string) int {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != entity.EmptyCell && a == b && b == c {
			if a == entity.MarkX {
				return 1
			}
			return 2
		}
	}

	for _, cell := range board {
		if cell == entity.EmptyCell {
			return 0
		}
	}

	return entity.TieSlot
}
