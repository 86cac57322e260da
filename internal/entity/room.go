package entity

import (
	"fmt"
	"time"

	"github.com/playrow/partyroom-backend/internal/apperror"
)

const (
	GameRPS       = "rps"
	GameTicTacToe = "tictactoe"
	GameSnakes    = "snakes"
)

const (
	StatusWaiting       = "waiting"
	StatusPlaying       = "playing"
	StatusRoundComplete = "round_complete"
	StatusGameComplete  = "game_complete"
	StatusFinished      = "finished"
)

const (
	ChoiceRock     = "rock"
	ChoicePaper    = "paper"
	ChoiceScissors = "scissors"

	MarkX     = "X"
	MarkO     = "O"
	EmptyCell = ""
)

// TieSlot marks a drawn round or game in winner fields.
const TieSlot = -1

const (
	// FinalCell is the last board cell in snakes-and-ladders; reaching it wins.
	FinalCell = 100

	// RPSTargetScore is the number of round wins that ends a rock-paper-scissors match.
	RPSTargetScore = 3
)

// Slot is one claimable seat in a room. A slot is occupied iff both
// Name and SessionID are set.
type Slot struct {
	Name           string    `json:"name,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	Score          int       `json:"score"`
	Position       int       `json:"position"`
	Choice         string    `json:"choice,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
}

func (that *Slot) IsOccupied() bool {
	return that.Name != "" && that.SessionID != ""
}

// Clear releases the seat. Score and position stay on the row so a
// rejoining player picks the game up where the seat left it.
func (that *Slot) Clear() {
	that.Name = ""
	that.SessionID = ""
	that.Choice = ""
	that.LastActivityAt = time.Time{}
}

// Room is the single denormalized row one game instance lives in.
// Every player action is a narrow, guarded mutation of this row.
type Room struct {
	ID          string    `json:"id"`
	Game        string    `json:"game"`
	Status      string    `json:"status"`
	Slots       []*Slot   `json:"slots"`
	Turn        int       `json:"turn"` // 1-based slot number, 0 when nobody is to act
	Board       [9]string `json:"board,omitempty"`
	Round       int       `json:"round"`
	RoundWinner int       `json:"round_winner,omitempty"` // slot number or TieSlot, 0 while undecided
	Winner      int       `json:"winner,omitempty"`       // slot number or TieSlot, 0 while undecided
	Log         []string  `json:"log,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SlotCount returns how many seats a game kind has, or 0 for an unknown kind.
func SlotCount(game string) int {
	switch game {
	case GameRPS, GameTicTacToe:
		return 2
	case GameSnakes:
		return 4
	default:
		return 0
	}
}

// TerminalStatus is the end-of-game status for a game kind.
func TerminalStatus(game string) string {
	if game == GameSnakes {
		return StatusFinished
	}
	return StatusGameComplete
}

// MarkForSlot maps a tic-tac-toe seat to its board mark. The host plays X.
func MarkForSlot(slot int) string {
	if slot == 1 {
		return MarkX
	}
	return MarkO
}

// SlotLabel renders a winner field for humans and the match archive.
func SlotLabel(slot int) string {
	switch {
	case slot == TieSlot:
		return "tie"
	case slot > 0:
		return fmt.Sprintf("slot%d", slot)
	default:
		return ""
	}
}

// NewRoom creates a waiting room with the host seated in slot 1.
func NewRoom(id, game, hostName, sessionID string, now time.Time) *Room {
	count := SlotCount(game)

	slots := make([]*Slot, count)
	for i := range slots {
		slots[i] = &Slot{}
	}
	slots[0].Name = hostName
	slots[0].SessionID = sessionID
	slots[0].LastActivityAt = now

	return &Room{
		ID:        id,
		Game:      game,
		Status:    StatusWaiting,
		Slots:     slots,
		Round:     1,
		CreatedAt: now,
	}
}

// Slot returns the 1-based seat, or nil when out of range.
func (that *Room) Slot(number int) *Slot {
	if number < 1 || number > len(that.Slots) {
		return nil
	}
	return that.Slots[number-1]
}

// SlotBySession returns the seat number owned by a session, or 0.
func (that *Room) SlotBySession(sessionID string) int {
	if sessionID == "" {
		return 0
	}
	for i, slot := range that.Slots {
		if slot.SessionID == sessionID {
			return i + 1
		}
	}
	return 0
}

func (that *Room) OccupiedCount() int {
	count := 0
	for _, slot := range that.Slots {
		if slot.IsOccupied() {
			count++
		}
	}
	return count
}

// NextOccupiedFrom rotates the turn pointer to the next occupied seat after
// the given one, wrapping with modulo arithmetic. With a single occupied seat
// it lands back on the same seat, so rotation is a deliberate no-op there.
// Returns 0 when no seat is occupied.
func (that *Room) NextOccupiedFrom(slot int) int {
	count := len(that.Slots)
	for i := 1; i <= count; i++ {
		candidate := (slot-1+i)%count + 1
		if that.Slots[candidate-1].IsOccupied() {
			return candidate
		}
	}
	return 0
}

func (that *Room) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *Room) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *Room) IsRoundComplete() bool {
	return that.Status == StatusRoundComplete
}

func (that *Room) IsTerminal() bool {
	return that.Status == StatusGameComplete || that.Status == StatusFinished
}

// Validate is the schema check applied at the store boundary. A row that
// fails it is quarantined as malformed instead of reaching the rules.
func (that *Room) Validate() error {
	if that.ID == "" {
		return fmt.Errorf("%w: empty id", apperror.ErrMalformedRoom)
	}

	count := SlotCount(that.Game)
	if count == 0 {
		return fmt.Errorf("%w: unknown game %q", apperror.ErrMalformedRoom, that.Game)
	}

	if len(that.Slots) != count {
		return fmt.Errorf("%w: expected %d slots, got %d", apperror.ErrMalformedRoom, count, len(that.Slots))
	}

	if err := that.validateStatus(); err != nil {
		return err
	}

	owners := make(map[string]int, count)
	for i, slot := range that.Slots {
		if slot == nil {
			return fmt.Errorf("%w: nil slot %d", apperror.ErrMalformedRoom, i+1)
		}
		if slot.Position < 0 || slot.Position > FinalCell {
			return fmt.Errorf("%w: slot %d position %d out of range", apperror.ErrMalformedRoom, i+1, slot.Position)
		}
		// a session owns at most one seat per room
		if slot.SessionID != "" {
			if prev, taken := owners[slot.SessionID]; taken {
				return fmt.Errorf("%w: session owns slots %d and %d", apperror.ErrMalformedRoom, prev, i+1)
			}
			owners[slot.SessionID] = i + 1
		}
	}

	for i, cell := range that.Board {
		if cell != EmptyCell && cell != MarkX && cell != MarkO {
			return fmt.Errorf("%w: board cell %d holds %q", apperror.ErrMalformedRoom, i, cell)
		}
	}

	if that.Turn < 0 || that.Turn > count {
		return fmt.Errorf("%w: turn %d out of range", apperror.ErrMalformedRoom, that.Turn)
	}

	// The turn pointer must reference an occupied seat while the game runs.
	if (that.IsPlaying() || that.IsRoundComplete()) && that.Turn > 0 && !that.Slots[that.Turn-1].IsOccupied() {
		return fmt.Errorf("%w: turn points at vacant slot %d", apperror.ErrMalformedRoom, that.Turn)
	}

	return nil
}

func (that *Room) validateStatus() error {
	allowed := map[string]bool{StatusWaiting: true, StatusPlaying: true}
	if that.Game == GameSnakes {
		allowed[StatusFinished] = true
	} else {
		allowed[StatusRoundComplete] = true
		allowed[StatusGameComplete] = true
	}

	if !allowed[that.Status] {
		return fmt.Errorf("%w: status %q not valid for %s", apperror.ErrMalformedRoom, that.Status, that.Game)
	}

	return nil
}
