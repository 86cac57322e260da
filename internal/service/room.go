package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
	"github.com/playrow/partyroom-backend/internal/pkg"
	"github.com/playrow/partyroom-backend/internal/rules"
)

var (
	ErrNameRequired = errors.New("player name is required")
	ErrUnknownGame  = errors.New("unknown game kind")
	ErrWrongAction  = errors.New("action does not apply to this game")
)

// createAttempts bounds room-code collision retries.
const createAttempts = 3

type roomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	Update(ctx context.Context, id string, mutate func(room *entity.Room) error) (*entity.Room, error)
	Subscribe(ctx context.Context, id string) (<-chan *entity.Room, func())
}

type matchArchive interface {
	Record(ctx context.Context, match *entity.Match) error
}

// RoomService owns the room state machine: every transition is a guarded
// mutation applied through the repository's conditional update, so
// duplicate or out-of-order client events cannot corrupt the row.
type RoomService struct {
	logger  *slog.Logger
	rooms   roomRepository
	archive matchArchive

	now  func() time.Time
	roll func() int
}

func NewRoomService(logger *slog.Logger, rooms roomRepository, archive matchArchive) *RoomService {
	return &RoomService{
		logger:  logger,
		rooms:   rooms,
		archive: archive,

		now: time.Now,
		roll: func() int {
			return rand.Intn(rules.DieSides) + 1 //nolint: gosec // dice, not secrets
		},
	}
}

// CreateRoom opens a waiting room with the host in slot 1.
func (that *RoomService) CreateRoom(ctx context.Context, game, hostName, sessionID string) (*entity.Room, error) {
	if entity.SlotCount(game) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGame, game)
	}

	if hostName == "" || sessionID == "" {
		return nil, ErrNameRequired
	}

	for attempt := 0; attempt < createAttempts; attempt++ {
		room := entity.NewRoom(pkg.GenerateRoomCode(), game, hostName, sessionID, that.now())

		err := that.rooms.Create(ctx, room)
		if errors.Is(err, apperror.ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		return room, nil
	}

	return nil, fmt.Errorf("failed to create room: %w", apperror.ErrRoomExists)
}

// JoinRoom seats a session in the room. Claiming a seat is first write
// wins: losing the store race surfaces a conflict, not a silent retry.
// The room starts once the second seat is occupied.
func (that *RoomService) JoinRoom(ctx context.Context, roomID, name, sessionID string) (*entity.Room, int, error) {
	if name == "" || sessionID == "" {
		return nil, 0, ErrNameRequired
	}

	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat, err := assignSlot(room, sessionID)
		if err != nil {
			return err
		}

		slot := room.Slot(seat)
		if slot.SessionID != sessionID {
			// fresh claim: the seat starts the game over
			slot.Name = name
			slot.SessionID = sessionID
			slot.Score = 0
			slot.Position = 0
			slot.Choice = ""
		}
		slot.LastActivityAt = now

		if room.IsWaiting() && room.OccupiedCount() >= 2 {
			room.Status = entity.StatusPlaying
			room.Turn = 1
		}

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to join room: %w", err)
	}

	return room, room.SlotBySession(sessionID), nil
}

// GetRoom fetches the row and opportunistically runs the eviction sweep,
// the only scheduler this system has.
func (that *RoomService) GetRoom(ctx context.Context, roomID string) (*entity.Room, error) {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if !sweepDue(room, that.now()) {
		return room, nil
	}

	room, err = that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		sweep(room, that.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sweep room: %w", err)
	}

	return room, nil
}

// WatchRoom subscribes to the room's change feed. The cancel func is a
// mandatory release on teardown.
func (that *RoomService) WatchRoom(ctx context.Context, roomID string) (<-chan *entity.Room, func(), error) {
	if _, err := that.rooms.GetByID(ctx, roomID); err != nil {
		return nil, nil, fmt.Errorf("failed to get room: %w", err)
	}

	updates, cancel := that.rooms.Subscribe(ctx, roomID)

	return updates, cancel, nil
}

// SubmitChoice records a rock-paper-scissors throw. When both seats have
// thrown, the round resolves: the winner scores one point, first to three
// points takes the match.
func (that *RoomService) SubmitChoice(ctx context.Context, roomID, sessionID, choice string) (*entity.Room, error) {
	if !rules.IsValidChoice(choice) {
		return nil, fmt.Errorf("%w: %q", apperror.ErrInvalidChoice, choice)
	}

	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat, err := that.guardAction(room, sessionID, entity.GameRPS)
		if err != nil {
			return err
		}

		slot := room.Slot(seat)
		if slot.Choice != "" {
			return apperror.ErrChoiceAlreadyMade
		}

		slot.Choice = choice
		touch(slot, now)

		that.applyOutcome(room, rules.Evaluate(room))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit choice: %w", err)
	}

	that.archiveIfOver(ctx, room)

	return room, nil
}

// PlaceMark plays one tic-tac-toe cell. The single board is the whole
// game: a completed line or a full board ends it.
func (that *RoomService) PlaceMark(ctx context.Context, roomID, sessionID string, cell int) (*entity.Room, error) {
	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat, err := that.guardAction(room, sessionID, entity.GameTicTacToe)
		if err != nil {
			return err
		}

		if room.Turn != seat {
			return apperror.ErrNotYourTurn
		}

		if cell < 0 || cell >= len(room.Board) {
			return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
		}

		if room.Board[cell] != entity.EmptyCell {
			return apperror.ErrCellOccupied
		}

		room.Board[cell] = entity.MarkForSlot(seat)
		touch(room.Slot(seat), now)

		outcome := rules.Evaluate(room)
		if outcome.Status == entity.StatusPlaying {
			room.Turn = room.NextOccupiedFrom(seat)
			return nil
		}

		that.applyOutcome(room, outcome)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to place mark: %w", err)
	}

	that.archiveIfOver(ctx, room)

	return room, nil
}

// RollDice moves the acting seat in snakes-and-ladders. Reaching or
// overshooting the final cell wins, clamped to 100; otherwise the turn
// rotates to the next occupied seat, which with a single occupant is the
// same seat again.
func (that *RoomService) RollDice(ctx context.Context, roomID, sessionID string) (*entity.Room, int, error) {
	// rolled outside the mutate so an optimistic retry replays the same die
	die := that.roll()

	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat, err := that.guardAction(room, sessionID, entity.GameSnakes)
		if err != nil {
			return err
		}

		if room.Turn != seat {
			return apperror.ErrNotYourTurn
		}

		slot := room.Slot(seat)
		position, won := rules.ResolveMove(slot.Position, die)
		slot.Position = position
		touch(slot, now)

		if !won {
			room.Turn = room.NextOccupiedFrom(seat)
			return nil
		}

		that.applyOutcome(room, rules.Evaluate(room))

		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to roll dice: %w", err)
	}

	that.archiveIfOver(ctx, room)

	return room, die, nil
}

// NextRound clears per-round inputs and resumes play. Cumulative scores
// survive; only an explicit reset touches them.
func (that *RoomService) NextRound(ctx context.Context, roomID, sessionID string) (*entity.Room, error) {
	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat := room.SlotBySession(sessionID)
		if seat == 0 {
			return apperror.ErrNotInRoom
		}

		if room.IsTerminal() {
			return apperror.ErrGameFinished
		}

		if !room.IsRoundComplete() {
			return apperror.ErrRoundNotComplete
		}

		for _, slot := range room.Slots {
			slot.Choice = ""
		}
		room.RoundWinner = 0
		room.Round++
		room.Status = entity.StatusPlaying
		touch(room.Slot(seat), now)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start next round: %w", err)
	}

	return room, nil
}

// ResetGame restores a finished room to its initial playable state.
func (that *RoomService) ResetGame(ctx context.Context, roomID, sessionID string) (*entity.Room, error) {
	room, err := that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat := room.SlotBySession(sessionID)
		if seat == 0 {
			return apperror.ErrNotInRoom
		}

		if !room.IsTerminal() {
			return apperror.ErrGameNotOver
		}

		for _, slot := range room.Slots {
			slot.Score = 0
			slot.Position = 0
			slot.Choice = ""
		}
		room.Board = [9]string{}
		room.Round = 1
		room.RoundWinner = 0
		room.Winner = 0
		room.Status = entity.StatusPlaying
		room.Turn = room.NextOccupiedFrom(0)
		touch(room.Slot(seat), now)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset game: %w", err)
	}

	return room, nil
}

// RefreshActivity keeps a seat alive while its tab is focused. Calls
// inside the debounce window are dropped without a store write.
func (that *RoomService) RefreshActivity(ctx context.Context, roomID, sessionID string) error {
	room, err := that.rooms.GetByID(ctx, roomID)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}

	seat := room.SlotBySession(sessionID)
	if seat == 0 {
		return apperror.ErrNotInRoom
	}

	if that.now().Sub(room.Slot(seat).LastActivityAt) < activityDebounce {
		return nil
	}

	_, err = that.rooms.Update(ctx, roomID, func(room *entity.Room) error {
		now := that.now()
		sweep(room, now)

		seat := room.SlotBySession(sessionID)
		if seat == 0 {
			return apperror.ErrNotInRoom
		}

		touch(room.Slot(seat), now)

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to refresh activity: %w", err)
	}

	return nil
}

// guardAction rejects out-of-turn-phase input before any field is written.
func (that *RoomService) guardAction(room *entity.Room, sessionID, game string) (int, error) {
	if room.Game != game {
		return 0, fmt.Errorf("%w: room plays %s", ErrWrongAction, room.Game)
	}

	seat := room.SlotBySession(sessionID)
	if seat == 0 {
		return 0, apperror.ErrNotInRoom
	}

	switch {
	case room.IsWaiting():
		return 0, apperror.ErrGameNotStarted
	case room.IsTerminal():
		return 0, apperror.ErrGameFinished
	case room.IsRoundComplete():
		return 0, apperror.ErrRoundComplete
	}

	return seat, nil
}

// applyOutcome writes the completion policy's verdict onto the row.
func (that *RoomService) applyOutcome(room *entity.Room, outcome rules.Outcome) {
	if outcome.Status == entity.StatusPlaying {
		return
	}

	room.Status = outcome.Status
	room.RoundWinner = outcome.RoundWinner

	if outcome.RoundWinner > 0 {
		room.Slot(outcome.RoundWinner).Score++
	}

	if room.IsTerminal() {
		room.Winner = outcome.GameWinner
		room.Turn = 0
	}
}

func (that *RoomService) archiveIfOver(ctx context.Context, room *entity.Room) {
	if that.archive == nil || !room.IsTerminal() {
		return
	}

	log := that.logger.With("method", "archiveIfOver")

	match := &entity.Match{
		RoomID:     room.ID,
		Game:       room.Game,
		Winner:     entity.SlotLabel(room.Winner),
		Rounds:     room.Round,
		FinishedAt: that.now(),
	}

	if err := that.archive.Record(ctx, match); err != nil {
		log.Error("failed to archive match", "room", room.ID, "error", err)
	}
}
