package service

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
)

// fakeRoomRepo stores rooms as JSON, so mutate functions work on copies
// exactly like they do against the real store.
type fakeRoomRepo struct {
	mu      sync.Mutex
	rooms   map[string][]byte
	updates int
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string][]byte)}
}

func (that *fakeRoomRepo) Create(_ context.Context, room *entity.Room) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.rooms[room.ID]; ok {
		return apperror.ErrRoomExists
	}

	payload, err := json.Marshal(room)
	if err != nil {
		return err
	}

	that.rooms[room.ID] = payload

	return nil
}

func (that *fakeRoomRepo) GetByID(_ context.Context, id string) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	payload, ok := that.rooms[id]
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	var room entity.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		return nil, err
	}

	return &room, nil
}

func (that *fakeRoomRepo) Update(_ context.Context, id string, mutate func(room *entity.Room) error) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	payload, ok := that.rooms[id]
	if !ok {
		return nil, apperror.ErrRoomNotFound
	}

	var room entity.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		return nil, err
	}

	if err := mutate(&room); err != nil {
		return nil, err
	}

	if err := room.Validate(); err != nil {
		return nil, err
	}

	updated, err := json.Marshal(&room)
	if err != nil {
		return nil, err
	}

	that.rooms[id] = updated
	that.updates++

	return &room, nil
}

func (that *fakeRoomRepo) Subscribe(_ context.Context, _ string) (<-chan *entity.Room, func()) {
	out := make(chan *entity.Room)
	close(out)

	return out, func() {}
}

type fakeArchive struct {
	mu      sync.Mutex
	matches []*entity.Match
}

func (that *fakeArchive) Record(_ context.Context, match *entity.Match) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.matches = append(that.matches, match)

	return nil
}

type fixture struct {
	svc     *RoomService
	repo    *fakeRoomRepo
	archive *fakeArchive
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRoomRepo()
	archive := &fakeArchive{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	svc := NewRoomService(logger, repo, archive)

	clock := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }

	return &fixture{svc: svc, repo: repo, archive: archive, clock: &clock}
}

func (that *fixture) advance(d time.Duration) {
	*that.clock = that.clock.Add(d)
}

func TestRoomService_CreateRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a waiting room with the host seated", func(t *testing.T) {
		// Given: a fresh service
		f := newFixture(t)

		// When: the host creates a rock-paper-scissors room
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")

		// Then: the room waits for a second player
		require.NoError(t, err)
		assert.Equal(t, entity.StatusWaiting, room.Status)
		assert.Equal(t, "Host", room.Slot(1).Name)
		assert.Equal(t, 1, room.SlotBySession("session-host"))
	})

	t.Run("rejects an unknown game kind", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.CreateRoom(ctx, "chess", "Host", "session-host")

		assert.ErrorIs(t, err, ErrUnknownGame)
	})

	t.Run("rejects a missing host name", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.CreateRoom(ctx, entity.GameRPS, "", "session-host")

		assert.ErrorIs(t, err, ErrNameRequired)
	})
}

func TestRoomService_JoinRoom(t *testing.T) {
	ctx := context.Background()

	t.Run("second player starts the game", func(t *testing.T) {
		// Given: a waiting room
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)

		// When: a guest joins
		joined, seat, err := f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")

		// Then: the guest takes seat 2 and the game starts
		require.NoError(t, err)
		assert.Equal(t, 2, seat)
		assert.Equal(t, entity.StatusPlaying, joined.Status)
		assert.Equal(t, 1, joined.Turn)
	})

	t.Run("reconnect keeps the original seat", func(t *testing.T) {
		// Given: a guest who already holds seat 2
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		// When: the same session joins again
		joined, seat, err := f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")

		// Then: the seat and its name are unchanged
		require.NoError(t, err)
		assert.Equal(t, 2, seat)
		assert.Equal(t, "Guest", joined.Slot(2).Name)
	})

	t.Run("a full room rejects further joins", func(t *testing.T) {
		// Given: a two-seat room with both seats taken
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		// When: a third session tries to join
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Late", "session-late")

		// Then: the join is rejected with room full
		assert.ErrorIs(t, err, apperror.ErrRoomFull)
	})

	t.Run("joining a missing room reports not found", func(t *testing.T) {
		f := newFixture(t)

		_, _, err := f.svc.JoinRoom(ctx, "NOSUCH", "Guest", "session-guest")

		assert.ErrorIs(t, err, apperror.ErrRoomNotFound)
	})
}

// The full rock-paper-scissors flow: create, join, throw, resolve, next round.
func TestRoomService_RPSFlow(t *testing.T) {
	ctx := context.Background()

	// Given: a playing room with Host and Guest
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)

	// When: the host throws rock
	state, err := f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoiceRock)
	require.NoError(t, err)

	// Then: the round is still open
	assert.Equal(t, entity.StatusPlaying, state.Status)

	// When: the guest throws scissors
	state, err = f.svc.SubmitChoice(ctx, room.ID, "session-guest", entity.ChoiceScissors)
	require.NoError(t, err)

	// Then: the round resolves for the host, who scores exactly one point
	assert.Equal(t, entity.StatusRoundComplete, state.Status)
	assert.Equal(t, 1, state.RoundWinner)
	assert.Equal(t, 1, state.Slot(1).Score)
	assert.Equal(t, 0, state.Slot(2).Score)

	// When: someone starts the next round
	state, err = f.svc.NextRound(ctx, room.ID, "session-host")
	require.NoError(t, err)

	// Then: choices are cleared, the counter advances, scores survive
	assert.Equal(t, entity.StatusPlaying, state.Status)
	assert.Equal(t, 2, state.Round)
	assert.Empty(t, state.Slot(1).Choice)
	assert.Empty(t, state.Slot(2).Choice)
	assert.Equal(t, 0, state.RoundWinner)
	assert.Equal(t, 1, state.Slot(1).Score)
}

func TestRoomService_RPSMatchEnd(t *testing.T) {
	ctx := context.Background()

	// Given: the host one round win away from the match
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)
	_, err = f.repo.Update(ctx, room.ID, func(room *entity.Room) error {
		room.Slot(1).Score = entity.RPSTargetScore - 1
		return nil
	})
	require.NoError(t, err)

	// When: the host wins one more round
	_, err = f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoicePaper)
	require.NoError(t, err)
	state, err := f.svc.SubmitChoice(ctx, room.ID, "session-guest", entity.ChoiceRock)
	require.NoError(t, err)

	// Then: the match completes and is archived
	assert.Equal(t, entity.StatusGameComplete, state.Status)
	assert.Equal(t, 1, state.Winner)
	assert.Equal(t, entity.RPSTargetScore, state.Slot(1).Score)
	assert.Equal(t, 0, state.Turn)

	require.Len(t, f.archive.matches, 1)
	assert.Equal(t, "slot1", f.archive.matches[0].Winner)
	assert.Equal(t, entity.GameRPS, f.archive.matches[0].Game)
}

func TestRoomService_SubmitChoice_Guards(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects an unknown choice before any write", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.SubmitChoice(ctx, "ROOM1", "session-host", "lizard")

		assert.ErrorIs(t, err, apperror.ErrInvalidChoice)
	})

	t.Run("rejects a throw in a waiting room", func(t *testing.T) {
		// Given: a room with only the host
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)

		// When: the host throws anyway
		_, err = f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoiceRock)

		// Then: the guard rejects it
		assert.ErrorIs(t, err, apperror.ErrGameNotStarted)
	})

	t.Run("rejects a second throw in the same round", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		_, err = f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoiceRock)
		require.NoError(t, err)
		_, err = f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoicePaper)

		assert.ErrorIs(t, err, apperror.ErrChoiceAlreadyMade)
	})

	t.Run("rejects a stranger's throw", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		_, err = f.svc.SubmitChoice(ctx, room.ID, "session-stranger", entity.ChoiceRock)

		assert.ErrorIs(t, err, apperror.ErrNotInRoom)
	})

	t.Run("rejects a choice action in a tic-tac-toe room", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameTicTacToe, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		_, err = f.svc.SubmitChoice(ctx, room.ID, "session-host", entity.ChoiceRock)

		assert.ErrorIs(t, err, ErrWrongAction)
	})
}

func TestRoomService_TicTacToe(t *testing.T) {
	ctx := context.Background()

	// Given: a playing tic-tac-toe room, host is X and acts first
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameTicTacToe, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)

	t.Run("acting out of turn is rejected by the guard", func(t *testing.T) {
		_, err := f.svc.PlaceMark(ctx, room.ID, "session-guest", 0)
		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	})

	t.Run("marks alternate and occupy cells", func(t *testing.T) {
		state, err := f.svc.PlaceMark(ctx, room.ID, "session-host", 0)
		require.NoError(t, err)
		assert.Equal(t, entity.MarkX, state.Board[0])
		assert.Equal(t, 2, state.Turn)

		// an occupied cell stays rejected
		_, err = f.svc.PlaceMark(ctx, room.ID, "session-guest", 0)
		assert.ErrorIs(t, err, apperror.ErrCellOccupied)

		_, err = f.svc.PlaceMark(ctx, room.ID, "session-guest", 3)
		require.NoError(t, err)
	})

	t.Run("completing a line ends the game", func(t *testing.T) {
		_, err := f.svc.PlaceMark(ctx, room.ID, "session-host", 1)
		require.NoError(t, err)
		_, err = f.svc.PlaceMark(ctx, room.ID, "session-guest", 4)
		require.NoError(t, err)

		state, err := f.svc.PlaceMark(ctx, room.ID, "session-host", 2)
		require.NoError(t, err)

		assert.Equal(t, entity.StatusGameComplete, state.Status)
		assert.Equal(t, 1, state.Winner)
		assert.Equal(t, 0, state.Turn)
		require.Len(t, f.archive.matches, 1)
		assert.Equal(t, "slot1", f.archive.matches[0].Winner)
	})

	t.Run("a finished board rejects further marks", func(t *testing.T) {
		_, err := f.svc.PlaceMark(ctx, room.ID, "session-guest", 5)
		assert.ErrorIs(t, err, apperror.ErrGameFinished)
	})
}

func TestRoomService_SnakesRoll(t *testing.T) {
	ctx := context.Background()

	start := func(t *testing.T) (*fixture, string) {
		t.Helper()

		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameSnakes, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		return f, room.ID
	}

	t.Run("a plain roll moves the piece and rotates the turn", func(t *testing.T) {
		// Given: a playing room and a die showing 3
		f, roomID := start(t)
		f.svc.roll = func() int { return 3 }

		// When: the host rolls
		state, die, err := f.svc.RollDice(ctx, roomID, "session-host")

		// Then: the piece advances and the guest is up
		require.NoError(t, err)
		assert.Equal(t, 3, die)
		assert.Equal(t, 3, state.Slot(1).Position)
		assert.Equal(t, 2, state.Turn)
	})

	t.Run("landing on a ladder climbs it once", func(t *testing.T) {
		// Given: cell 4 maps to 14
		f, roomID := start(t)
		f.svc.roll = func() int { return 4 }

		// When: the host rolls onto the ladder
		state, _, err := f.svc.RollDice(ctx, roomID, "session-host")

		// Then: the piece sits at the ladder's destination
		require.NoError(t, err)
		assert.Equal(t, 14, state.Slot(1).Position)
	})

	t.Run("solo player at 92 rolls 6 and keeps the turn", func(t *testing.T) {
		// Given: the guest has gone stale and the host sits at 92
		f, roomID := start(t)
		_, err := f.repo.Update(ctx, roomID, func(room *entity.Room) error {
			room.Slot(1).Position = 92
			room.Slot(2).LastActivityAt = f.clock.Add(-10 * time.Minute)
			return nil
		})
		require.NoError(t, err)
		f.svc.roll = func() int { return 6 }

		// When: the host rolls
		state, _, err := f.svc.RollDice(ctx, roomID, "session-host")

		// Then: the stale seat was evicted, the piece sits at 98 with no
		// mapping applied, the game continues, and rotation is a no-op
		require.NoError(t, err)
		assert.False(t, state.Slot(2).IsOccupied())
		assert.Equal(t, 98, state.Slot(1).Position)
		assert.Equal(t, entity.StatusPlaying, state.Status)
		assert.Equal(t, 1, state.Turn)
	})

	t.Run("overshooting the final cell wins clamped to 100", func(t *testing.T) {
		f, roomID := start(t)
		_, err := f.repo.Update(ctx, roomID, func(room *entity.Room) error {
			room.Slot(1).Position = 97
			return nil
		})
		require.NoError(t, err)
		f.svc.roll = func() int { return 6 }

		state, _, err := f.svc.RollDice(ctx, roomID, "session-host")

		require.NoError(t, err)
		assert.Equal(t, entity.StatusFinished, state.Status)
		assert.Equal(t, entity.FinalCell, state.Slot(1).Position)
		assert.Equal(t, 1, state.Winner)
		require.Len(t, f.archive.matches, 1)
		assert.Equal(t, "slot1", f.archive.matches[0].Winner)
	})

	t.Run("rolling out of turn is rejected", func(t *testing.T) {
		f, roomID := start(t)
		f.svc.roll = func() int { return 2 }

		_, _, err := f.svc.RollDice(ctx, roomID, "session-guest")

		assert.ErrorIs(t, err, apperror.ErrNotYourTurn)
	})
}

func TestRoomService_Eviction(t *testing.T) {
	ctx := context.Background()

	// Given: a playing room whose guest went idle past the threshold
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)

	f.advance(6 * time.Minute)

	// When: any client fetches the room
	state, err := f.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)

	// Then: the guest's seat is cleared with one log entry, host stays
	assert.False(t, state.Slot(2).IsOccupied())
	assert.True(t, state.Slot(1).IsOccupied())
	require.Len(t, state.Log, 1)
	assert.Contains(t, state.Log[0], "Guest")

	// When: the room is fetched again
	writes := f.repo.updates
	state, err = f.svc.GetRoom(ctx, room.ID)
	require.NoError(t, err)

	// Then: the sweep is idempotent, no second write, no duplicate log entry
	assert.Equal(t, writes, f.repo.updates)
	assert.Len(t, state.Log, 1)

	// And: the freed seat is immediately claimable
	joined, seat, err := f.svc.JoinRoom(ctx, room.ID, "Newcomer", "session-new")
	require.NoError(t, err)
	assert.Equal(t, 2, seat)
	assert.Equal(t, "Newcomer", joined.Slot(2).Name)
}

func TestRoomService_ResetGame(t *testing.T) {
	ctx := context.Background()

	t.Run("restores a finished room to its initial playable state", func(t *testing.T) {
		// Given: a completed match
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)
		_, err = f.repo.Update(ctx, room.ID, func(room *entity.Room) error {
			room.Status = entity.StatusGameComplete
			room.Winner = 1
			room.Turn = 0
			room.Slot(1).Score = entity.RPSTargetScore
			room.Round = 7
			return nil
		})
		require.NoError(t, err)

		// When: a player resets the game
		state, err := f.svc.ResetGame(ctx, room.ID, "session-guest")

		// Then: scores, round and winner are back to initial values
		require.NoError(t, err)
		assert.Equal(t, entity.StatusPlaying, state.Status)
		assert.Equal(t, 0, state.Slot(1).Score)
		assert.Equal(t, 0, state.Winner)
		assert.Equal(t, 1, state.Round)
		assert.Equal(t, 1, state.Turn)
	})

	t.Run("a running game cannot be reset", func(t *testing.T) {
		f := newFixture(t)
		room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
		require.NoError(t, err)
		_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
		require.NoError(t, err)

		_, err = f.svc.ResetGame(ctx, room.ID, "session-host")

		assert.ErrorIs(t, err, apperror.ErrGameNotOver)
	})
}

func TestRoomService_NextRound_Guard(t *testing.T) {
	ctx := context.Background()

	// Given: a round still in progress
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)

	// When: a player asks for the next round early
	_, err = f.svc.NextRound(ctx, room.ID, "session-host")

	// Then: the guard rejects it
	assert.ErrorIs(t, err, apperror.ErrRoundNotComplete)
}

func TestRoomService_RefreshActivity_Debounce(t *testing.T) {
	ctx := context.Background()

	// Given: a playing room
	f := newFixture(t)
	room, err := f.svc.CreateRoom(ctx, entity.GameRPS, "Host", "session-host")
	require.NoError(t, err)
	_, _, err = f.svc.JoinRoom(ctx, room.ID, "Guest", "session-guest")
	require.NoError(t, err)

	// When: activity is refreshed twice inside the debounce window
	f.advance(2 * time.Second)
	require.NoError(t, f.svc.RefreshActivity(ctx, room.ID, "session-host"))
	writes := f.repo.updates
	require.NoError(t, f.svc.RefreshActivity(ctx, room.ID, "session-host"))

	// Then: the second refresh produces no store write
	assert.Equal(t, writes, f.repo.updates)

	// And: a refresh after the window writes again
	f.advance(2 * time.Second)
	require.NoError(t, f.svc.RefreshActivity(ctx, room.ID, "session-host"))
	assert.Equal(t, writes+1, f.repo.updates)
}
