package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
)

const (
	roomKeyPrefix     = "room:"
	roomChannelPrefix = "room-feed:"

	// roomTTL lets the store, not the application, retire abandoned rooms.
	// Every successful write refreshes it.
	roomTTL = 24 * time.Hour

	// One optimistic retry on a lost WATCH race, then the conflict is
	// surfaced to the caller.
	updateAttempts = 2
)

type RoomRepository interface {
	Create(ctx context.Context, room *entity.Room) error
	GetByID(ctx context.Context, id string) (*entity.Room, error)
	Update(ctx context.Context, id string, mutate func(room *entity.Room) error) (*entity.Room, error)
	DeleteByID(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan *entity.Room, func())
}

type dbRoom struct {
	client *redis.Client
}

func NewRoomRepository(client *redis.Client) RoomRepository {
	return &dbRoom{
		client: client,
	}
}

func (that *dbRoom) Create(ctx context.Context, room *entity.Room) error {
	if err := room.Validate(); err != nil {
		return fmt.Errorf("refusing to store room: %w", err)
	}

	payload, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("could not marshal room: %w", err)
	}

	created, err := that.client.SetNX(ctx, roomKeyPrefix+room.ID, payload, roomTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to set room: %w", err)
	}

	if !created {
		return fmt.Errorf("%w: id %s", apperror.ErrRoomExists, room.ID)
	}

	that.publish(ctx, room.ID, payload)

	return nil
}

func (that *dbRoom) GetByID(ctx context.Context, id string) (*entity.Room, error) {
	response, err := that.client.Get(ctx, roomKeyPrefix+id).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get room by id: %w", err)
	}

	return unmarshalRoom([]byte(response))
}

// Update applies a mutate function to the room row inside an optimistic
// WATCH transaction. Concurrent claims on the same seat or stale actions
// on a room that already advanced resolve as first write wins: the loser's
// transaction fails, is retried once against fresh state, and any further
// loss is reported as apperror.ErrConflict.
func (that *dbRoom) Update(ctx context.Context, id string, mutate func(room *entity.Room) error) (*entity.Room, error) {
	key := roomKeyPrefix + id

	var updated *entity.Room

	transaction := func(tx *redis.Tx) error {
		response, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return apperror.ErrRoomNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get room by id: %w", err)
		}

		room, err := unmarshalRoom([]byte(response))
		if err != nil {
			return err
		}

		if err = mutate(room); err != nil {
			return err
		}

		if err = room.Validate(); err != nil {
			return fmt.Errorf("update produced invalid room: %w", err)
		}

		payload, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("could not marshal room: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, roomTTL)
			pipe.Publish(ctx, roomChannelPrefix+id, payload)
			return nil
		})
		if err != nil {
			return err
		}

		updated = room

		return nil
	}

	for attempt := 0; attempt < updateAttempts; attempt++ {
		err := that.client.Watch(ctx, transaction, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to update room: %w", err)
		}

		return updated, nil
	}

	return nil, fmt.Errorf("%w: room %s", apperror.ErrConflict, id)
}

func (that *dbRoom) DeleteByID(ctx context.Context, id string) error {
	err := that.client.Del(ctx, roomKeyPrefix+id).Err()
	if err != nil {
		return fmt.Errorf("failed to delete room by ID: %w", err)
	}

	return nil
}

// Subscribe streams every written state of one room. The returned cancel
// func must be called when the listener goes away, or the pub/sub
// connection leaks across navigations.
func (that *dbRoom) Subscribe(ctx context.Context, id string) (<-chan *entity.Room, func()) {
	pubsub := that.client.Subscribe(ctx, roomChannelPrefix+id)

	out := make(chan *entity.Room, 8)

	go func() {
		defer close(out)

		for message := range pubsub.Channel() {
			room, err := unmarshalRoom([]byte(message.Payload))
			if err != nil {
				// quarantine malformed rows, never push them to clients
				continue
			}

			select {
			case out <- room:
			case <-ctx.Done():
				return
			}
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}

	return out, cancel
}

func (that *dbRoom) publish(ctx context.Context, id string, payload []byte) {
	// change feed delivery is best effort, the row itself is authoritative
	_ = that.client.Publish(ctx, roomChannelPrefix+id, payload).Err()
}

func unmarshalRoom(payload []byte) (*entity.Room, error) {
	var room entity.Room
	if err := json.Unmarshal(payload, &room); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedRoom, err)
	}

	if err := room.Validate(); err != nil {
		return nil, err
	}

	return &room, nil
}
