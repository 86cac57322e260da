package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/pkg"
)

func decode(message *Message) (*RequestPayload, error) {
	var payload RequestPayload
	if len(message.Payload) == 0 {
		return &payload, nil
	}

	if err := json.Unmarshal(message.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	return &payload, nil
}

// sessionID prefers an explicitly carried session id over the cookie one, so
// a tab that persisted its id locally keeps its seat across reconnects.
func (that *connection) sessionID(payload *RequestPayload) string {
	if payload.SessionID != "" {
		return payload.SessionID
	}
	return that.session
}

func (that *Server) handleConnect(_ context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	session := payload.SessionID
	if session == "" {
		session = conn.session
	}
	if session == "" {
		session = pkg.GenerateSessionID()
	}
	conn.session = session

	that.logger.Info("player connected", "session", session)

	return conn.send(message.Action, ResponsePayload{SessionID: session})
}

func (that *Server) handleCreateRoom(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, err := that.rooms.CreateRoom(ctx, payload.Game, payload.Name, conn.sessionID(payload))
	if err != nil {
		return err
	}

	that.logger.Info("room created", "room", room.ID, "game", room.Game)

	return conn.send(message.Action, ResponsePayload{Room: room, Slot: 1})
}

func (that *Server) handleJoinRoom(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, slot, err := that.rooms.JoinRoom(ctx, payload.RoomID, payload.Name, conn.sessionID(payload))
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room, Slot: slot})
}

func (that *Server) handleRoomState(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, err := that.rooms.GetRoom(ctx, payload.RoomID)
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room})
}

// handleSubscribe streams every change of one room to the client until the
// socket closes or the client subscribes elsewhere.
func (that *Server) handleSubscribe(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	updates, cancel, err := that.rooms.WatchRoom(ctx, payload.RoomID)
	if err != nil {
		return err
	}

	conn.setWatch(cancel)

	go func() {
		for room := range updates {
			if sendErr := conn.send("room:update", ResponsePayload{Room: room}); sendErr != nil {
				return
			}
		}
	}()

	return conn.send(message.Action, ResponsePayload{})
}

func (that *Server) handleChoice(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, err := that.rooms.SubmitChoice(ctx, payload.RoomID, conn.sessionID(payload), payload.Choice)
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room})
}

func (that *Server) handleMark(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	if payload.Cell == nil {
		return apperror.ErrInvalidCell
	}

	room, err := that.rooms.PlaceMark(ctx, payload.RoomID, conn.sessionID(payload), *payload.Cell)
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room})
}

func (that *Server) handleRoll(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, die, err := that.rooms.RollDice(ctx, payload.RoomID, conn.sessionID(payload))
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room, Die: die})
}

func (that *Server) handleNextRound(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, err := that.rooms.NextRound(ctx, payload.RoomID, conn.sessionID(payload))
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room})
}

func (that *Server) handleResetGame(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	room, err := that.rooms.ResetGame(ctx, payload.RoomID, conn.sessionID(payload))
	if err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{Room: room})
}

func (that *Server) handleActivity(ctx context.Context, conn *connection, message *Message) error {
	payload, err := decode(message)
	if err != nil {
		return err
	}

	if err := that.rooms.RefreshActivity(ctx, payload.RoomID, conn.sessionID(payload)); err != nil {
		return err
	}

	return conn.send(message.Action, ResponsePayload{})
}
