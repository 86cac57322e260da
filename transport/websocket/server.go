package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
	"github.com/playrow/partyroom-backend/internal/pkg"
	"github.com/playrow/partyroom-backend/internal/service"
)

const sessionCookieName = "player_session"

type roomUseCase interface {
	CreateRoom(ctx context.Context, game, hostName, sessionID string) (*entity.Room, error)
	JoinRoom(ctx context.Context, roomID, name, sessionID string) (*entity.Room, int, error)
	GetRoom(ctx context.Context, roomID string) (*entity.Room, error)
	WatchRoom(ctx context.Context, roomID string) (<-chan *entity.Room, func(), error)
	SubmitChoice(ctx context.Context, roomID, sessionID, choice string) (*entity.Room, error)
	PlaceMark(ctx context.Context, roomID, sessionID string, cell int) (*entity.Room, error)
	RollDice(ctx context.Context, roomID, sessionID string) (*entity.Room, int, error)
	NextRound(ctx context.Context, roomID, sessionID string) (*entity.Room, error)
	ResetGame(ctx context.Context, roomID, sessionID string) (*entity.Room, error)
	RefreshActivity(ctx context.Context, roomID, sessionID string) error
}

type handlerFunc func(ctx context.Context, conn *connection, message *Message) error

type Server struct {
	logger   *slog.Logger
	rooms    roomUseCase
	upgrader ws.Upgrader
	handlers map[string]handlerFunc
}

func New(logger *slog.Logger, rooms roomUseCase) *Server {
	server := &Server{
		logger: logger,
		rooms:  rooms,
		upgrader: ws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		handlers: make(map[string]handlerFunc),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["room:create"] = server.handleCreateRoom
	server.handlers["room:join"] = server.handleJoinRoom
	server.handlers["room:state"] = server.handleRoomState
	server.handlers["room:subscribe"] = server.handleSubscribe
	server.handlers["rps:choice"] = server.handleChoice
	server.handlers["ttt:mark"] = server.handleMark
	server.handlers["snakes:roll"] = server.handleRoll
	server.handlers["round:next"] = server.handleNextRound
	server.handlers["game:reset"] = server.handleResetGame
	server.handlers["activity:ping"] = server.handleActivity

	return server
}

// Start - starts the WebSocket server and shuts it down with the context.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveConnection(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// connection wraps one client socket. gorilla allows a single concurrent
// writer, so every send goes through the mutex.
type connection struct {
	sock    *ws.Conn
	mu      sync.Mutex
	session string

	watchMu     sync.Mutex
	cancelWatch func()
}

func (that *connection) send(action string, payload ResponsePayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err = that.sock.WriteJSON(Message{Action: action, Payload: raw}); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// setWatch swaps the connection's active room subscription, releasing the
// previous one so feeds never leak across room navigations.
func (that *connection) setWatch(cancel func()) {
	that.watchMu.Lock()
	defer that.watchMu.Unlock()

	if that.cancelWatch != nil {
		that.cancelWatch()
	}
	that.cancelWatch = cancel
}

func (that *Server) serveConnection(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "serveConnection")

	session := that.sessionFromCookie(writer, req, log)

	sock, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}
	defer sock.Close()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn := &connection{sock: sock, session: session}
	defer conn.setWatch(nil)

	log.Info("WebSocket connection established")

	that.handleMessages(connCtx, conn)
}

func (that *Server) handleMessages(ctx context.Context, conn *connection) {
	log := that.logger.With("method", "handleMessages")

	for {
		var message Message
		if err := conn.sock.ReadJSON(&message); err != nil {
			if !ws.IsCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
				log.Error("error reading message", "error", err)
			}
			return
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			_ = conn.send(message.Action, errorPayload(errors.New("unknown action")))
			continue
		}

		if err := handler(ctx, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
			_ = conn.send(message.Action, errorPayload(err))
		}
	}
}

// sessionFromCookie - re-associates the browser with its session id, or
// issues a fresh one.
func (that *Server) sessionFromCookie(writer http.ResponseWriter, req *http.Request, log *slog.Logger) string {
	cookie, err := req.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	session := pkg.GenerateSessionID()
	http.SetCookie(writer, &http.Cookie{
		Name:    sessionCookieName,
		Value:   session,
		Expires: time.Now().Add(24 * time.Hour),
		Path:    "/",
	})
	log.Info("session cookie not found, new one created")

	return session
}

func errorPayload(err error) ResponsePayload {
	return ResponsePayload{Error: &ErrorBody{Code: errorCode(err), Message: err.Error()}}
}

// errorCode maps the error taxonomy onto wire codes: not-found, conflict,
// and everything the guards reject before a write is attempted.
func errorCode(err error) string {
	switch {
	case errors.Is(err, apperror.ErrRoomNotFound), errors.Is(err, apperror.ErrMalformedRoom):
		return "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return "conflict"
	case errors.Is(err, apperror.ErrRoomFull):
		return "room_full"
	case errors.Is(err, apperror.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, apperror.ErrNotInRoom),
		errors.Is(err, apperror.ErrGameNotStarted),
		errors.Is(err, apperror.ErrGameFinished),
		errors.Is(err, apperror.ErrGameNotOver),
		errors.Is(err, apperror.ErrRoundComplete),
		errors.Is(err, apperror.ErrRoundNotComplete),
		errors.Is(err, apperror.ErrChoiceAlreadyMade),
		errors.Is(err, apperror.ErrInvalidChoice),
		errors.Is(err, apperror.ErrInvalidCell),
		errors.Is(err, apperror.ErrCellOccupied),
		errors.Is(err, apperror.ErrRoomExists),
		errors.Is(err, service.ErrNameRequired),
		errors.Is(err, service.ErrUnknownGame),
		errors.Is(err, service.ErrWrongAction):
		return "bad_request"
	default:
		return "error"
	}
}
