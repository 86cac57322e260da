package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/julienschmidt/httprouter"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/playrow/partyroom-backend/internal/apperror"
	"github.com/playrow/partyroom-backend/internal/entity"
	"github.com/playrow/partyroom-backend/internal/pkg"
	"github.com/playrow/partyroom-backend/internal/service"
)

const recentMatchLimit = 20

type roomUseCase interface {
	CreateRoom(ctx context.Context, game, hostName, sessionID string) (*entity.Room, error)
	GetRoom(ctx context.Context, roomID string) (*entity.Room, error)
}

type historyUseCase interface {
	Recent(ctx context.Context, limit int) ([]entity.Match, error)
}

type handlers struct {
	logger  *slog.Logger
	rooms   roomUseCase
	history historyUseCase
}

func newHandlers(logger *slog.Logger, rooms roomUseCase, history historyUseCase) *handlers {
	return &handlers{
		logger:  logger,
		rooms:   rooms,
		history: history,
	}
}

func (that *handlers) ping(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("pong"))
}

type createRoomRequest struct {
	Game      string `json:"game"`
	Name      string `json:"name"`
	SessionID string `json:"session_id"`
}

type createRoomResponse struct {
	Room      *entity.Room `json:"room"`
	SessionID string       `json:"session_id"`
}

func (that *handlers) createRoom(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if request.SessionID == "" {
		request.SessionID = pkg.GenerateSessionID()
	}

	room, err := that.rooms.CreateRoom(r.Context(), request.Game, request.Name, request.SessionID)
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusCreated, createRoomResponse{Room: room, SessionID: request.SessionID})
}

// getRoom fetches the row; the service runs the eviction sweep under it,
// so polling clients double as the system's only scheduler.
func (that *handlers) getRoom(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	room, err := that.rooms.GetRoom(r.Context(), params.ByName("id"))
	if err != nil {
		that.writeError(w, err)
		return
	}

	that.writeJSON(w, http.StatusOK, room)
}

// roomQR renders the shareable join link as a PNG QR code.
func (that *handlers) roomQR(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	roomID := params.ByName("id")

	if _, err := that.rooms.GetRoom(r.Context(), roomID); err != nil {
		that.writeError(w, err)
		return
	}

	const qrSize = 320
	png, err := qrcode.Encode(joinLink(r, roomID), qrcode.Medium, qrSize)
	if err != nil {
		that.logger.Error("failed to encode qr", "room", roomID, "error", err)
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// joinLink is the URL a scanned QR opens. A scanned link always joins as a
// guest, so it carries host=false alongside the room id.
func joinLink(r *http.Request, roomID string) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	return scheme + "://" + r.Host + "/?r=" + roomID + "&host=false"
}

func (that *handlers) recentMatches(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	matches, err := that.history.Recent(r.Context(), recentMatchLimit)
	if err != nil {
		that.writeError(w, err)
		return
	}

	if matches == nil {
		matches = []entity.Match{}
	}

	that.writeJSON(w, http.StatusOK, matches)
}

func (that *handlers) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		that.logger.Error("failed to encode response", "error", err)
	}
}

func (that *handlers) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrRoomNotFound), errors.Is(err, apperror.ErrMalformedRoom):
		http.Error(w, "room not found", http.StatusNotFound)
	case errors.Is(err, apperror.ErrConflict):
		http.Error(w, "concurrent update, try again", http.StatusConflict)
	case errors.Is(err, apperror.ErrRoomFull):
		http.Error(w, "room is full", http.StatusConflict)
	case errors.Is(err, service.ErrUnknownGame), errors.Is(err, service.ErrNameRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		that.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
