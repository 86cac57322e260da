package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Start - starts the HTTP server and shuts it down with the context.
func Start(ctx context.Context, logger *slog.Logger, port string, rooms roomUseCase, history historyUseCase) error {
	handlers := newHandlers(logger, rooms, history)

	router := httprouter.New()
	router.GET("/ping", handlers.ping)
	router.POST("/rooms", handlers.createRoom)
	router.GET("/rooms/:id", handlers.getRoom)
	router.GET("/rooms/:id/qr", handlers.roomQR)
	router.GET("/history/recent", handlers.recentMatches)

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
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
