package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/playrow/partyroom-backend/internal/entity"
)

type HistoryRepository interface {
	Record(ctx context.Context, match *entity.Match) error
	Recent(ctx context.Context, limit int) ([]entity.Match, error)
}

type dbHistory struct {
	db *sql.DB
}

func NewHistoryRepository(db *sql.DB) HistoryRepository {
	return &dbHistory{
		db: db,
	}
}

func (that *dbHistory) Record(ctx context.Context, match *entity.Match) error {
	query := `INSERT INTO matches (room_id, game, winner, rounds, finished_at) VALUES (?, ?, ?, ?, ?)`

	_, err := that.db.ExecContext(ctx, query, match.RoomID, match.Game, match.Winner, match.Rounds, match.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to record match: %w", err)
	}

	return nil
}

func (that *dbHistory) Recent(ctx context.Context, limit int) ([]entity.Match, error) {
	query := `SELECT room_id, game, winner, rounds, finished_at FROM matches ORDER BY finished_at DESC LIMIT ?`

	rows, err := that.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []entity.Match
	for rows.Next() {
		var match entity.Match
		if err = rows.Scan(&match.RoomID, &match.Game, &match.Winner, &match.Rounds, &match.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}

	return matches, nil
}
