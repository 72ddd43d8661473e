package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"duelazo-match-service/internal/domain"
	"github.com/uptrace/bun"
)

// MatchArchive appends room and match records for analytics. The coordinator
// never reads them back.
type MatchArchive struct {
	db *bun.DB
}

func NewMatchArchive(db *bun.DB) *MatchArchive {
	return &MatchArchive{db: db}
}

type roomRow struct {
	bun.BaseModel `bun:"table:rooms"`

	Code       string    `bun:"code,pk"`
	Creator    string    `bun:"creator"`
	MaxPlayers int       `bun:"max_players"`
	CreatedAt  time.Time `bun:"created_at"`
}

type matchResultRow struct {
	bun.BaseModel `bun:"table:match_results"`

	ID         int64     `bun:"id,pk,autoincrement"`
	RoomCode   string    `bun:"room_code"`
	Creator    string    `bun:"creator"`
	Winner     string    `bun:"winner"`
	Ranking    []byte    `bun:"ranking,type:jsonb"`
	FinishedAt time.Time `bun:"finished_at"`
}

func (a *MatchArchive) RoomCreated(ctx context.Context, code, creator string, maxPlayers int) error {
	row := &roomRow{
		Code:       code,
		Creator:    creator,
		MaxPlayers: maxPlayers,
		CreatedAt:  time.Now(),
	}
	if _, err := a.db.NewInsert().Model(row).
		On("CONFLICT (code) DO UPDATE").
		Set("creator = EXCLUDED.creator, max_players = EXCLUDED.max_players").
		Exec(ctx); err != nil {
		return fmt.Errorf("archive room: %w", err)
	}
	return nil
}

func (a *MatchArchive) MatchFinished(ctx context.Context, record domain.MatchRecord) error {
	ranking, err := json.Marshal(record.Ranking)
	if err != nil {
		return fmt.Errorf("encode ranking: %w", err)
	}
	row := &matchResultRow{
		RoomCode:   record.RoomCode,
		Creator:    record.Creator,
		Winner:     record.Winner,
		Ranking:    ranking,
		FinishedAt: record.FinishedAt,
	}
	if _, err := a.db.NewInsert().Model(row).Exec(ctx); err != nil {
		return fmt.Errorf("archive match result: %w", err)
	}
	return nil
}
