package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/roast-arena/go/internal/arena/orchestrator"
	"github.com/mcdev12/roast-arena/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

// DefaultListLimit caps List when the caller passes no limit
const DefaultListLimit = 20

const maxListLimit = 200

var ErrNoResult = errors.New("lifecycle event carries no result")

// Record is one completed round as observed by this client
type Record struct {
	RoundID        int64     `json:"round_id"`
	JudgeCharacter string    `json:"judge_character"`
	WinnerAddress  string    `json:"winner_address"`
	WinningRoast   string    `json:"winning_roast"`
	AIReasoning    string    `json:"ai_reasoning"`
	PrizePool      float64   `json:"prize_pool"`
	Participants   int       `json:"participants"`
	PayoutAmount   *float64  `json:"payout_amount,omitempty"`
	PayoutTxHash   string    `json:"payout_tx_hash,omitempty"`
	CompletedAt    time.Time `json:"completed_at"`
}

// DB is the part of pgxpool.Pool the repository uses
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository stores completed rounds in round_results. It implements
// orchestrator.LifecycleSink.
type Repository struct {
	db   DB
	pool *pgxpool.Pool
}

func NewRepository(db DB) *Repository {
	return &Repository{db: db}
}

// Connect opens a pool from cfg, verifies it and creates the schema.
func Connect(ctx context.Context, cfg dbconfig.Config) (*Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := &Repository{db: pool, pool: pool}
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("user", cfg.User).
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("results archive connected")
	return r, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS round_results (
	round_id        BIGINT PRIMARY KEY,
	judge_character TEXT NOT NULL DEFAULT '',
	winner_address  TEXT NOT NULL DEFAULT '',
	winning_roast   TEXT NOT NULL DEFAULT '',
	ai_reasoning    TEXT NOT NULL DEFAULT '',
	prize_pool      DOUBLE PRECISION NOT NULL DEFAULT 0,
	participants    INTEGER NOT NULL DEFAULT 0,
	payout_amount   DOUBLE PRECISION,
	payout_tx_hash  TEXT NOT NULL DEFAULT '',
	completed_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Migrate creates round_results when it does not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create round_results: %w", err)
	}
	return nil
}

const upsertResult = `
INSERT INTO round_results (
	round_id, judge_character, winner_address, winning_roast, ai_reasoning,
	prize_pool, participants, payout_amount, payout_tx_hash, completed_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (round_id) DO UPDATE SET
	payout_amount  = COALESCE(EXCLUDED.payout_amount, round_results.payout_amount),
	payout_tx_hash = CASE WHEN EXCLUDED.payout_tx_hash <> '' THEN EXCLUDED.payout_tx_hash ELSE round_results.payout_tx_hash END`

// Save inserts rec. A round that is already stored keeps its result; only the payout is
// filled in.
func (r *Repository) Save(ctx context.Context, rec Record) error {
	_, err := r.db.Exec(ctx, upsertResult,
		rec.RoundID,
		rec.JudgeCharacter,
		rec.WinnerAddress,
		rec.WinningRoast,
		rec.AIReasoning,
		rec.PrizePool,
		rec.Participants,
		rec.PayoutAmount,
		rec.PayoutTxHash,
		rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("save round %d: %w", rec.RoundID, err)
	}
	return nil
}

// Publish archives completed rounds and their payouts. Other lifecycle events are ignored.
func (r *Repository) Publish(ctx context.Context, ev orchestrator.LifecycleEvent) error {
	if ev.Kind != orchestrator.KindRoundCompleted && ev.Kind != orchestrator.KindPrizeDistributed {
		return nil
	}
	rec, err := RecordFromEvent(ev)
	if err != nil {
		return err
	}
	if err := r.Save(ctx, rec); err != nil {
		return err
	}
	log.Debug().Int64("round_id", rec.RoundID).Str("kind", string(ev.Kind)).Msg("archived round result")
	return nil
}

// RecordFromEvent converts a completion or payout event into a record.
func RecordFromEvent(ev orchestrator.LifecycleEvent) (Record, error) {
	if ev.Result == nil {
		return Record{}, fmt.Errorf("round %d: %w", ev.RoundID, ErrNoResult)
	}
	rec := Record{
		RoundID:        ev.RoundID,
		JudgeCharacter: ev.Result.JudgeCharacter,
		WinnerAddress:  ev.Result.WinnerAddress,
		WinningRoast:   ev.Result.WinningRoastText,
		AIReasoning:    ev.Result.AIReasoningText,
		PrizePool:      ev.PrizePool,
		Participants:   ev.Participants,
		CompletedAt:    ev.At,
	}
	if rec.JudgeCharacter == "" {
		rec.JudgeCharacter = ev.JudgeCharacter
	}
	if rec.CompletedAt.IsZero() {
		rec.CompletedAt = time.Now().UTC()
	}
	if p := ev.Result.Payout; p != nil {
		amount := p.Amount
		rec.PayoutAmount = &amount
		rec.PayoutTxHash = p.TxHash
	}
	return rec, nil
}

const listResults = `
SELECT round_id, judge_character, winner_address, winning_roast, ai_reasoning,
	prize_pool, participants, payout_amount, payout_tx_hash, completed_at
FROM round_results
ORDER BY round_id DESC
LIMIT $1`

// List returns the most recent records, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := r.db.Query(ctx, listResults, limit)
	if err != nil {
		return nil, fmt.Errorf("list round results: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.RoundID,
			&rec.JudgeCharacter,
			&rec.WinnerAddress,
			&rec.WinningRoast,
			&rec.AIReasoning,
			&rec.PrizePool,
			&rec.Participants,
			&rec.PayoutAmount,
			&rec.PayoutTxHash,
			&rec.CompletedAt,
		); err != nil {
			return nil, fmt.Errorf("scan round result: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate round results: %w", err)
	}
	return out, nil
}

// Close releases the pool opened by Connect.
func (r *Repository) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}
