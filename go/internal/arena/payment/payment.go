package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultEntryFee is the fixed roast entry fee in native token units
const DefaultEntryFee = 0.025

// ErrMissingTreasury is returned when no payment destination is configured
var ErrMissingTreasury = errors.New("treasury address not configured")

// Request describes an entry-fee transfer
type Request struct {
	From    string
	To      string
	Amount  float64
	RoundID int64
}

// Payer submits the entry-fee transfer and returns its transaction hash.
type Payer interface {
	PayEntryFee(ctx context.Context, req Request) (string, error)
}

// DevPayer fakes a transfer for local play against a development server.
type DevPayer struct{}

// PayEntryFee returns a random hash without touching any chain.
func (DevPayer) PayEntryFee(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(req.To) == "" {
		return "", ErrMissingTreasury
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("invalid entry fee %v", req.Amount)
	}

	hash := "0x" + strings.ReplaceAll(uuid.New().String(), "-", "")
	log.Debug().
		Int64("round_id", req.RoundID).
		Str("from", req.From).
		Str("to", req.To).
		Float64("amount", req.Amount).
		Str("tx_hash", hash).
		Msg("dev payer issued entry fee")
	return hash, nil
}
