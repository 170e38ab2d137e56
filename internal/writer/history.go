// Package writer persists newly detected opportunities so edge history
// survives process restarts.
package writer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tmash55/unjuiced/pkg/models"
)

// HistoryWriter writes opportunity sightings to Postgres
type HistoryWriter struct {
	db *sql.DB
}

// NewHistoryWriter creates a new history writer
func NewHistoryWriter(db *sql.DB) *HistoryWriter {
	return &HistoryWriter{
		db: db,
	}
}

// WriteOpportunity writes one opportunity and its best-book offer in a
// single transaction. Returns the row ID on success.
func (w *HistoryWriter) WriteOpportunity(ctx context.Context, opp *models.Opportunity) (int64, error) {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // Rollback if commit doesn't happen

	opportunityQuery := `
		INSERT INTO opportunity_history (
			selection_id, event_id, sport_key, player, market_key,
			line, side, ev_worst, ev_best, edge, fair_price, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`

	var id int64
	err = tx.QueryRowContext(
		ctx,
		opportunityQuery,
		opp.ID(),
		opp.EventID,
		opp.SportKey,
		opp.Player,
		opp.MarketKey,
		opp.Line,
		opp.Side,
		opp.EVWorst,
		opp.EVBest,
		opp.Edge,
		opp.FairPrice,
		opp.FetchedAt,
	).Scan(&id)

	if err != nil {
		return 0, fmt.Errorf("failed to insert opportunity: %w", err)
	}

	offerQuery := `
		INSERT INTO opportunity_offers (
			opportunity_id, book_key, price, deep_link, limit_min, limit_max
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	var limitMin, limitMax sql.NullFloat64
	if opp.BestBook.Limits != nil {
		limitMin = sql.NullFloat64{Float64: opp.BestBook.Limits.Min, Valid: true}
		limitMax = sql.NullFloat64{Float64: opp.BestBook.Limits.Max, Valid: true}
	}
	_, err = tx.ExecContext(
		ctx,
		offerQuery,
		id,
		string(opp.BestBook.Book),
		opp.BestBook.Price,
		opp.BestBook.DeepLink,
		limitMin,
		limitMax,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert offer: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return id, nil
}

// WriteOpportunities writes a batch, stopping at the first failure.
func (w *HistoryWriter) WriteOpportunities(ctx context.Context, opportunities []*models.Opportunity) ([]int64, error) {
	if len(opportunities) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(opportunities))
	for _, opp := range opportunities {
		id, err := w.WriteOpportunity(ctx, opp)
		if err != nil {
			return ids, fmt.Errorf("failed to write opportunity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
