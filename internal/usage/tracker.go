// Package usage implements C5: an append-only token-usage ledger with
// aggregate summary/stat queries and retention-based cleanup.
package usage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/crewkit/engine/internal/storage"
	"github.com/crewkit/engine/pkg/models"
)

// PricePerMillion is a (input, output) per-million-token price pair.
type PricePerMillion struct {
	Input  float64
	Output float64
}

// Pricing is keyed by "<provider>/<model>"; Estimate returns nil when a
// model has no known price, matching the optional Cost field.
type Pricing map[string]PricePerMillion

// Estimate computes a cost, or nil if model is unpriced.
func (p Pricing) Estimate(provider, model string, promptTokens, completionTokens int) *float64 {
	price, ok := p[provider+"/"+model]
	if !ok {
		return nil
	}
	cost := float64(promptTokens)/1_000_000*price.Input + float64(completionTokens)/1_000_000*price.Output
	return &cost
}

// Tracker records token usage rows and serves aggregate queries.
type Tracker struct {
	db      *sql.DB
	driver  storage.Driver
	pricing Pricing

	tokensCounter   *prometheus.CounterVec
	requestsCounter *prometheus.CounterVec
}

// New constructs a Tracker. registerer may be nil to skip metrics
// registration (useful in tests that construct multiple trackers).
func New(db *sql.DB, driver storage.Driver, pricing Pricing, registerer prometheus.Registerer) *Tracker {
	t := &Tracker{db: db, driver: driver, pricing: pricing}
	t.tokensCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewengine_tokens_total",
		Help: "Total tokens recorded per provider and model.",
	}, []string{"provider", "model"})
	t.requestsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crewengine_requests_total",
		Help: "Total provider requests recorded per provider and model.",
	}, []string{"provider", "model"})
	if registerer != nil {
		registerer.MustRegister(t.tokensCounter, t.requestsCounter)
	}
	return t
}

func (t *Tracker) q(query string) string { return storage.Rebind(t.driver, query) }

// Track appends one usage row. cost, if nil, is derived from the
// configured pricing table.
func (t *Tracker) Track(ctx context.Context, provider, model string, promptTokens, completionTokens int, cost *float64, metadata map[string]string) error {
	total := promptTokens + completionTokens
	if cost == nil {
		cost = t.pricing.Estimate(provider, model, promptTokens, completionTokens)
	}
	var metaJSON any
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("usage: encode metadata: %w", err)
		}
		metaJSON = string(b)
	}

	_, err := t.db.ExecContext(ctx, t.q(`INSERT INTO token_usage
		(provider, model, prompt_tokens, completion_tokens, total_tokens, cost, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		provider, model, promptTokens, completionTokens, total, cost, metaJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("usage: track: %w", err)
	}

	if t.tokensCounter != nil {
		t.tokensCounter.WithLabelValues(provider, model).Add(float64(total))
		t.requestsCounter.WithLabelValues(provider, model).Inc()
	}
	return nil
}

// GetSummary reports aggregate totals over the last 30 days.
func (t *Tracker) GetSummary(ctx context.Context) (models.UsageSummary, error) {
	monthStart := time.Now().UTC().AddDate(0, 0, -30)
	row := t.db.QueryRowContext(ctx, t.q(`SELECT COALESCE(SUM(total_tokens),0), COUNT(*) FROM token_usage WHERE created_at >= ?`), monthStart)
	var summary models.UsageSummary
	if err := row.Scan(&summary.MonthlyTokens, &summary.MonthlyRequests); err != nil {
		return summary, fmt.Errorf("usage: summary: %w", err)
	}
	if summary.MonthlyRequests > 0 {
		summary.AvgTokensPerRequest = float64(summary.MonthlyTokens) / float64(summary.MonthlyRequests)
	}
	return summary, nil
}

// GetStats returns usage grouped by provider/model, optionally filtered
// and windowed to the last `days` days (0 = no window).
func (t *Tracker) GetStats(ctx context.Context, provider, model string, days int) ([]models.UsageStatRow, error) {
	query := `SELECT provider, model, COUNT(*), COALESCE(SUM(total_tokens),0), COALESCE(SUM(cost),0)
		FROM token_usage WHERE 1=1`
	var args []any
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	if model != "" {
		query += ` AND model = ?`
		args = append(args, model)
	}
	if days > 0 {
		query += ` AND created_at >= ?`
		args = append(args, time.Now().UTC().AddDate(0, 0, -days))
	}
	query += ` GROUP BY provider, model ORDER BY provider, model`

	rows, err := t.db.QueryContext(ctx, t.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("usage: stats: %w", err)
	}
	defer rows.Close()

	var out []models.UsageStatRow
	for rows.Next() {
		var r models.UsageStatRow
		if err := rows.Scan(&r.Provider, &r.Model, &r.Requests, &r.TotalTokens, &r.TotalCost); err != nil {
			return nil, fmt.Errorf("usage: stats scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Cleanup deletes rows older than the given number of days and returns
// the number removed.
func (t *Tracker) Cleanup(ctx context.Context, days int) (int, error) {
	threshold := time.Now().UTC().AddDate(0, 0, -days)
	res, err := t.db.ExecContext(ctx, t.q(`DELETE FROM token_usage WHERE created_at < ?`), threshold)
	if err != nil {
		return 0, fmt.Errorf("usage: cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("usage: cleanup rows affected: %w", err)
	}
	return int(n), nil
}
