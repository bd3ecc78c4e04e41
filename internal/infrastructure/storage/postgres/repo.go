package postgres

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
	"triarb/internal/infrastructure/storage"
)

// Repo Postgres 机会流水（与 sqlite 同表结构）
type Repo struct {
	db *sql.DB
}

func New(dsn string) (*Repo, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	r := &Repo{db: db}
	if err := r.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repo) Close() error { return r.db.Close() }

func (r *Repo) migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS opportunities (
  id TEXT PRIMARY KEY,
  path TEXT NOT NULL,
  start_amount NUMERIC NOT NULL,
  final_amount NUMERIC NOT NULL,
  profit_percent NUMERIC NOT NULL,
  detected_at BIGINT NOT NULL,
  payload JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_detected ON opportunities(detected_at);
`)
	return err
}

func (r *Repo) SaveOpportunity(ctx context.Context, opp *model.Opportunity) error {
	e, err := storage.NewEntry(opp)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO opportunities(id, path, start_amount, final_amount, profit_percent, detected_at, payload)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Path, e.StartAmount, e.FinalAmount, e.ProfitPercent, e.DetectedAt, e.Payload)
	return err
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]port.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, start_amount::text, final_amount::text, profit_percent::text, detected_at, payload::text
		FROM opportunities ORDER BY detected_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []port.JournalEntry
	for rows.Next() {
		var e port.JournalEntry
		if err := rows.Scan(&e.ID, &e.Path, &e.StartAmount, &e.FinalAmount, &e.ProfitPercent, &e.DetectedAt, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ port.OpportunityJournal = (*Repo)(nil)
