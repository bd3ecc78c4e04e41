package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"triarb/internal/application/port"
	"triarb/internal/domain/model"
	"triarb/internal/infrastructure/storage"
)

// Repo SQLite 机会流水
type Repo struct {
	db *sql.DB
}

func New(path string) (*Repo, error) {
	// ensure directory exists
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

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
  start_amount TEXT NOT NULL,
  final_amount TEXT NOT NULL,
  profit_percent TEXT NOT NULL,
  detected_at INTEGER NOT NULL,
  payload TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_opportunities_detected ON opportunities(detected_at);
CREATE INDEX IF NOT EXISTS idx_opportunities_path ON opportunities(path);
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
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, e.ID, e.Path, e.StartAmount, e.FinalAmount, e.ProfitPercent, e.DetectedAt, e.Payload)
	return err
}

func (r *Repo) ListRecent(ctx context.Context, limit int) ([]port.JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, start_amount, final_amount, profit_percent, detected_at, payload
		FROM opportunities ORDER BY detected_at DESC, id LIMIT ?`, limit)
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
