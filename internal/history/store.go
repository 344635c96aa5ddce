package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sounderlabs/voxd/internal/config"
	"github.com/sounderlabs/voxd/internal/protocol"
)

// Record is one persisted generation. Immutable once created; only deletion
// removes it.
type Record struct {
	ID         string
	Text       string
	VoiceID    string
	SampleRate int
	Samples    []float32
	CreatedAt  time.Time
}

// Duration reports the clip length in seconds.
func (r Record) Duration() float64 {
	if r.SampleRate <= 0 {
		return 0
	}
	return float64(len(r.Samples)) / float64(r.SampleRate)
}

// Store wraps the SQLite-backed generation history.
type Store struct {
	db    *sql.DB
	cfg   config.HistoryConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the history store according to config.
func Open(ctx context.Context, cfg config.HistoryConfig, log *slog.Logger) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("history vacuum failed", slog.String("error", err.Error()))
		}
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS generations (
    id TEXT PRIMARY KEY,
    text TEXT NOT NULL,
    voice_id TEXT NOT NULL,
    sample_rate INTEGER NOT NULL,
    pcm BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// LoadAll retrieves every record, most recently created first.
func (s *Store) LoadAll(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, voice_id, sample_rate, pcm, created_at
		 FROM generations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var pcm []byte
		var created string
		if err := rows.Scan(&r.ID, &r.Text, &r.VoiceID, &r.SampleRate, &pcm, &created); err != nil {
			return nil, err
		}
		ts, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, fmt.Errorf("record %s: parse created_at: %w", r.ID, err)
		}
		r.CreatedAt = ts
		samples, err := protocol.DecodePCM(pcm)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", r.ID, err)
		}
		r.Samples = samples
		records = append(records, r)
	}
	return records, rows.Err()
}

// ReplaceAll mirrors the in-memory history into the store with a full
// clear-then-insert, keeping the durable set from drifting from memory.
// History is small and locally bounded, so the O(n) rewrite is acceptable.
func (s *Store) ReplaceAll(ctx context.Context, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM generations`); err != nil {
		return err
	}
	keep := records
	if s.cfg.MaxRecords > 0 && len(keep) > s.cfg.MaxRecords {
		keep = keep[:s.cfg.MaxRecords]
	}
	for _, r := range keep {
		created := r.CreatedAt
		if created.IsZero() {
			created = s.clock().UTC()
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO generations(id, text, voice_id, sample_rate, pcm, created_at)
			 VALUES(?, ?, ?, ?, ?, ?)`,
			r.ID, r.Text, r.VoiceID, r.SampleRate, protocol.EncodePCM(r.Samples), created.Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

// Remove deletes a single record, independently of the full-replace path.
func (s *Store) Remove(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM generations WHERE id = ?`, id)
	return err
}
