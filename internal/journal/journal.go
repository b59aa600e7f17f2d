// Package journal keeps snippet updates that could not be delivered,
// typically at shutdown, so a later `storyctl sync` can replay them.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"plotline/internal/domain"
	"plotline/internal/domain/models/story"
	storySvc "plotline/internal/domain/services/story"
	"plotline/internal/savequeue"
)

// Record is one undelivered update. Later saves for the same snippet replace it.
type Record struct {
	SnippetID  string
	Content    string
	Kind       story.SnippetKind
	LastError  string
	Attempts   int
	RecordedAt time.Time
}

// Updater is satisfied by the story API client
type Updater interface {
	Update(ctx context.Context, id string, req *storySvc.UpdateRequest) (*story.Snippet, error)
}

// ReplayResult counts what a replay did
type ReplayResult struct {
	Delivered int
	// Dropped records pointed at snippets that no longer exist
	Dropped int
	Failed  int
}

// ErrClosed is returned by Save after Close
var ErrClosed = errors.New("journal closed")

// Journal is a sqlite-backed savequeue.Fallback
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time

	// mu lets Close wait for saves already running
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) the journal database at path
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, logger: logger, now: time.Now}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return j, nil
}

// Close waits for running saves, then closes the database
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func (j *Journal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pending_updates (
		snippet_id  TEXT PRIMARY KEY,
		content     TEXT NOT NULL,
		kind        TEXT NOT NULL,
		last_error  TEXT NOT NULL DEFAULT '',
		attempts    INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pending_recorded ON pending_updates(recorded_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Save implements savequeue.Fallback
func (j *Journal) Save(ctx context.Context, entry savequeue.Entry, cause error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return fmt.Errorf("journal %s: %w", entry.ID, ErrClosed)
	}

	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO pending_updates (snippet_id, content, kind, last_error, attempts, recorded_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(snippet_id) DO UPDATE SET
			content = excluded.content,
			kind = excluded.kind,
			last_error = excluded.last_error,
			attempts = 0,
			recorded_at = excluded.recorded_at`,
		entry.ID, entry.Content, string(entry.Kind), lastError, j.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("journal %s: %w", entry.ID, err)
	}
	j.logger.Info("journaled undelivered update", "snippet_id", entry.ID)
	return nil
}

// Pending lists journaled updates, oldest first
func (j *Journal) Pending(ctx context.Context) ([]Record, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT snippet_id, content, kind, last_error, attempts, recorded_at
		FROM pending_updates
		ORDER BY recorded_at, snippet_id`)
	if err != nil {
		return nil, fmt.Errorf("list journal: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var kind string
		if err := rows.Scan(&r.SnippetID, &r.Content, &kind, &r.LastError, &r.Attempts, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan journal: %w", err)
		}
		r.Kind = story.SnippetKind(kind)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Remove deletes a journaled update
func (j *Journal) Remove(ctx context.Context, snippetID string) error {
	if _, err := j.db.ExecContext(ctx, `DELETE FROM pending_updates WHERE snippet_id = ?`, snippetID); err != nil {
		return fmt.Errorf("remove %s: %w", snippetID, err)
	}
	return nil
}

// Replay sends every journaled update. Delivered and dropped records are
// removed; failed ones stay with their attempt count bumped.
func (j *Journal) Replay(ctx context.Context, u Updater) (ReplayResult, error) {
	var result ReplayResult

	records, err := j.Pending(ctx)
	if err != nil {
		return result, err
	}

	for _, r := range records {
		content := r.Content
		kind := r.Kind
		_, err := u.Update(ctx, r.SnippetID, &storySvc.UpdateRequest{Content: &content, Kind: &kind})
		switch {
		case err == nil:
			result.Delivered++
		case errors.Is(err, domain.ErrNotFound):
			result.Dropped++
			j.logger.Warn("dropping journaled update for missing snippet", "snippet_id", r.SnippetID)
		default:
			result.Failed++
			if _, dbErr := j.db.ExecContext(ctx,
				`UPDATE pending_updates SET attempts = attempts + 1, last_error = ? WHERE snippet_id = ?`,
				err.Error(), r.SnippetID,
			); dbErr != nil {
				return result, fmt.Errorf("record attempt %s: %w", r.SnippetID, dbErr)
			}
			continue
		}
		if err := j.Remove(ctx, r.SnippetID); err != nil {
			return result, err
		}
	}

	return result, nil
}
