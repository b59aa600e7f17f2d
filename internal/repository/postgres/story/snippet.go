package story

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"plotline/internal/config"
	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	storyRepo "plotline/internal/domain/repositories/story"
	"plotline/internal/repository/postgres"
)

const snippetColumns = `id, story, parent_id, child_id, kind, content, created_at`

// PostgresSnippetRepository implements SnippetRepository using PostgreSQL
type PostgresSnippetRepository struct {
	pool     *pgxpool.Pool
	tables   *postgres.TableNames
	logger   *slog.Logger
	maxDepth int
}

// NewSnippetRepository creates a new PostgresSnippetRepository
func NewSnippetRepository(cfg *postgres.RepositoryConfig) storyRepo.SnippetRepository {
	maxDepth := cfg.MaxPathDepth
	if maxDepth <= 0 {
		maxDepth = config.MaxPathDepth
	}
	return &PostgresSnippetRepository{
		pool:     cfg.Pool,
		tables:   cfg.Tables,
		logger:   cfg.Logger,
		maxDepth: maxDepth,
	}
}

// scanner is implemented by both pgx.Row and pgx.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanSnippet(row scanner) (*storyModels.Snippet, error) {
	var s storyModels.Snippet
	err := row.Scan(
		&s.ID,
		&s.Story,
		&s.ParentID,
		&s.ChildID,
		&s.Kind,
		&s.Content,
		&s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func notFound(id string) error {
	return fmt.Errorf("snippet %s: %w", id, domain.ErrNotFound)
}

// Create inserts a snippet
func (r *PostgresSnippetRepository) Create(ctx context.Context, snippet *storyModels.Snippet) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (story, parent_id, child_id, kind, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.Snippets)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		snippet.Story,
		snippet.ParentID,
		snippet.ChildID,
		snippet.Kind,
		snippet.Content,
	).Scan(&snippet.ID, &snippet.CreatedAt)
	if err != nil {
		if postgres.IsPgForeignKeyError(err) || postgres.IsPgInvalidTextError(err) {
			parent := "<nil>"
			if snippet.ParentID != nil {
				parent = *snippet.ParentID
			}
			return notFound(parent)
		}
		if postgres.IsPgCheckViolation(err) {
			return fmt.Errorf("kind %q: %w", snippet.Kind, domain.ErrValidation)
		}
		return fmt.Errorf("create snippet: %w", err)
	}

	return nil
}

// Get retrieves a snippet by ID
func (r *PostgresSnippetRepository) Get(ctx context.Context, id string) (*storyModels.Snippet, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, snippetColumns, r.tables.Snippets)

	executor := postgres.GetExecutor(ctx, r.pool)
	snippet, err := scanSnippet(executor.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, notFound(id)
		}
		return nil, fmt.Errorf("get snippet: %w", err)
	}
	return snippet, nil
}

// GetPath walks parent links from headID to the root with a recursive CTE
func (r *PostgresSnippetRepository) GetPath(ctx context.Context, headID string) ([]storyModels.Snippet, error) {
	query := fmt.Sprintf(`
		WITH RECURSIVE snippet_path AS (
			SELECT %[1]s, 1 AS depth
			FROM %[2]s
			WHERE id = $1

			UNION ALL

			SELECT s.id, s.story, s.parent_id, s.child_id, s.kind, s.content, s.created_at, sp.depth + 1
			FROM %[2]s s
			INNER JOIN snippet_path sp ON s.id = sp.parent_id
			WHERE sp.depth < %[3]d
		)
		SELECT %[1]s
		FROM snippet_path
		ORDER BY depth DESC
	`, snippetColumns, r.tables.Snippets, r.maxDepth)

	path, err := r.querySnippets(ctx, query, headID)
	if err != nil {
		if postgres.IsPgInvalidTextError(err) {
			return nil, notFound(headID)
		}
		return nil, fmt.Errorf("get path: %w", err)
	}
	if len(path) == 0 {
		return nil, notFound(headID)
	}
	// The walk stops at the limit; a parent above the last row means the root was never reached
	if len(path) >= r.maxDepth && path[0].ParentID != nil {
		return nil, fmt.Errorf("%w: path to %s exceeds %d snippets", domain.ErrValidation, headID, r.maxDepth)
	}
	return path, nil
}

// ListChildren returns a snippet's children ordered by creation
func (r *PostgresSnippetRepository) ListChildren(ctx context.Context, parentID string) ([]storyModels.Snippet, error) {
	if _, err := r.Get(ctx, parentID); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE parent_id = $1
		ORDER BY created_at, id
	`, snippetColumns, r.tables.Snippets)

	children, err := r.querySnippets(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	return children, nil
}

// ListByStory returns every snippet of a story ordered by creation
func (r *PostgresSnippetRepository) ListByStory(ctx context.Context, storyName string) ([]storyModels.Snippet, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE story = $1
		ORDER BY created_at, id
	`, snippetColumns, r.tables.Snippets)

	snippets, err := r.querySnippets(ctx, query, storyName)
	if err != nil {
		return nil, fmt.Errorf("list story snippets: %w", err)
	}
	return snippets, nil
}

func (r *PostgresSnippetRepository) querySnippets(ctx context.Context, query string, args ...any) ([]storyModels.Snippet, error) {
	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snippets := []storyModels.Snippet{}
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snippet: %w", err)
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return snippets, nil
}

// UpdateContent sets content and/or kind (COALESCE keeps unspecified fields)
func (r *PostgresSnippetRepository) UpdateContent(ctx context.Context, id string, content *string, kind *storyModels.SnippetKind) (*storyModels.Snippet, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET content = COALESCE($2, content),
		    kind = COALESCE($3, kind)
		WHERE id = $1
		RETURNING %s
	`, r.tables.Snippets, snippetColumns)

	executor := postgres.GetExecutor(ctx, r.pool)
	snippet, err := scanSnippet(executor.QueryRow(ctx, query, id, content, kind))
	if err != nil {
		if postgres.IsPgNoRowsError(err) || postgres.IsPgInvalidTextError(err) {
			return nil, notFound(id)
		}
		if postgres.IsPgCheckViolation(err) {
			return nil, fmt.Errorf("kind: %w", domain.ErrValidation)
		}
		return nil, fmt.Errorf("update snippet: %w", err)
	}
	return snippet, nil
}

// SetParent re-parents a snippet
func (r *PostgresSnippetRepository) SetParent(ctx context.Context, id string, parentID *string) error {
	if parentID != nil {
		ancestors, err := r.GetPath(ctx, *parentID)
		if err != nil {
			return err
		}
		for _, a := range ancestors {
			if a.ID == id {
				return fmt.Errorf("snippet %s cannot be its own ancestor: %w", id, domain.ErrValidation)
			}
		}
	}

	query := fmt.Sprintf(`UPDATE %s SET parent_id = $2 WHERE id = $1`, r.tables.Snippets)
	return r.execOne(ctx, id, query, id, parentID)
}

// SetActiveChild points child_id at one of the snippet's children
func (r *PostgresSnippetRepository) SetActiveChild(ctx context.Context, id string, childID *string) error {
	if childID != nil {
		child, err := r.Get(ctx, *childID)
		if err != nil {
			return err
		}
		if child.ParentID == nil || *child.ParentID != id {
			return fmt.Errorf("snippet %s is not a child of %s: %w", *childID, id, domain.ErrValidation)
		}
	}

	query := fmt.Sprintf(`UPDATE %s SET child_id = $2 WHERE id = $1`, r.tables.Snippets)
	return r.execOne(ctx, id, query, id, childID)
}

// Delete removes a snippet row and clears any active pointer at it
func (r *PostgresSnippetRepository) Delete(ctx context.Context, id string) error {
	executor := postgres.GetExecutor(ctx, r.pool)

	clearQuery := fmt.Sprintf(`UPDATE %s SET child_id = NULL WHERE child_id = $1`, r.tables.Snippets)
	if _, err := executor.Exec(ctx, clearQuery, id); err != nil {
		if postgres.IsPgInvalidTextError(err) {
			return notFound(id)
		}
		return fmt.Errorf("clear active pointers: %w", err)
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.Snippets)
	err := r.execOne(ctx, id, query, id)
	if postgres.IsPgForeignKeyError(err) {
		return fmt.Errorf("snippet %s still has children: %w", id, domain.ErrValidation)
	}
	return err
}

func (r *PostgresSnippetRepository) execOne(ctx context.Context, id, query string, args ...any) error {
	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, args...)
	if err != nil {
		if postgres.IsPgInvalidTextError(err) {
			return notFound(id)
		}
		if postgres.IsPgForeignKeyError(err) {
			return err
		}
		return fmt.Errorf("update snippet %s: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}
