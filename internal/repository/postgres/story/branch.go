package story

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"plotline/internal/domain"
	storyModels "plotline/internal/domain/models/story"
	storyRepo "plotline/internal/domain/repositories/story"
	"plotline/internal/repository/postgres"
)

// PostgresBranchRepository implements BranchRepository using PostgreSQL
type PostgresBranchRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewBranchRepository creates a new PostgresBranchRepository
func NewBranchRepository(config *postgres.RepositoryConfig) storyRepo.BranchRepository {
	return &PostgresBranchRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

func branchNotFound(storyName, name string) error {
	return fmt.Errorf("branch %s/%s: %w", storyName, name, domain.ErrNotFound)
}

// List returns a story's branches ordered by created_at
func (r *PostgresBranchRepository) List(ctx context.Context, storyName string) ([]storyModels.Branch, error) {
	query := fmt.Sprintf(`
		SELECT story, name, head_id, created_at
		FROM %s
		WHERE story = $1
		ORDER BY created_at, name
	`, r.tables.Branches)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, storyName)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	defer rows.Close()

	branches := []storyModels.Branch{}
	for rows.Next() {
		var b storyModels.Branch
		if err := rows.Scan(&b.Story, &b.Name, &b.HeadID, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate branches: %w", err)
	}
	return branches, nil
}

// Get returns a branch by story and name
func (r *PostgresBranchRepository) Get(ctx context.Context, storyName, name string) (*storyModels.Branch, error) {
	query := fmt.Sprintf(`
		SELECT story, name, head_id, created_at
		FROM %s
		WHERE story = $1 AND name = $2
	`, r.tables.Branches)

	var b storyModels.Branch
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, storyName, name).Scan(&b.Story, &b.Name, &b.HeadID, &b.CreatedAt)
	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, branchNotFound(storyName, name)
		}
		return nil, fmt.Errorf("get branch: %w", err)
	}
	return &b, nil
}

// Create registers a new branch pointer
func (r *PostgresBranchRepository) Create(ctx context.Context, branch *storyModels.Branch) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (story, name, head_id)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, r.tables.Branches)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, branch.Story, branch.Name, branch.HeadID).Scan(&branch.CreatedAt)
	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("branch %q already exists in story %q", branch.Name, branch.Story),
				ResourceType: "branch",
				ResourceID:   branch.Name,
			}
		}
		if postgres.IsPgInvalidTextError(err) {
			return fmt.Errorf("snippet %s: %w", branch.HeadID, domain.ErrNotFound)
		}
		return fmt.Errorf("create branch: %w", err)
	}
	return nil
}

// UpdateHead moves a branch pointer
func (r *PostgresBranchRepository) UpdateHead(ctx context.Context, storyName, name, headID string) error {
	query := fmt.Sprintf(`UPDATE %s SET head_id = $3 WHERE story = $1 AND name = $2`, r.tables.Branches)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, storyName, name, headID)
	if err != nil {
		return fmt.Errorf("update branch head: %w", err)
	}
	if result.RowsAffected() == 0 {
		return branchNotFound(storyName, name)
	}
	return nil
}

// Delete removes a branch pointer
func (r *PostgresBranchRepository) Delete(ctx context.Context, storyName, name string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE story = $1 AND name = $2`, r.tables.Branches)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, storyName, name)
	if err != nil {
		return fmt.Errorf("delete branch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return branchNotFound(storyName, name)
	}
	return nil
}
