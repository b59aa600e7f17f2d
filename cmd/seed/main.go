package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"plotline/internal/capabilities"
	"plotline/internal/config"
	"plotline/internal/domain/models/story"
	"plotline/internal/domain/services/generation"
	storyServices "plotline/internal/domain/services/story"
	"plotline/internal/repository/postgres"
	postgresStory "plotline/internal/repository/postgres/story"
	serviceGeneration "plotline/internal/service/generation"
	"plotline/internal/service/generation/providers/lorem"
	serviceStory "plotline/internal/service/story"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed the demo story")
	storyName := flag.String("story", "Demo", "Name of the story to (re)seed")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: Cannot run --drop-tables in production environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required for seeding")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if *schemaOnly {
		log.Printf("Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	} else {
		log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := postgres.DropSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables dropped")
	}

	log.Println("Ensuring database schema is up to date...")
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	log.Printf("Clearing existing story %q...", *storyName)
	if err := clearStory(ctx, pool, tables, *storyName); err != nil {
		log.Fatalf("Failed to clear story: %v", err)
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	snippetRepo := postgresStory.NewSnippetRepository(repoConfig)
	branchRepo := postgresStory.NewBranchRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool, logger)

	capabilityRegistry, err := capabilities.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load model capabilities: %v", err)
	}
	providers := serviceGeneration.NewProviderRegistry(capabilityRegistry, logger)
	providers.Register(lorem.NewProvider(nil))

	snippets := serviceStory.NewSnippetService(snippetRepo, branchRepo, txManager, providers, nil, logger)
	branches := serviceStory.NewBranchService(branchRepo, snippetRepo, nil, logger)

	if err := seedStory(ctx, snippets, branches, *storyName); err != nil {
		log.Fatalf("Failed to seed story: %v", err)
	}

	log.Println("Seeding complete!")
}

// seedStory writes a short main line, an AI alternative for its last
// snippet, and an "alternate" branch that follows the alternative.
func seedStory(ctx context.Context, snippets storyServices.SnippetService, branches storyServices.BranchService, storyName string) error {
	var last *story.Snippet
	for i, line := range seedLines {
		kind := story.KindUser
		if i%2 == 1 {
			kind = story.KindAI
		}
		created, err := snippets.Append(ctx, &storyServices.AppendRequest{
			Story:   storyName,
			Content: line,
			Kind:    kind,
		})
		if err != nil {
			return err
		}
		log.Printf("Created snippet %d/%d (ID: %s)", i+1, len(seedLines), created.ID)
		last = created
	}

	// Regenerating without a branch leaves main on the original line
	maxTokens := 40
	alternative, err := snippets.Regenerate(ctx, &storyServices.RegenerateRequest{
		Story:       storyName,
		TargetID:    last.ID,
		Instruction: "Take the scene somewhere darker.",
		Model:       "lorem-fast",
		Params:      generation.ModelParams{MaxTokens: &maxTokens},
	})
	if err != nil {
		return err
	}
	log.Printf("Created alternative continuation (ID: %s)", alternative.ID)

	branch, err := branches.CreateBranch(ctx, &storyServices.CreateBranchRequest{
		Story:  storyName,
		Name:   "alternate",
		HeadID: alternative.ID,
	})
	if err != nil {
		return err
	}
	log.Printf("Created branch %q at %s", branch.Name, branch.HeadID)

	// Keep the original continuation active for readers following child links
	parentID := *last.ParentID
	return snippets.ChooseActiveChild(ctx, &storyServices.ChooseActiveChildRequest{
		Story:    storyName,
		ParentID: parentID,
		ChildID:  last.ID,
	})
}

// clearStory removes every snippet and branch of a story
func clearStory(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames, storyName string) error {
	if _, err := pool.Exec(ctx, "DELETE FROM "+tables.Branches+" WHERE story = $1", storyName); err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "DELETE FROM "+tables.Snippets+" WHERE story = $1", storyName); err != nil {
		return err
	}
	return nil
}

var seedLines = []string{
	"The morning sun cast long shadows across the cobblestone streets of Eldergrove.",
	"Aria stood at the window of her small apartment, watching the city wake. Today was the day everything would change.",
	"She had received the letter three days ago: an invitation to the Academy of Arcane Arts.",
	"Only the most gifted are chosen, the letter had said. But Aria knew the truth. She wasn't gifted at all.",
}
