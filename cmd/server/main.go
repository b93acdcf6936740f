package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"concilia/internal/advisor"
	"concilia/internal/config"
	"concilia/internal/database"
	"concilia/internal/decision"
	"concilia/internal/handlers"
	"concilia/internal/matching"
	"concilia/internal/repositories"
	"concilia/internal/services"
)

func main() {
	migrateCmd := flag.String("migrate", "", "Migration command (up/down/version)")
	steps := flag.Int("steps", 0, "Number of migration steps (0 means all)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.LoadConfig()
	if err != nil {
		fatal("Error loading config", err)
	}

	db, err := database.NewConnection(cfg)
	if err != nil {
		fatal("Error connecting to database", err)
	}
	defer db.Close()

	if *migrateCmd != "" {
		handleMigration(cfg, *migrateCmd, *steps)
		return
	}

	transactionRepo := repositories.NewTransactionRepository(db)
	candidateRepo := repositories.NewCandidateRepository(db)
	counterpartyRepo := repositories.NewCounterpartyRepository(db)
	reconciliationRepo := repositories.NewReconciliationRepository(db)
	patternRepo := repositories.NewPatternRepository(db)

	engine := matching.NewEngine(matching.Config{
		MaxCombinationSize: cfg.Matcher.MaxCombinationSize,
		MaxCombinations:    cfg.Matcher.MaxCombinations,
	})
	policy := decision.NewPolicy(
		db,
		transactionRepo,
		candidateRepo,
		reconciliationRepo,
		patternRepo,
		engine,
		advisor.New(cfg.Advisor),
		cfg.Matcher,
	)
	reconciliationService := services.NewReconciliationService(
		transactionRepo,
		candidateRepo,
		counterpartyRepo,
		reconciliationRepo,
		policy,
		cfg.Matcher,
	)
	ingestionService := services.NewIngestionService(db, transactionRepo)

	router := handlers.SetupRouter(reconciliationService, ingestionService)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		slog.Info("Server is running", "address", cfg.ServerAddress)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fatal("HTTP server error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit
	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		fatal("Server shutdown failed", err)
	}
	slog.Info("Server exited gracefully")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

func handleMigration(cfg *config.Config, command string, steps int) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.Migration.Dir),
		cfg.GetMigrationDBURL(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "no change") {
			slog.Info("No migration changes to apply")
			return
		}
		fatal("Failed to initialize migrate", err)
	}
	defer m.Close()

	switch command {
	case "up":
		if steps > 0 {
			err = m.Steps(steps)
		} else {
			err = m.Up()
		}
	case "down":
		if steps > 0 {
			err = m.Steps(-steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verErr := m.Version()
		if verErr != nil {
			if verErr == migrate.ErrNilVersion {
				slog.Info("No migrations have been applied yet")
				return
			}
			fatal("Failed to get version", verErr)
		}
		fmt.Printf("Current migration version: %d (dirty: %v)\n", version, dirty)
		return
	default:
		fatal("Invalid migration command", fmt.Errorf("%s", command))
	}

	if err != nil {
		if err == migrate.ErrNoChange {
			slog.Info("No migration changes to apply")
			return
		}
		fatal("Migration failed", err)
	}

	slog.Info("Migration completed successfully")
}
