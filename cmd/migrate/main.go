package main

import (
	"errors"
	"flag"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/davidleathers/compliance-gateway/internal/infrastructure/config"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/database"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		action     = flag.String("action", "up", "Migration action: up, down, status, force")
		steps      = flag.Int("steps", 0, "Number of migrations to apply or revert (0 = all)")
		version    = flag.Int("version", -1, "Schema version for the force action")
	)
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg.Database.URL, *action, *steps, *version, logger); err != nil {
		logger.Fatal("Migration failed", zap.String("action", *action), zap.Error(err))
	}
}

func run(databaseURL, action string, steps, version int, logger *zap.Logger) error {
	if databaseURL == "" {
		return errors.New("database url is required")
	}

	m, db, err := database.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action {
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
	case "force":
		if version < 0 {
			return errors.New("version is required for the force action")
		}
		err = m.Force(version)
	case "status":
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", action, err)
	}

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		logger.Info("No migrations applied", zap.String("action", action))
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	default:
		logger.Info("Schema version",
			zap.String("action", action),
			zap.Uint("version", current),
			zap.Bool("dirty", dirty),
		)
	}
	return nil
}
