package main

import (
	"context"
	"fmt"
	"os"

	"github.com/harmonium-app/harmonium/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.NewDatabase(config.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}
	defer db.Close()

	shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)

	r.logger.Info("running database migrations")
	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	return nil
}

// ConfigInit creates a config file from the embedded template.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%w: %s already exists", shared.ErrInvalidArgument, configPath)
	}

	if err := shared.CreateConfigFile(configPath); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	r.logger.Info("config file created", "path", configPath)
	r.writePlain("Edit %s and fill in credentials.spotify and security before serving.\n", configPath)
	return nil
}

// ConfigShow prints the resolved configuration with secrets redacted.
func (r *Runner) ConfigShow(ctx context.Context, cmd *cli.Command) error {
	config := r.loadConfig(cmd.String("config"))

	redacted := *config
	redacted.Credentials.Spotify.ClientSecret = redact(config.Credentials.Spotify.ClientSecret)
	redacted.Security.JWTSecret = redact(config.Security.JWTSecret)
	redacted.Security.EncryptionKey = redact(config.Security.EncryptionKey)
	redacted.Redis.Password = redact(config.Redis.Password)

	return r.writeJSON(redacted, cmd.Bool("pretty"))
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
