package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/trackshift/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	r.logger.Info("config file created", "path", r.configPath)
	return r.result(map[string]string{"config": r.configPath}, func() error {
		r.writePlain("✓ Config written to %s\n", r.configPath)
		r.writePlainln("Next steps:")
		r.writePlain("1. Fill in [identity], [spotify] and [conversion]\n")
		r.writePlain("2. Run 'trackshift setup init-db'\n")
		return nil
	})
}

// SetupDatabase creates the database file and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	path := r.cfg().Database.Path
	r.logger.Info("initializing database", "path", path)

	db, err := r.database()
	if err != nil {
		return err
	}

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.logger.Infof("setup complete for database: %v", path)
	return r.result(map[string]string{"database": path}, func() error {
		return r.writePlain("✓ Database ready at %s\n", path)
	})
}

// SetupMigrate applies pending migrations and lists the applied versions.
func (r *Runner) SetupMigrate(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	applied, pending, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	return r.result(map[string]any{"applied": applied, "pending": pending}, func() error {
		r.writePlain("Applied migrations: %d (pending: %d)\n", len(applied), pending)
		for _, m := range applied {
			r.writePlain("  %04d  %s\n", m.Version, m.AppliedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	})
}

// SetupRollback rolls back the most recent migration.
func (r *Runner) SetupRollback(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}

	if err := shared.RollbackMigration(db); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	_, pending, err := shared.MigrationStatus(db)
	if err != nil {
		return err
	}

	r.logger.Info("rolled back migration", "pending", pending)
	return r.result(map[string]int{"pending": pending}, func() error {
		return r.writePlain("✓ Rolled back the latest migration (%d pending)\n", pending)
	})
}
