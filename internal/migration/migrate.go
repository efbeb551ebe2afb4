package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Run applies embedded schema migrations in filename order. Each file is
// applied once; applied versions are tracked in schema_migrations.
func Run(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log = log.Named("migration")

	if err := db.WithContext(ctx).Exec(
		`CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL
		)`,
	).Error; err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := embeddedMigrations.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".up.sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	applied := map[string]bool{}
	var versions []string
	if err := db.WithContext(ctx).Raw(`SELECT version FROM schema_migrations`).Scan(&versions).Error; err != nil {
		return fmt.Errorf("load applied migrations: %w", err)
	}
	for _, version := range versions {
		applied[version] = true
	}

	for _, name := range names {
		version := strings.TrimSuffix(name, ".up.sql")
		if applied[version] {
			continue
		}

		script, err := embeddedMigrations.ReadFile(migrationsDir + "/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, statement := range splitStatements(string(script)) {
				if err := tx.WithContext(ctx).Exec(statement).Error; err != nil {
					return fmt.Errorf("apply %s: %w", name, err)
				}
			}
			return tx.WithContext(ctx).Exec(
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`,
				version,
			).Error
		})
		if err != nil {
			return err
		}
		log.Info("applied migration", zap.String("version", version))
	}

	return nil
}

func splitStatements(script string) []string {
	var statements []string
	for _, chunk := range strings.Split(script, ";") {
		statement := strings.TrimSpace(chunk)
		if statement == "" {
			continue
		}
		statements = append(statements, statement)
	}
	return statements
}
