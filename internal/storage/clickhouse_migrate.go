package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ads-sync/internal/logging"
)

const clickhouseMigrationsTable = "schema_migrations_ch"

// RunClickHouseMigrations applies the .sql files in migrationsPath in name
// order. Applied file names are recorded so reruns only apply new files.
func RunClickHouseMigrations(ctx context.Context, db *ClickHouseDB, migrationsPath string) ([]string, error) {
	logger := logging.FromContext(ctx).WithField("component", "clickhouse-migrate")

	pending, err := pendingMigrationFiles(migrationsPath)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		logger.Info("No ClickHouse migration files found")
		return nil, nil
	}

	if err := db.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+clickhouseMigrationsTable+` (
		filename   String,
		applied_at DateTime DEFAULT now()
	) ENGINE = MergeTree ORDER BY filename`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedClickHouseMigrations(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, filename := range pending {
		if applied[filename] {
			continue
		}

		content, err := os.ReadFile(filepath.Join(migrationsPath, filename)) // #nosec G304 - migrationsPath comes from config
		if err != nil {
			return ran, fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		statements := splitSQLStatements(string(content))
		logger.Infof("Applying %s (%d statements)", filename, len(statements))
		for i, stmt := range statements {
			if err := db.Exec(ctx, stmt); err != nil {
				return ran, fmt.Errorf("statement %d of %s failed: %w", i+1, filename, err)
			}
		}

		if err := db.Exec(ctx, `INSERT INTO `+clickhouseMigrationsTable+` (filename) VALUES (?)`, filename); err != nil {
			return ran, fmt.Errorf("failed to record migration %s: %w", filename, err)
		}
		ran = append(ran, filename)
	}

	return ran, nil
}

// ClickHouseMigrationVersion returns the last applied migration file, or "" when none
func ClickHouseMigrationVersion(ctx context.Context, db *ClickHouseDB) (string, error) {
	applied, err := appliedClickHouseMigrations(ctx, db)
	if err != nil {
		return "", err
	}
	var last string
	for name := range applied {
		if name > last {
			last = name
		}
	}
	return last, nil
}

func pendingMigrationFiles(migrationsPath string) ([]string, error) {
	entries, err := os.ReadDir(migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func appliedClickHouseMigrations(ctx context.Context, db *ClickHouseDB) (map[string]bool, error) {
	rows, err := db.Conn().Query(ctx, `SELECT filename FROM `+clickhouseMigrationsTable)
	if err != nil {
		if strings.Contains(err.Error(), "UNKNOWN_TABLE") || strings.Contains(err.Error(), "doesn't exist") {
			return map[string]bool{}, nil
		}
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// splitSQLStatements splits a migration file into statements, dropping
// comment-only lines and trailing semicolons
func splitSQLStatements(content string) []string {
	var statements []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSuffix(strings.TrimSpace(current.String()), ";")
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()

	return statements
}
