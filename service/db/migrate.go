package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/postgres/*.sql
var migrationsFS embed.FS

// Migrations lists the embedded migration files in the order Migrate applies them.
func Migrations() ([]string, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations/postgres")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
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

// Migrate applies every embedded SQL file in lexical order.
// The migrations are idempotent, so running Migrate twice is harmless.
func (s *Store) Migrate(ctx context.Context) error {
	files, err := Migrations()
	if err != nil {
		return err
	}

	for _, file := range files {
		data, err := fs.ReadFile(migrationsFS, "migrations/postgres/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		s.logger.InfoContext(ctx, "applied migration", "file", file)
	}
	return nil
}
