package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"loyalty-hub/internal/config"
)

func newMigrateCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := runMigrate(dir); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied successfully")
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "migration directory (default /migrations, then ./migrations)")
	return cmd
}

func runMigrate(dir string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	migrationDir := dir
	if migrationDir == "" {
		migrationDir = "/migrations"
		if _, statErr := os.Stat(migrationDir); statErr != nil {
			migrationDir = "./migrations"
		}
	}

	if err := runMigrateUp("file://"+migrationDir, cfg.Database.URL); err != nil {
		normalizedDir, normalizeErr := normalizeMigrationDir(migrationDir)
		if normalizeErr != nil {
			return fmt.Errorf("run migrations failed: %w", err)
		}
		defer func() {
			_ = os.RemoveAll(normalizedDir)
		}()

		if retryErr := runMigrateUp("file://"+normalizedDir, cfg.Database.URL); retryErr != nil {
			return fmt.Errorf("run migrations failed: %w; fallback failed: %v", err, retryErr)
		}
	}
	return nil
}

func runMigrateUp(sourceURL, databaseURL string) error {
	migrator, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrator failed: %w", err)
	}
	defer migrator.Close() //nolint:errcheck

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations failed: %w", err)
	}
	return nil
}

var (
	flywayMigrationPattern  = regexp.MustCompile(`^V([0-9]+)__(.+)\.(up|down)\.sql$`)
	migrateMigrationPattern = regexp.MustCompile(`^([0-9]+)_(.+)\.(up|down)\.sql$`)
)

// normalizeMigrationDir copies migrations into a temp dir, renaming
// V1__name.up.sql files to the 1_name.up.sql form golang-migrate expects.
func normalizeMigrationDir(srcDir string) (string, error) {
	entries, err := os.ReadDir(srcDir)
	if err != nil {
		return "", fmt.Errorf("read migration dir failed: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if flywayMigrationPattern.MatchString(name) || migrateMigrationPattern.MatchString(name) {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	if len(files) == 0 {
		return "", errors.New("no migration files found")
	}

	tmpDir, err := os.MkdirTemp("", "loyalty-migrations-*")
	if err != nil {
		return "", fmt.Errorf("create temp migration dir failed: %w", err)
	}

	for _, name := range files {
		targetName := name
		if match := flywayMigrationPattern.FindStringSubmatch(name); len(match) == 4 {
			targetName = fmt.Sprintf("%s_%s.%s.sql", match[1], match[2], match[3])
		}

		if err := copyFile(filepath.Join(srcDir, name), filepath.Join(tmpDir, targetName)); err != nil {
			_ = os.RemoveAll(tmpDir)
			return "", fmt.Errorf("copy migration %s failed: %w", name, err)
		}
	}

	return tmpDir, nil
}

func copyFile(srcPath, dstPath string) error {
	// #nosec G304 -- source path is derived from migration directory listing.
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = src.Close()
	}()

	// #nosec G304 -- destination path is created in a temporary directory under our control.
	dst, err := os.Create(dstPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = dst.Close()
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return err
	}

	return dst.Sync()
}
