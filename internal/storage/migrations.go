package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// Migration represents a database migration
type Migration struct {
	Version     int       `json:"version"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Up          string    `json:"up"`
	Down        string    `json:"down"`
	AppliedAt   time.Time `json:"applied_at"`
}

// MigrationManager handles database migrations
type MigrationManager struct {
	db         *sql.DB
	migrations map[int]Migration
}

// MigrationRunner provides migration execution capabilities
type MigrationRunner interface {
	Initialize(ctx context.Context) error
	GetCurrentVersion(ctx context.Context) (int, error)
	ApplyMigration(ctx context.Context, migration Migration) error
	RollbackMigration(ctx context.Context, version int) error
	ListAppliedMigrations(ctx context.Context) ([]Migration, error)
	MigrateToVersion(ctx context.Context, targetVersion int) error
}

// Ensure MigrationManager implements MigrationRunner
var _ MigrationRunner = (*MigrationManager)(nil)

// ContentMigrations returns the schema history of the content tables.
// Version 1 creates the tables, later versions add the compound indexes the
// filtered queries depend on.
func ContentMigrations() []Migration {
	var migrations []Migration

	tables := []string{}
	for _, table := range contentTables {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	create, drop := "", ""
	for _, table := range tables {
		create += fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			storage_path TEXT NOT NULL DEFAULT '',
			season TEXT NOT NULL,
			holiday TEXT,
			status TEXT NOT NULL,
			prompt TEXT NOT NULL DEFAULT '',
			generated_by TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL,
			tags TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`, table)
		drop += fmt.Sprintf("DROP TABLE IF EXISTS %s;", table)
	}
	migrations = append(migrations, Migration{
		Version:     1,
		Name:        "create_content_tables",
		Description: "content_photos and content_videos tables",
		Up:          create,
		Down:        drop,
	})

	seasonUp, seasonDown := "", ""
	holidayUp, holidayDown := "", ""
	for _, table := range tables {
		seasonUp += fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(season, status, created_at DESC, id);",
			indexName(table, "season"), table)
		seasonDown += fmt.Sprintf("DROP INDEX IF EXISTS %s;", indexName(table, "season"))
		holidayUp += fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(holiday, status, created_at DESC, id);",
			indexName(table, "holiday"), table)
		holidayDown += fmt.Sprintf("DROP INDEX IF EXISTS %s;", indexName(table, "holiday"))
	}
	migrations = append(migrations,
		Migration{
			Version:     2,
			Name:        "add_season_indexes",
			Description: "compound index for season + status ordered by created_at",
			Up:          seasonUp,
			Down:        seasonDown,
		},
		Migration{
			Version:     3,
			Name:        "add_holiday_indexes",
			Description: "compound index for holiday + status ordered by created_at",
			Up:          holidayUp,
			Down:        holidayDown,
		},
	)

	return migrations
}

// LatestVersion returns the highest version in migrations
func LatestVersion(migrations []Migration) int {
	latest := 0
	for _, m := range migrations {
		if m.Version > latest {
			latest = m.Version
		}
	}
	return latest
}

// NewMigrationManager creates a new migration manager over an open database
func NewMigrationManager(db *sql.DB, migrations []Migration) *MigrationManager {
	known := make(map[int]Migration, len(migrations))
	for _, m := range migrations {
		known[m.Version] = m
	}
	return &MigrationManager{
		db:         db,
		migrations: known,
	}
}

// Initialize sets up the migration tracking table
func (mm *MigrationManager) Initialize(ctx context.Context) error {
	createSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := mm.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return nil
}

// HasMigrationTable checks if the migration tracking table exists
func (mm *MigrationManager) HasMigrationTable(ctx context.Context) (bool, error) {
	query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_migrations'`
	var count int
	err := mm.db.QueryRowContext(ctx, query).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration table: %w", err)
	}
	return count > 0, nil
}

// GetCurrentVersion returns the current database schema version
func (mm *MigrationManager) GetCurrentVersion(ctx context.Context) (int, error) {
	query := `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`
	var version int
	err := mm.db.QueryRowContext(ctx, query).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// IsMigrationApplied checks if a specific migration version has been applied
func (mm *MigrationManager) IsMigrationApplied(ctx context.Context, version int) (bool, error) {
	query := `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`
	var count int
	err := mm.db.QueryRowContext(ctx, query, version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// ApplyMigration applies a single migration
func (mm *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	// Validate migration
	if migration.Version <= 0 {
		return fmt.Errorf("migration version must be positive, got %d", migration.Version)
	}
	if migration.Name == "" {
		return fmt.Errorf("migration name cannot be empty")
	}
	if migration.Up == "" {
		return fmt.Errorf("migration Up script cannot be empty")
	}

	applied, err := mm.IsMigrationApplied(ctx, migration.Version)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("migration version %d already applied", migration.Version)
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d (%s): %w", migration.Version, migration.Name, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		migration.Version, migration.Name, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
	}

	// Remember ad-hoc migrations so they can be rolled back
	if _, ok := mm.migrations[migration.Version]; !ok {
		mm.migrations[migration.Version] = migration
	}

	return nil
}

// RollbackMigration runs the Down script of an applied migration and removes its record
func (mm *MigrationManager) RollbackMigration(ctx context.Context, version int) error {
	applied, err := mm.IsMigrationApplied(ctx, version)
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("migration version %d not applied", version)
	}

	migration, ok := mm.migrations[version]
	if !ok {
		return fmt.Errorf("migration version %d is unknown, cannot roll back", version)
	}

	tx, err := mm.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start rollback transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if migration.Down != "" {
		if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
			return fmt.Errorf("failed to roll back migration %d (%s): %w", version, migration.Name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = ?`, version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rollback: %w", err)
	}

	return nil
}

// ListAppliedMigrations returns all applied migrations
func (mm *MigrationManager) ListAppliedMigrations(ctx context.Context) ([]Migration, error) {
	query := `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`
	rows, err := mm.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var migrations []Migration
	for rows.Next() {
		var migration Migration
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		migrations = append(migrations, migration)
	}

	return migrations, rows.Err()
}

// MigrateToVersion applies or rolls back known migrations until targetVersion is reached
func (mm *MigrationManager) MigrateToVersion(ctx context.Context, targetVersion int) error {
	currentVersion, err := mm.GetCurrentVersion(ctx)
	if err != nil {
		return err
	}

	versions := make([]int, 0, len(mm.migrations))
	for v := range mm.migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)

	if targetVersion > currentVersion {
		for _, v := range versions {
			if v <= currentVersion {
				continue
			}
			if v > targetVersion {
				break
			}
			if err := mm.ApplyMigration(ctx, mm.migrations[v]); err != nil {
				return err
			}
		}
	} else if targetVersion < currentVersion {
		for i := len(versions) - 1; i >= 0; i-- {
			v := versions[i]
			if v > currentVersion || v <= targetVersion {
				continue
			}
			if err := mm.RollbackMigration(ctx, v); err != nil {
				return err
			}
		}
	}

	return nil
}
