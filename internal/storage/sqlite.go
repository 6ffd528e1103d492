package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/sho7650/content-rotation/internal/core"
)

// contentTables maps each content type to the table backing its collection
var contentTables = map[core.ContentType]string{
	core.ContentTypePhoto: "content_photos",
	core.ContentTypeVideo: "content_videos",
}

const contentColumns = "id, url, storage_path, season, holiday, status, prompt, generated_by, metadata, tags, created_at"

// SQLiteStore implements ContentStore and ContentWriter using SQLite
type SQLiteStore struct {
	dbPath        string
	schemaVersion int
	db            *sql.DB
	ready         bool
}

// SQLiteOption configures a SQLiteStore
type SQLiteOption func(*SQLiteStore)

// WithSchemaVersion migrates the database to version instead of the latest one.
// Version 1 has the tables but none of the compound indexes.
func WithSchemaVersion(version int) SQLiteOption {
	return func(s *SQLiteStore) {
		s.schemaVersion = version
	}
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(dbPath string, opts ...SQLiteOption) *SQLiteStore {
	s := &SQLiteStore{
		dbPath:        dbPath,
		schemaVersion: LatestVersion(ContentMigrations()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens the database and migrates the schema
func (s *SQLiteStore) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite3", s.dbPath+"?cache=shared&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=ON")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	if err := s.migrate(ctx, s.schemaVersion); err != nil {
		_ = db.Close()
		s.db = nil
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	s.ready = true
	return nil
}

// Migrations returns a migration manager bound to the open database
func (s *SQLiteStore) Migrations() (*MigrationManager, error) {
	if s.db == nil {
		return nil, ErrNotReady
	}
	return NewMigrationManager(s.db, ContentMigrations()), nil
}

func (s *SQLiteStore) migrate(ctx context.Context, version int) error {
	mm := NewMigrationManager(s.db, ContentMigrations())
	if err := mm.Initialize(ctx); err != nil {
		return err
	}
	return mm.MigrateToVersion(ctx, version)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		s.ready = false
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// IsReady returns whether the store is ready for operations
func (s *SQLiteStore) IsReady() bool {
	return s.ready && s.db != nil
}

// Query runs the filtered query ordered by created_at descending.
// Filtering on season or holiday requires the matching compound index.
func (s *SQLiteStore) Query(ctx context.Context, query ContentQuery) ([]*core.ContentItem, error) {
	if !s.IsReady() {
		return nil, ErrNotReady
	}
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("invalid content query: %w", err)
	}

	table := contentTables[query.Type]

	if kind := query.IndexKind(); kind != "" {
		name := indexName(table, kind)
		exists, err := s.hasIndex(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s on %s", core.ErrIndexUnavailable, name, CollectionName(query.Type))
		}
	}

	var conditions []string
	var args []interface{}

	if query.Season != "" {
		conditions = append(conditions, "season = ?")
		args = append(args, string(query.Season))
	}

	if query.Holiday != "" {
		conditions = append(conditions, "holiday = ?")
		args = append(args, query.Holiday)
	}

	if query.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(query.Status))
	}

	sqlQuery := "SELECT " + contentColumns + " FROM " + table

	if len(conditions) > 0 {
		sqlQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	sqlQuery += " ORDER BY created_at DESC, id ASC"

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	return s.queryItems(ctx, query.Type, sqlQuery, args...)
}

// Scan returns every record of the collection without filtering or ordering
func (s *SQLiteStore) Scan(ctx context.Context, contentType core.ContentType) ([]*core.ContentItem, error) {
	if !s.IsReady() {
		return nil, ErrNotReady
	}
	if err := contentType.Validate(); err != nil {
		return nil, err
	}

	sqlQuery := "SELECT " + contentColumns + " FROM " + contentTables[contentType]
	return s.queryItems(ctx, contentType, sqlQuery)
}

// PutContent inserts or replaces a content item. An empty ID is assigned a UUID.
func (s *SQLiteStore) PutContent(ctx context.Context, item *core.ContentItem) error {
	if !s.IsReady() {
		return ErrNotReady
	}

	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := item.Validate(); err != nil {
		return fmt.Errorf("invalid content item %s: %w", item.ID, err)
	}

	metadataJSON, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	tags := item.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	var holiday sql.NullString
	if item.Holiday != "" {
		holiday = sql.NullString{String: item.Holiday, Valid: true}
	}

	query := `INSERT OR REPLACE INTO ` + contentTables[item.Type] + ` (` + contentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		item.ID, item.URL, item.StoragePath, string(item.Season), holiday,
		string(item.Status), item.Prompt, item.GeneratedBy,
		string(metadataJSON), string(tagsJSON), item.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store content item: %w", err)
	}

	return nil
}

// SetStatus changes the status of a single item
func (s *SQLiteStore) SetStatus(ctx context.Context, contentType core.ContentType, id string, status core.ContentStatus) error {
	if !s.IsReady() {
		return ErrNotReady
	}
	if err := contentType.Validate(); err != nil {
		return err
	}
	if err := status.Validate(); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE "+contentTables[contentType]+" SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("content item %s not found in %s", id, CollectionName(contentType))
	}

	return nil
}

// hasIndex checks sqlite_master for a named index
func (s *SQLiteStore) hasIndex(ctx context.Context, name string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check index %s: %w", name, err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) queryItems(ctx context.Context, contentType core.ContentType, sqlQuery string, args ...interface{}) ([]*core.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []*core.ContentItem{}
	for rows.Next() {
		item := &core.ContentItem{Type: contentType}
		var season, status, metadataJSON, tagsJSON string
		var holiday sql.NullString

		err := rows.Scan(
			&item.ID, &item.URL, &item.StoragePath, &season, &holiday,
			&status, &item.Prompt, &item.GeneratedBy, &metadataJSON, &tagsJSON,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item: %w", err)
		}

		item.Season = core.Season(season)
		item.Status = core.ContentStatus(status)
		item.Holiday = holiday.String

		if err := json.Unmarshal([]byte(metadataJSON), &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata of %s: %w", item.ID, err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags of %s: %w", item.ID, err)
		}

		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

func indexName(table, kind string) string {
	return fmt.Sprintf("idx_%s_%s_status_created", table, kind)
}
