package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const insertWatchSQLite = `
INSERT INTO watch_requests (
    id, product_name, store_key, product_url, target_type, target_value,
    tracking_mode, phone, consent_given, is_active, last_price, last_checked_at,
    created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`

// SQLiteWatchStore is the single-node watch store used when no Postgres URL
// is configured.
type SQLiteWatchStore struct {
	db *sql.DB
}

// OpenSQLiteWatchStore opens (or creates) the database at dsn and migrates it.
func OpenSQLiteWatchStore(ctx context.Context, dsn string) (*SQLiteWatchStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// sqlite serializes writers; a single connection also keeps :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	if err := Migrate(ctx, db, goose.DialectSQLite3); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteWatchStore{db: db}, nil
}

func (s *SQLiteWatchStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteWatchStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteWatchStore) CreateWatch(ctx context.Context, w *model.WatchRequest) error {
	stampWatch(w)
	var lastChecked *string
	if w.LastCheckedAt != nil {
		v := w.LastCheckedAt.UTC().Format(time.RFC3339Nano)
		lastChecked = &v
	}
	res, err := s.db.ExecContext(ctx, insertWatchSQLite,
		w.ID.String(), w.ProductName, w.StoreKey, w.ProductURL, string(w.TargetType), w.TargetValue,
		nullableString(w.TrackingMode), w.Phone, w.ConsentGiven, w.IsActive, w.LastPrice, lastChecked,
		w.CreatedAt.Format(time.RFC3339Nano), w.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		logx.Error().Err(err).Str("watch_id", w.ID.String()).Msg("failed to insert watch request")
		return errx.WrapStorage(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.WrapStorage(err)
	}
	if n > 0 {
		return nil
	}
	existing, err := s.GetWatch(ctx, w.ID)
	if err != nil {
		return err
	}
	return adoptExisting(w, existing)
}

// GetWatch loads a watch by id; it returns a not_found error when absent.
func (s *SQLiteWatchStore) GetWatch(ctx context.Context, id uuid.UUID) (*model.WatchRequest, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT product_name, store_key, product_url, target_type, target_value,
       COALESCE(tracking_mode, ''), phone, consent_given, is_active,
       last_price, last_checked_at, created_at, updated_at
FROM watch_requests WHERE id = ?`, id.String())

	w := &model.WatchRequest{ID: id}
	var targetType, createdAt, updatedAt string
	var lastChecked sql.NullString
	err := row.Scan(&w.ProductName, &w.StoreKey, &w.ProductURL, &targetType, &w.TargetValue,
		&w.TrackingMode, &w.Phone, &w.ConsentGiven, &w.IsActive,
		&w.LastPrice, &lastChecked, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errx.NotFound("watch not found")
		}
		return nil, errx.WrapStorage(err)
	}
	w.TargetType = model.TargetType(targetType)
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastChecked.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastChecked.String); err == nil {
			w.LastCheckedAt = &t
		}
	}
	return w, nil
}

var _ model.WatchStore = (*SQLiteWatchStore)(nil)
