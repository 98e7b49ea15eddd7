package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	errx "github.com/pricewatch/intake-core/internal/core/error"
	"github.com/pricewatch/intake-core/internal/intake/model"
	logx "github.com/pricewatch/intake-core/pkg/logger"
)

const insertWatchSQL = `
INSERT INTO watch_requests (
    id, product_name, store_key, product_url, target_type, target_value,
    tracking_mode, phone, consent_given, is_active, last_price, last_checked_at,
    created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO NOTHING`

// PostgresWatchStore writes watch requests through a pgx pool.
type PostgresWatchStore struct {
	pool *pgxpool.Pool
}

func NewPostgresWatchStore(pool *pgxpool.Pool) *PostgresWatchStore {
	return &PostgresWatchStore{pool: pool}
}

func (s *PostgresWatchStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate brings the watch schema up to date.
func (s *PostgresWatchStore) Migrate(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return Migrate(ctx, db, goose.DialectPostgres)
}

func (s *PostgresWatchStore) CreateWatch(ctx context.Context, w *model.WatchRequest) error {
	stampWatch(w)
	tag, err := s.pool.Exec(ctx, insertWatchSQL,
		w.ID, w.ProductName, w.StoreKey, w.ProductURL, string(w.TargetType), w.TargetValue,
		nullableString(w.TrackingMode), w.Phone, w.ConsentGiven, w.IsActive, w.LastPrice, w.LastCheckedAt,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		logx.Error().Err(err).Str("watch_id", w.ID.String()).Msg("failed to insert watch request")
		return errx.WrapStorage(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	existing, err := s.GetWatch(ctx, w.ID)
	if err != nil {
		return err
	}
	return adoptExisting(w, existing)
}

// GetWatch loads a watch by id; it returns a not_found error when absent.
func (s *PostgresWatchStore) GetWatch(ctx context.Context, id uuid.UUID) (*model.WatchRequest, error) {
	w := &model.WatchRequest{ID: id}
	var targetType string
	err := s.pool.QueryRow(ctx, `
SELECT product_name, store_key, product_url, target_type, target_value,
       COALESCE(tracking_mode, ''), phone, consent_given, is_active,
       last_price, last_checked_at, created_at, updated_at
FROM watch_requests WHERE id = $1`, id).Scan(
		&w.ProductName, &w.StoreKey, &w.ProductURL, &targetType, &w.TargetValue,
		&w.TrackingMode, &w.Phone, &w.ConsentGiven, &w.IsActive,
		&w.LastPrice, &w.LastCheckedAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errx.NotFound("watch not found")
		}
		return nil, errx.WrapStorage(err)
	}
	w.TargetType = model.TargetType(targetType)
	return w, nil
}

// adoptExisting resolves an insert that hit an existing id. A replay of the
// same request takes over the stored row; anything else is a conflict.
func adoptExisting(w, existing *model.WatchRequest) error {
	if !sameWatch(w, existing) {
		logx.Warn().Str("watch_id", w.ID.String()).Msg("watch id reused with different details")
		return errx.Conflict("a different watch request already uses this id")
	}
	logx.Info().Str("watch_id", w.ID.String()).Msg("watch request already exists")
	w.IsActive = existing.IsActive
	w.LastPrice = existing.LastPrice
	w.LastCheckedAt = existing.LastCheckedAt
	w.CreatedAt = existing.CreatedAt
	w.UpdatedAt = existing.UpdatedAt
	return nil
}

func sameWatch(a, b *model.WatchRequest) bool {
	return a.ProductName == b.ProductName &&
		a.StoreKey == b.StoreKey &&
		a.ProductURL == b.ProductURL &&
		a.TargetType == b.TargetType &&
		a.TargetValue == b.TargetValue &&
		a.TrackingMode == b.TrackingMode &&
		a.Phone == b.Phone
}

func stampWatch(w *model.WatchRequest) {
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ model.WatchStore = (*PostgresWatchStore)(nil)
