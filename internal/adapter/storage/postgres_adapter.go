package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

const (
	pgUniqueViolation = "23505"

	// createSaleLockKey serializes sale creation across all connections.
	createSaleLockKey int64 = 0x666c617368
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

type PostgresAdapter struct {
	pool DBPool
}

func NewPostgresAdapter(pool DBPool) *PostgresAdapter {
	return &PostgresAdapter{pool: pool}
}

func (p *PostgresAdapter) CreateSale(ctx context.Context, sale domain.FlashSale) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, createSaleLockKey); err != nil {
		return fmt.Errorf("lock sale creation: %w", err)
	}

	var existing string
	err = tx.QueryRow(ctx, `
		SELECT id FROM flash_sales
		WHERE start_time <= $1 AND end_time >= $2
		LIMIT 1`,
		sale.EndTime, sale.StartTime,
	).Scan(&existing)
	if err == nil {
		return domain.ErrOverlap
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("query overlapping sale: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO flash_sales (`+saleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sale.ID, sale.StartTime, sale.EndTime, sale.TotalStock, sale.RemainingStock,
		sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert flash sale: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetByID(ctx context.Context, id string) (*domain.FlashSale, error) {
	return p.querySale(ctx, `SELECT `+saleColumns+` FROM flash_sales WHERE id = $1`, id)
}

func (p *PostgresAdapter) ReserveOneUnit(ctx context.Context, id string) (bool, error) {
	tag, err := p.pool.Exec(ctx, `
		UPDATE flash_sales
		SET remaining_stock = remaining_stock - 1, updated_at = now()
		WHERE id = $1 AND remaining_stock > 0`, id)
	if err != nil {
		return false, fmt.Errorf("reserve unit: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresAdapter) ReleaseOneUnit(ctx context.Context, id string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE flash_sales
		SET remaining_stock = remaining_stock + 1, updated_at = now()
		WHERE id = $1 AND remaining_stock < total_stock`, id)
	if err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) FindCurrent(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return p.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE start_time <= $1 AND end_time >= $1
		ORDER BY id ASC
		LIMIT 1`, now.UTC())
}

func (p *PostgresAdapter) FindNext(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return p.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE start_time > $1
		ORDER BY start_time ASC, id ASC
		LIMIT 1`, now.UTC())
}

func (p *PostgresAdapter) FindMostRecentEnded(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return p.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE end_time < $1
		ORDER BY end_time DESC, id ASC
		LIMIT 1`, now.UTC())
}

func (p *PostgresAdapter) querySale(ctx context.Context, query string, args ...any) (*domain.FlashSale, error) {
	sale, err := scanSale(p.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query flash sale: %w", err)
	}
	return sale, nil
}

func (p *PostgresAdapter) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresAdapter) TryInsert(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		FlashSaleID: flashSaleID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO orders (id, user_id, flash_sale_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)`,
		order.ID, order.UserID, order.FlashSaleID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, nil
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return &order, nil
}

func (p *PostgresAdapter) GetByUserAndSale(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	var o domain.Order
	err := p.pool.QueryRow(ctx, `
		SELECT id, user_id, flash_sale_id, created_at, updated_at
		FROM orders WHERE user_id = $1 AND flash_sale_id = $2`, userID, flashSaleID,
	).Scan(&o.ID, &o.UserID, &o.FlashSaleID, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}
