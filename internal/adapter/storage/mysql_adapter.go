package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	"github.com/rl1809/timed-flash-sale/internal/core/domain"
)

const mysqlDuplicateEntry = 1062

const saleColumns = `id, start_time, end_time, total_stock, remaining_stock, created_at, updated_at`

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSale(row rowScanner) (*domain.FlashSale, error) {
	var s domain.FlashSale
	err := row.Scan(&s.ID, &s.StartTime, &s.EndTime, &s.TotalStock, &s.RemainingStock, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSale runs the overlap check and the insert in one serializable
// transaction so two admins cannot both insert intersecting windows.
func (m *MySQLAdapter) CreateSale(ctx context.Context, sale domain.FlashSale) error {
	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM flash_sales
		WHERE start_time <= ? AND end_time >= ?
		LIMIT 1`,
		sale.EndTime, sale.StartTime,
	).Scan(&existing)
	if err == nil {
		return domain.ErrOverlap
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("query overlapping sale: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flash_sales (`+saleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.StartTime, sale.EndTime, sale.TotalStock, sale.RemainingStock,
		sale.CreatedAt, sale.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert flash sale: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetByID(ctx context.Context, id string) (*domain.FlashSale, error) {
	return m.querySale(ctx, `SELECT `+saleColumns+` FROM flash_sales WHERE id = ?`, id)
}

func (m *MySQLAdapter) ReserveOneUnit(ctx context.Context, id string) (bool, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE flash_sales
		SET remaining_stock = remaining_stock - 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND remaining_stock > 0`, id,
	)
	if err != nil {
		return false, fmt.Errorf("reserve unit: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve unit rows: %w", err)
	}
	return rows == 1, nil
}

func (m *MySQLAdapter) ReleaseOneUnit(ctx context.Context, id string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE flash_sales
		SET remaining_stock = remaining_stock + 1, updated_at = UTC_TIMESTAMP(6)
		WHERE id = ? AND remaining_stock < total_stock`, id,
	)
	if err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) FindCurrent(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE start_time <= ? AND end_time >= ?
		ORDER BY id ASC
		LIMIT 1`, now.UTC(), now.UTC())
}

func (m *MySQLAdapter) FindNext(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE start_time > ?
		ORDER BY start_time ASC, id ASC
		LIMIT 1`, now.UTC())
}

func (m *MySQLAdapter) FindMostRecentEnded(ctx context.Context, now time.Time) (*domain.FlashSale, error) {
	return m.querySale(ctx, `
		SELECT `+saleColumns+` FROM flash_sales
		WHERE end_time < ?
		ORDER BY end_time DESC, id ASC
		LIMIT 1`, now.UTC())
}

func (m *MySQLAdapter) querySale(ctx context.Context, query string, args ...any) (*domain.FlashSale, error) {
	sale, err := scanSale(m.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query flash sale: %w", err)
	}
	return sale, nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

func (m *MySQLAdapter) TryInsert(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	now := time.Now().UTC()
	order := domain.Order{
		ID:          uuid.NewString(),
		UserID:      userID,
		FlashSaleID: flashSaleID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, flash_sale_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.FlashSaleID, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return nil, nil
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}

	return &order, nil
}

func (m *MySQLAdapter) GetByUserAndSale(ctx context.Context, userID, flashSaleID string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, flash_sale_id, created_at, updated_at
		FROM orders WHERE user_id = ? AND flash_sale_id = ?`, userID, flashSaleID,
	).Scan(&o.ID, &o.UserID, &o.FlashSaleID, &o.CreatedAt, &o.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}
