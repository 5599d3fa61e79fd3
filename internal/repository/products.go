package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// PostgresInventory хранит товары и остатки склада в PostgreSQL.
type PostgresInventory struct {
	*postgres
}

// NewPostgresInventory подключается к БД склада и применяет его миграции.
func NewPostgresInventory(dsn string) (*PostgresInventory, error) {
	p, err := connect(dsn, MigrationsInventory)
	if err != nil {
		return nil, err
	}
	return &PostgresInventory{postgres: p}, nil
}

// GetProduct возвращает товар по SKU.
func (r *PostgresInventory) GetProduct(ctx context.Context, sku string) (*model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, sku, name, price, stock_quantity, created_at, updated_at
		 FROM products WHERE sku = $1`,
		sku,
	).Scan(&p.ID, &p.SKU, &p.Name, &p.Price, &p.StockQuantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: product %s", model.ErrNotFound, sku)
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// SaveProduct создаёт товар или обновляет его название, цену и остаток.
func (r *PostgresInventory) SaveProduct(ctx context.Context, p *model.Product) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (sku, name, price, stock_quantity)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (sku) DO UPDATE
		 SET name = EXCLUDED.name, price = EXCLUDED.price,
		     stock_quantity = EXCLUDED.stock_quantity, updated_at = NOW()
		 RETURNING id, created_at, updated_at`,
		p.SKU, p.Name, p.Price, p.StockQuantity,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	return nil
}

// DecreaseStock списывает qty единиц товара. Строка товара блокируется до конца транзакции,
// поэтому проверка остатка и списание выполняются атомарно.
func (r *PostgresInventory) DecreaseStock(ctx context.Context, sku string, qty int) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var stock int
		err := tx.QueryRow(ctx,
			`SELECT stock_quantity FROM products WHERE sku = $1 FOR UPDATE`,
			sku,
		).Scan(&stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: product %s", model.ErrNotFound, sku)
			}
			return fmt.Errorf("lock product for update: %w", err)
		}

		if stock < qty {
			return fmt.Errorf("%w: %s has %d, requested %d", model.ErrInsufficientStock, sku, stock, qty)
		}

		_, err = tx.Exec(ctx,
			`UPDATE products SET stock_quantity = stock_quantity - $2, updated_at = NOW() WHERE sku = $1`,
			sku, qty,
		)
		if err != nil {
			return fmt.Errorf("decrease stock: %w", err)
		}
		return nil
	})
}

// IncreaseStock возвращает qty единиц товара на склад.
func (r *PostgresInventory) IncreaseStock(ctx context.Context, sku string, qty int) error {
	return r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE products SET stock_quantity = stock_quantity + $2, updated_at = NOW() WHERE sku = $1`,
			sku, qty,
		)
		if err != nil {
			return fmt.Errorf("increase stock: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: product %s", model.ErrNotFound, sku)
		}
		return nil
	})
}
