package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresShop хранит корзины, заказы и оплаты магазина в PostgreSQL.
type PostgresShop struct {
	*postgres
}

// NewPostgresShop подключается к БД магазина и применяет её миграции.
func NewPostgresShop(dsn string) (*PostgresShop, error) {
	p, err := connect(dsn, MigrationsShop)
	if err != nil {
		return nil, err
	}
	return &PostgresShop{postgres: p}, nil
}

// GetCart возвращает корзину с позициями по ID.
func (r *PostgresShop) GetCart(ctx context.Context, id int64) (*model.Cart, error) {
	return loadCart(ctx, r.pool, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id = $1`, id)
}

// GetCartByUser возвращает корзину пользователя.
func (r *PostgresShop) GetCartByUser(ctx context.Context, userID int64) (*model.Cart, error) {
	return loadCart(ctx, r.pool, `SELECT id, user_id, created_at, updated_at FROM carts WHERE user_id = $1`, userID)
}

// AddCartItem добавляет позицию в корзину пользователя, создавая корзину при первом добавлении.
// Количество уже лежащего в корзине товара увеличивается.
func (r *PostgresShop) AddCartItem(ctx context.Context, userID int64, item model.CartItem) (*model.Cart, error) {
	var cart *model.Cart
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		var cartID int64
		err := tx.QueryRow(ctx,
			`INSERT INTO carts (user_id) VALUES ($1)
			 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
			 RETURNING id`,
			userID,
		).Scan(&cartID)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO cart_items (cart_id, sku, product_name, quantity, unit_price)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (cart_id, sku) DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity`,
			cartID, item.SKU, item.ProductName, item.Quantity, item.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}

		cart, err = loadCart(ctx, tx, `SELECT id, user_id, created_at, updated_at FROM carts WHERE id = $1`, cartID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// DeleteCart удаляет корзину вместе с позициями.
func (r *PostgresShop) DeleteCart(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}

// CreateOrder сохраняет заказ с позициями и заполняет сгенерированные идентификаторы.
func (r *PostgresShop) CreateOrder(ctx context.Context, o *model.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO orders (user_id, status, total_amount, saga_step, reserved_items, failure_reason)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at, updated_at`,
			o.UserID, string(o.Status), o.TotalAmount, string(o.SagaStep), o.ReservedItems, o.FailureReason,
		).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i := range o.Items {
			it := &o.Items[i]
			err := tx.QueryRow(ctx,
				`INSERT INTO order_items (order_id, position, sku, product_name, quantity, price_at_purchase)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 RETURNING id`,
				o.ID, i, it.SKU, it.ProductName, it.Quantity, it.PriceAtPurchase,
			).Scan(&it.ID)
			if err != nil {
				return fmt.Errorf("insert order item: %w", err)
			}
		}

		return upsertPayment(ctx, tx, o)
	})
}

// UpdateOrder сохраняет статус, курсор саги и оплату заказа.
func (r *PostgresShop) UpdateOrder(ctx context.Context, o *model.Order) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $2, saga_step = $3, reserved_items = $4, failure_reason = $5, updated_at = NOW()
			 WHERE id = $1
			 RETURNING updated_at`,
			o.ID, string(o.Status), string(o.SagaStep), o.ReservedItems, o.FailureReason,
		).Scan(&o.UpdatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: order %d", model.ErrNotFound, o.ID)
			}
			return fmt.Errorf("update order: %w", err)
		}

		return upsertPayment(ctx, tx, o)
	})
}

// UpdateOrderCursor сохраняет заказ, только если он всё ещё в PENDING и его сохранённый курсор саги
// равен (step, reserved). Иначе возвращает model.ErrConcurrentUpdate.
func (r *PostgresShop) UpdateOrderCursor(ctx context.Context, o *model.Order, step model.SagaStep, reserved int) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`UPDATE orders
			 SET status = $2, saga_step = $3, reserved_items = $4, failure_reason = $5, updated_at = NOW()
			 WHERE id = $1 AND status = $6 AND saga_step = $7 AND reserved_items = $8
			 RETURNING updated_at`,
			o.ID, string(o.Status), string(o.SagaStep), o.ReservedItems, o.FailureReason,
			string(model.OrderStatusPending), string(step), reserved,
		).Scan(&o.UpdatedAt)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("update order cursor: %w", err)
			}
			var exists bool
			if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
				return fmt.Errorf("check order: %w", err)
			}
			if !exists {
				return fmt.Errorf("%w: order %d", model.ErrNotFound, o.ID)
			}
			return fmt.Errorf("%w: order %d", model.ErrConcurrentUpdate, o.ID)
		}

		return upsertPayment(ctx, tx, o)
	})
}

// GetOrder возвращает заказ с позициями и оплатой.
func (r *PostgresShop) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	orders, err := loadOrders(ctx, r.pool,
		`SELECT id, user_id, status, total_amount, saga_step, reserved_items, failure_reason, created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("%w: order %d", model.ErrNotFound, id)
	}
	return &orders[0], nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresShop) ListOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return loadOrders(ctx, r.pool,
		`SELECT id, user_id, status, total_amount, saga_step, reserved_items, failure_reason, created_at, updated_at
		 FROM orders WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
}

// ListStalePendingOrders возвращает заказы в статусе PENDING, курсор которых не менялся с момента before.
func (r *PostgresShop) ListStalePendingOrders(ctx context.Context, before time.Time, limit int) ([]model.Order, error) {
	return loadOrders(ctx, r.pool,
		`SELECT id, user_id, status, total_amount, saga_step, reserved_items, failure_reason, created_at, updated_at
		 FROM orders
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT $3`,
		string(model.OrderStatusPending), before, limit,
	)
}

func upsertPayment(ctx context.Context, tx pgx.Tx, o *model.Order) error {
	p := o.Payment
	if p == nil {
		return nil
	}
	p.OrderID = o.ID

	err := tx.QueryRow(ctx,
		`INSERT INTO payments (order_id, amount, status, transaction_id)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id) DO UPDATE
		 SET amount = EXCLUDED.amount, status = EXCLUDED.status, transaction_id = EXCLUDED.transaction_id
		 RETURNING id, created_at`,
		o.ID, p.Amount, string(p.Status), p.TransactionID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert payment: %w", err)
	}
	return nil
}

func loadCart(ctx context.Context, q querier, query string, arg any) (*model.Cart, error) {
	var c model.Cart
	err := q.QueryRow(ctx, query, arg).Scan(&c.ID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: cart", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, sku, product_name, quantity, unit_price FROM cart_items WHERE cart_id = $1 ORDER BY id`,
		c.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.ID, &it.SKU, &it.ProductName, &it.Quantity, &it.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		c.Items = append(c.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &c, nil
}

func loadOrders(ctx context.Context, q querier, query string, args ...any) ([]model.Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}

	orders := make([]model.Order, 0)
	for rows.Next() {
		var (
			o      model.Order
			status string
			step   string
		)
		if err := rows.Scan(&o.ID, &o.UserID, &status, &o.TotalAmount, &step,
			&o.ReservedItems, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = model.OrderStatus(status)
		o.SagaStep = model.SagaStep(step)
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range orders {
		if err := loadOrderDetails(ctx, q, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

func loadOrderDetails(ctx context.Context, q querier, o *model.Order) error {
	rows, err := q.Query(ctx,
		`SELECT id, sku, product_name, quantity, price_at_purchase
		 FROM order_items WHERE order_id = $1 ORDER BY position`,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("select order items: %w", err)
	}

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.SKU, &it.ProductName, &it.Quantity, &it.PriceAtPurchase); err != nil {
			rows.Close()
			return fmt.Errorf("scan order item: %w", err)
		}
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	var (
		p      model.Payment
		status string
	)
	err = q.QueryRow(ctx,
		`SELECT id, order_id, amount, status, transaction_id, created_at FROM payments WHERE order_id = $1`,
		o.ID,
	).Scan(&p.ID, &p.OrderID, &p.Amount, &status, &p.TransactionID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("get payment: %w", err)
	}
	p.Status = model.PaymentStatus(status)
	o.Payment = &p

	return nil
}
