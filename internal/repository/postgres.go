// Package repository содержит реализации хранилищ сервисов в PostgreSQL и в памяти.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/sethvargo/go-retry"
)

//go:embed migrations/*/*.sql
var migrationsFS embed.FS

// Наборы миграций по сервисам.
const (
	MigrationsInventory = "migrations/inventory"
	MigrationsWallet    = "migrations/wallet"
	MigrationsShop      = "migrations/shop"
)

type postgres struct {
	pool *pgxpool.Pool
}

func connect(dsn, migrationsDir string) (*postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	p := &postgres{pool: pool}

	if err := p.runMigrations(ctx, migrationsDir); err != nil {
		pool.Close()
		return nil, err
	}

	return p, nil
}

func (p *postgres) runMigrations(ctx context.Context, dir string) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, dir); err != nil {
		return fmt.Errorf("run migrations %s: %w", dir, err)
	}

	return nil
}

// Close закрывает пул соединений с БД.
func (p *postgres) Close() error {
	p.pool.Close()
	return nil
}

// Ping проверяет соединение с БД.
func (p *postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// withRetry повторяет транзакцию при конфликте сериализации, взаимной блокировке или обрыве соединения.
func (p *postgres) withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(200*time.Millisecond))

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// inTx выполняет fn в транзакции с повтором по withRetry.
func (p *postgres) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return p.withRetry(ctx, func(ctx context.Context) error {
		tx, err := p.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := fn(tx); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}

	return isConnectionError(err)
}

func isConnectionError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
