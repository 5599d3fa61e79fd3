package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/checkout-saga/internal/model"
)

// PostgresLedger хранит кошельки и журнал операций в PostgreSQL.
type PostgresLedger struct {
	*postgres
}

// NewPostgresLedger подключается к БД кошельков и применяет её миграции.
func NewPostgresLedger(dsn string) (*PostgresLedger, error) {
	p, err := connect(dsn, MigrationsWallet)
	if err != nil {
		return nil, err
	}
	return &PostgresLedger{postgres: p}, nil
}

// CreateWallet создаёт кошелёк и заполняет его ID и CreatedAt.
func (r *PostgresLedger) CreateWallet(ctx context.Context, w *model.Wallet) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO wallets (user_id, balance, wallet_type, wallet_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		w.UserID, w.Balance, w.WalletType, w.WalletName,
	).Scan(&w.ID, &w.CreatedAt)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	return nil
}

// GetWallet возвращает кошелёк по ID.
func (r *PostgresLedger) GetWallet(ctx context.Context, id int64) (*model.Wallet, error) {
	var w model.Wallet
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, balance, wallet_type, wallet_name, created_at FROM wallets WHERE id = $1`,
		id,
	).Scan(&w.ID, &w.UserID, &w.Balance, &w.WalletType, &w.WalletName, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: wallet %d", model.ErrNotFound, id)
		}
		return nil, fmt.Errorf("get wallet: %w", err)
	}
	return &w, nil
}

// ListWalletsByUser возвращает кошельки пользователя в порядке создания.
func (r *PostgresLedger) ListWalletsByUser(ctx context.Context, userID int64) ([]model.Wallet, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, balance, wallet_type, wallet_name, created_at
		 FROM wallets WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	defer rows.Close()

	res := make([]model.Wallet, 0)
	for rows.Next() {
		var w model.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Balance, &w.WalletType, &w.WalletName, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan wallet: %w", err)
		}
		res = append(res, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// Deposit зачисляет amount на кошелёк под блокировкой строки кошелька.
func (r *PostgresLedger) Deposit(ctx context.Context, walletID int64, amount decimal.Decimal) (*model.Transaction, error) {
	var txn *model.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := lockWallet(ctx, tx, walletID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `UPDATE wallets SET balance = balance + $2 WHERE id = $1`, walletID, amount)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		txn, err = insertTransaction(ctx, tx, walletID, model.TransactionDeposit, amount, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// Withdraw списывает amount с кошелька под блокировкой строки кошелька.
// Если операция с таким reference уже есть в журнале кошелька, возвращается она.
func (r *PostgresLedger) Withdraw(ctx context.Context, walletID int64, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	var txn *model.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		balance, err := lockWallet(ctx, tx, walletID)
		if err != nil {
			return err
		}

		if reference != "" {
			existing, err := findByReference(ctx, tx, walletID, reference)
			if err != nil {
				return err
			}
			if existing != nil {
				txn = existing
				return nil
			}
		}

		if balance.LessThan(amount) {
			return fmt.Errorf("%w: wallet %d", model.ErrInsufficientFunds, walletID)
		}

		_, err = tx.Exec(ctx, `UPDATE wallets SET balance = balance - $2 WHERE id = $1`, walletID, amount)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}

		txn, err = insertTransaction(ctx, tx, walletID, model.TransactionWithdraw, amount, reference)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txn, nil
}

// ListTransactions возвращает операции кошелька, новые первыми.
func (r *PostgresLedger) ListTransactions(ctx context.Context, walletID int64, limit, offset int) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, wallet_id, type, amount, reference, created_at
		 FROM transactions
		 WHERE wallet_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	res := make([]model.Transaction, 0)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, walletID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.QueryRow(ctx, `SELECT balance FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("%w: wallet %d", model.ErrNotFound, walletID)
		}
		return decimal.Zero, fmt.Errorf("lock wallet for update: %w", err)
	}
	return balance, nil
}

func findByReference(ctx context.Context, tx pgx.Tx, walletID int64, reference string) (*model.Transaction, error) {
	row := tx.QueryRow(ctx,
		`SELECT id, wallet_id, type, amount, reference, created_at
		 FROM transactions WHERE wallet_id = $1 AND reference = $2`,
		walletID, reference,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, walletID int64, typ model.TransactionType, amount decimal.Decimal, reference string) (*model.Transaction, error) {
	t := &model.Transaction{
		WalletID:  walletID,
		Type:      typ,
		Amount:    amount,
		Reference: reference,
	}

	var ref *string
	if reference != "" {
		ref = &reference
	}

	err := tx.QueryRow(ctx,
		`INSERT INTO transactions (wallet_id, type, amount, reference)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		walletID, string(typ), amount, ref,
	).Scan(&t.ID, &t.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: duplicate reference %s", model.ErrValidation, reference)
		}
		return nil, fmt.Errorf("insert transaction: %w", err)
	}
	return t, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	var (
		t   model.Transaction
		typ string
		ref *string
	)
	if err := row.Scan(&t.ID, &t.WalletID, &typ, &t.Amount, &ref, &t.Timestamp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}
	t.Type = model.TransactionType(typ)
	if ref != nil {
		t.Reference = *ref
	}
	return &t, nil
}
