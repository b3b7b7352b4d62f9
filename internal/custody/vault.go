package custody

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"wagerledger/internal/db"
)

// ErrInsufficientFunds is returned when an account cannot cover a transfer.
var ErrInsufficientFunds = errors.New("insufficient funds")

// custodyKey is the accounts row holding the ledger's funds. It is not a
// valid hex address, so no participant can collide with it.
const custodyKey = "custody"

// Vault keeps participant balances and the ledger's custody balance in the
// accounts table. It implements ledger.TransferPort. Transfers join a
// transaction carried by the context (see db.WithTx) so they commit with the
// journal entry that records them.
type Vault struct {
	db *sql.DB
}

func NewVault(db *sql.DB) *Vault {
	return &Vault{db: db}
}

// Deposit credits an account with newly issued funds.
func (v *Vault) Deposit(ctx context.Context, to common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return fmt.Errorf("deposit amount must be positive")
	}
	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning deposit: %w", err)
	}
	defer tx.Rollback()

	if err := credit(ctx, tx, to.Hex(), amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("deposit credited", "account", to, "amount", amount.Dec())
	return nil
}

// Balance returns an account's balance; unknown accounts hold zero.
func (v *Vault) Balance(ctx context.Context, who common.Address) (*uint256.Int, error) {
	return balance(ctx, v.db, who.Hex())
}

// Custody returns the balance held on behalf of the ledger.
func (v *Vault) Custody(ctx context.Context) (*uint256.Int, error) {
	return balance(ctx, v.db, custodyKey)
}

// PullFrom moves amount from a participant into custody.
func (v *Vault) PullFrom(ctx context.Context, from common.Address, amount *uint256.Int) error {
	return v.move(ctx, from.Hex(), custodyKey, amount)
}

// PushTo pays amount out of custody to a recipient.
func (v *Vault) PushTo(ctx context.Context, to common.Address, amount *uint256.Int) error {
	return v.move(ctx, custodyKey, to.Hex(), amount)
}

func (v *Vault) move(ctx context.Context, from, to string, amount *uint256.Int) error {
	if tx, ok := db.TxFrom(ctx); ok {
		if err := debit(ctx, tx, from, amount); err != nil {
			return err
		}
		return credit(ctx, tx, to, amount)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transfer: %w", err)
	}
	defer tx.Rollback()

	if err := debit(ctx, tx, from, amount); err != nil {
		return err
	}
	if err := credit(ctx, tx, to, amount); err != nil {
		return err
	}
	return tx.Commit()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func balance(ctx context.Context, q querier, key string) (*uint256.Int, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE address = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return new(uint256.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading balance of %s: %w", key, err)
	}
	bal, err := uint256.FromDecimal(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing balance of %s: %w", key, err)
	}
	return bal, nil
}

func debit(ctx context.Context, tx *sql.Tx, key string, amount *uint256.Int) error {
	bal, err := balance(ctx, tx, key)
	if err != nil {
		return err
	}
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, needs %s", ErrInsufficientFunds, key, bal.Dec(), amount.Dec())
	}
	bal.Sub(bal, amount)
	return store(ctx, tx, key, bal)
}

func credit(ctx context.Context, tx *sql.Tx, key string, amount *uint256.Int) error {
	bal, err := balance(ctx, tx, key)
	if err != nil {
		return err
	}
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		return fmt.Errorf("balance of %s overflows", key)
	}
	return store(ctx, tx, key, bal)
}

func store(ctx context.Context, tx *sql.Tx, key string, bal *uint256.Int) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (address, balance) VALUES (?, ?)
		ON CONFLICT(address) DO UPDATE SET balance = excluded.balance, updated_at = datetime('now')`,
		key, bal.Dec())
	if err != nil {
		return fmt.Errorf("writing balance of %s: %w", key, err)
	}
	return nil
}
