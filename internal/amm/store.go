package amm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"cpamm/internal/model"
)

// Ledger moves asset balances. Every call either applies fully or returns an
// error; debits beyond the owner's balance fail with ErrInsufficientBalance.
type Ledger interface {
	Balance(ctx context.Context, asset, owner common.Address) (uint64, error)
	Transfer(ctx context.Context, asset, from, to common.Address, amount uint64) error
	Mint(ctx context.Context, asset, to common.Address, amount uint64) error
	Burn(ctx context.Context, asset, from common.Address, amount uint64) error
}

// Tx is one store transaction. Nothing written through it is visible to
// other transactions until Atomic returns nil.
type Tx interface {
	LoadPool(ctx context.Context, addr common.Address) (model.Pool, error)
	InsertPool(ctx context.Context, pool model.Pool) error
	SavePool(ctx context.Context, pool model.Pool) error
	// IsShareMint reports whether asset is the share mint of any pool.
	IsShareMint(ctx context.Context, asset common.Address) (bool, error)
	Ledger() Ledger
}

// Store runs fn as a single atomic transaction. If fn returns an error none of
// its writes take effect. Implementations may call fn more than once.
type Store interface {
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Authorizer decides whether a request was issued by its claimed caller.
type Authorizer interface {
	Authorize(ctx context.Context, req model.Request) error
}

// Journal receives a receipt for every committed operation.
type Journal interface {
	Record(ctx context.Context, receipt model.Receipt) error
}

// Observer is notified of committed and rejected operations.
type Observer interface {
	Observe(receipt model.Receipt, pool model.Pool)
	ObserveFailure(op model.Operation, kind string)
}
