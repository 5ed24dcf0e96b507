package chain

import (
	"context"
	"errors"
	"math/big"
)

// ErrReverted is returned when a read-only contract call reverts. Callers
// either fail the current event or substitute a documented default, never
// both silently.
var ErrReverted = errors.New("contract call reverted")

// ERC20Reader reads token metadata and balances as of the block of the event
// being processed. Each call is individually revert-tolerant on the caller's
// side: metadata probes degrade to defaults, balance reads are required.
type ERC20Reader interface {
	Symbol(ctx context.Context, token string) (string, error)
	Name(ctx context.Context, token string) (string, error)
	Decimals(ctx context.Context, token string) (int32, error)
	BalanceOf(ctx context.Context, token, wallet string) (*big.Int, error)
}

// PoolReader reads the exchange contract state.
type PoolReader interface {
	NTokens(ctx context.Context, pool string) (int, error)
	TokenAt(ctx context.Context, pool string, i int) (string, error)
	TotalSupply(ctx context.Context, pool string) (*big.Int, error)
}

// OracleReader reads a price feed. Answer is the raw integer price; scale it
// by Decimals to get the USD value.
type OracleReader interface {
	LatestAnswer(ctx context.Context, oracle string) (answer *big.Int, decimals int32, err error)
}

// CoveReader reads the cove contract's packed per-asset balance state and
// the internal deposit-token supply backing proportional attribution.
type CoveReader interface {
	LastBalances(ctx context.Context, cove string, asset string) (*big.Int, error)
	DepositSupply(ctx context.Context, cove string, asset string) (*big.Int, error)
}

// Reader bundles every read-only chain collaborator the handlers need.
type Reader interface {
	ERC20Reader
	PoolReader
	OracleReader
	CoveReader
}
