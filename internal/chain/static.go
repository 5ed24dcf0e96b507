package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
)

// Static is a point-in-time snapshot of chain state held in memory. It backs
// dev runs against the synthetic event generator and every handler test; the
// production binary swaps in an RPC-backed Reader with the same interface.
//
// Missing metadata behaves like a reverted probe, missing balances read as
// zero, missing oracles revert.
type Static struct {
	mu sync.RWMutex

	symbols  map[string]string
	names    map[string]string
	decimals map[string]int32
	balances map[string]*big.Int // token|wallet

	poolTokens map[string][]string // pool -> ordered token list
	supplies   map[string]*big.Int

	oracles         map[string]oracleAnswer
	packed          map[string]*big.Int // cove|asset
	depositSupplies map[string]*big.Int // cove|asset
}

type oracleAnswer struct {
	answer   *big.Int
	decimals int32
}

func NewStatic() *Static {
	return &Static{
		symbols:         make(map[string]string),
		names:           make(map[string]string),
		decimals:        make(map[string]int32),
		balances:        make(map[string]*big.Int),
		poolTokens:      make(map[string][]string),
		supplies:        make(map[string]*big.Int),
		oracles:         make(map[string]oracleAnswer),
		packed:          make(map[string]*big.Int),
		depositSupplies: make(map[string]*big.Int),
	}
}

func addrKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.ToLower(parts[i])
	}
	return strings.Join(parts, "|")
}

func (s *Static) SetToken(token, symbol, name string, decimals int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := addrKey(token)
	s.symbols[k] = symbol
	s.names[k] = name
	s.decimals[k] = decimals
}

func (s *Static) SetBalance(token, wallet string, balance *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[addrKey(token, wallet)] = new(big.Int).Set(balance)
}

func (s *Static) SetPool(pool string, tokens []string, supply *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poolTokens[addrKey(pool)] = append([]string(nil), tokens...)
	s.supplies[addrKey(pool)] = new(big.Int).Set(supply)
}

func (s *Static) SetSupply(pool string, supply *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.supplies[addrKey(pool)] = new(big.Int).Set(supply)
}

func (s *Static) SetOracle(oracle string, answer *big.Int, decimals int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.oracles[addrKey(oracle)] = oracleAnswer{answer: new(big.Int).Set(answer), decimals: decimals}
}

func (s *Static) SetLastBalances(cove, asset string, packed *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packed[addrKey(cove, asset)] = new(big.Int).Set(packed)
}

func (s *Static) SetDepositSupply(cove, asset string, supply *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depositSupplies[addrKey(cove, asset)] = new(big.Int).Set(supply)
}

func (s *Static) Symbol(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.symbols[addrKey(token)]
	if !ok {
		return "", ErrReverted
	}
	return v, nil
}

func (s *Static) Name(_ context.Context, token string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.names[addrKey(token)]
	if !ok {
		return "", ErrReverted
	}
	return v, nil
}

func (s *Static) Decimals(_ context.Context, token string) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.decimals[addrKey(token)]
	if !ok {
		return 0, ErrReverted
	}
	return v, nil
}

func (s *Static) BalanceOf(_ context.Context, token, wallet string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.balances[addrKey(token, wallet)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func (s *Static) NTokens(_ context.Context, pool string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.poolTokens[addrKey(pool)]), nil
}

func (s *Static) TokenAt(_ context.Context, pool string, i int) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tokens := s.poolTokens[addrKey(pool)]
	if i < 0 || i >= len(tokens) {
		return "", fmt.Errorf("%w: tokenAt(%d) out of range", ErrReverted, i)
	}
	return tokens[i], nil
}

func (s *Static) TotalSupply(_ context.Context, pool string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.supplies[addrKey(pool)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func (s *Static) LatestAnswer(_ context.Context, oracle string) (*big.Int, int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.oracles[addrKey(oracle)]
	if !ok {
		return nil, 0, ErrReverted
	}
	return new(big.Int).Set(v.answer), v.decimals, nil
}

func (s *Static) LastBalances(_ context.Context, cove, asset string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.packed[addrKey(cove, asset)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}

func (s *Static) DepositSupply(_ context.Context, cove, asset string) (*big.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.depositSupplies[addrKey(cove, asset)]
	if !ok {
		return new(big.Int), nil
	}
	return new(big.Int).Set(v), nil
}
