package chain

import (
	"fmt"
	"math/big"
	"os"

	"gopkg.in/yaml.v3"
)

// Snapshot is the yaml shape of a chain-state file. Raw integer amounts are
// decimal strings so uint256 values survive the trip.
type Snapshot struct {
	Tokens []SnapshotToken `yaml:"tokens"`
	Pool   SnapshotPool    `yaml:"pool"`

	// oracle address -> {answer, decimals}
	Oracles map[string]SnapshotOracle `yaml:"oracles"`
	Coves   []SnapshotCove            `yaml:"coves"`
}

type SnapshotToken struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Name     string `yaml:"name"`
	Decimals int32  `yaml:"decimals"`
	// wallet -> raw balance
	Balances map[string]string `yaml:"balances"`
}

type SnapshotPool struct {
	Address string   `yaml:"address"`
	Tokens  []string `yaml:"tokens"`
	Supply  string   `yaml:"supply"`
}

type SnapshotOracle struct {
	Answer   string `yaml:"answer"`
	Decimals int32  `yaml:"decimals"`
}

type SnapshotCove struct {
	Address       string `yaml:"address"`
	Asset         string `yaml:"asset"`
	LastBalances  string `yaml:"last_balances"`
	DepositSupply string `yaml:"deposit_supply"`
}

// LoadSnapshot reads a yaml chain-state file into a Static reader.
func LoadSnapshot(path string) (*Static, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain snapshot: %w", err)
	}

	var snap Snapshot
	if err = yaml.Unmarshal(b, &snap); err != nil {
		return nil, fmt.Errorf("parse chain snapshot: %w", err)
	}

	st := NewStatic()

	for _, tok := range snap.Tokens {
		st.SetToken(tok.Address, tok.Symbol, tok.Name, tok.Decimals)
		for wallet, raw := range tok.Balances {
			v, err := parseRaw(raw)
			if err != nil {
				return nil, fmt.Errorf("token %s balance of %s: %w", tok.Address, wallet, err)
			}
			st.SetBalance(tok.Address, wallet, v)
		}
	}

	if snap.Pool.Address != "" {
		supply, err := parseRaw(snap.Pool.Supply)
		if err != nil {
			return nil, fmt.Errorf("pool supply: %w", err)
		}
		st.SetPool(snap.Pool.Address, snap.Pool.Tokens, supply)
	}

	for addr, o := range snap.Oracles {
		answer, err := parseRaw(o.Answer)
		if err != nil {
			return nil, fmt.Errorf("oracle %s answer: %w", addr, err)
		}
		st.SetOracle(addr, answer, o.Decimals)
	}

	for _, cove := range snap.Coves {
		if cove.LastBalances != "" {
			packed, err := parseRaw(cove.LastBalances)
			if err != nil {
				return nil, fmt.Errorf("cove %s last balances: %w", cove.Address, err)
			}
			st.SetLastBalances(cove.Address, cove.Asset, packed)
		}
		if cove.DepositSupply != "" {
			supply, err := parseRaw(cove.DepositSupply)
			if err != nil {
				return nil, fmt.Errorf("cove %s deposit supply: %w", cove.Address, err)
			}
			st.SetDepositSupply(cove.Address, cove.Asset, supply)
		}
	}

	return st, nil
}

func parseRaw(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid raw amount %q", s)
	}
	return v, nil
}
