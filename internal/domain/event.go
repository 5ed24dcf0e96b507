package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
)

// Kind of a decoded contract event delivered by the feed.
type Kind string

const (
	KindDeposited      Kind = "deposited"
	KindWithdrawn      Kind = "withdrawn"
	KindAssetWithdrawn Kind = "asset_withdrawn"
	KindSwapped        Kind = "swapped"
	KindTransfer       Kind = "transfer"
	KindCoveDeposited  Kind = "cove_deposited"
	KindCoveSwapped    Kind = "cove_swapped"
	KindCoveWithdrawn  Kind = "cove_withdrawn"
)

// Event is one decoded on-chain contract event. The feed delivers events
// deduplicated and in canonical order: block number, then transaction index,
// then log index. Params shape depends on Kind.
type Event struct {
	Kind        Kind            `json:"kind"`
	Contract    string          `json:"contract"` // emitting contract, 0x-prefixed
	BlockNumber uint64          `json:"block_number"`
	Timestamp   int64           `json:"timestamp"` // block timestamp, unix seconds
	TxHash      string          `json:"tx_hash"`
	TxIndex     uint32          `json:"tx_index"`
	LogIndex    uint32          `json:"log_index"`
	TxFrom      string          `json:"tx_from"` // transaction origin
	Params      json.RawMessage `json:"params"`
	SchemaVer   uint16          `json:"schema_version"`
}

// ID returns the dedupe identity of the event.
func (e *Event) ID() string {
	return MakeEventID(e.TxHash, e.LogIndex)
}

// BigInt is an arbitrary-precision integer carried as a decimal string in
// JSON, the way raw uint256 event parameters arrive from the decoder.
type BigInt struct {
	*big.Int
}

func NewBigInt(v *big.Int) BigInt {
	return BigInt{v}
}

func (b BigInt) Value() *big.Int {
	if b.Int == nil {
		return new(big.Int)
	}
	return b.Int
}

func (b BigInt) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Value().String())
}

func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		b.Int = new(big.Int)
		return nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return fmt.Errorf("invalid big integer: %q", s)
	}
	b.Int = v
	return nil
}

// HexBytes is a 0x-prefixed byte blob (event auxiliary data).
type HexBytes []byte

func (h HexBytes) MarshalJSON() ([]byte, error) {
	return json.Marshal("0x" + hex.EncodeToString(h))
}

func (h *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		*h = nil
		return nil
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex blob: %w", err)
	}
	*h = raw
	return nil
}

type DepositedParams struct {
	Depositor  string `json:"depositor"`
	PoolTokens BigInt `json:"pool_tokens"` // minted pool tokens
	// pool token supply after the mint; zero when the event shape does not report it
	PoolTokensSupply BigInt `json:"pool_tokens_supply"`
}

type WithdrawnParams struct {
	Withdrawer       string `json:"withdrawer"`
	PoolTokens       BigInt `json:"pool_tokens"` // burned pool tokens
	PoolTokensSupply BigInt `json:"pool_tokens_supply"`
}

type AssetWithdrawnParams struct {
	Withdrawer string `json:"withdrawer"`
	Asset      string `json:"asset"`
	Amount     BigInt `json:"amount"`
}

type SwappedParams struct {
	InAsset       string   `json:"in_asset"`
	OutAsset      string   `json:"out_asset"`
	Recipient     string   `json:"recipient"`
	InAmount      BigInt   `json:"in_amount"`
	OutAmount     BigInt   `json:"out_amount"`
	AuxiliaryData HexBytes `json:"auxiliary_data"`
}

type TransferParams struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount BigInt `json:"amount"`
}

type CoveDepositedParams struct {
	TokenAddress string `json:"token_address"` // cove identity = its long-tail asset
	Depositor    string `json:"depositor"`
	PoolTokens   BigInt `json:"pool_tokens"` // internal deposit tokens
	// internal deposit token supply after the operation
	DepositSupply BigInt `json:"deposit_supply"`
}

type CoveWithdrawnParams struct {
	TokenAddress  string `json:"token_address"`
	Withdrawer    string `json:"withdrawer"`
	PoolTokens    BigInt `json:"pool_tokens"`
	DepositSupply BigInt `json:"deposit_supply"`
}

func decode[T any](raw json.RawMessage, kind Kind) (T, error) {
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s params: %w", kind, err)
	}
	return out, nil
}

func (e *Event) Deposited() (DepositedParams, error) {
	return decode[DepositedParams](e.Params, e.Kind)
}

func (e *Event) Withdrawn() (WithdrawnParams, error) {
	return decode[WithdrawnParams](e.Params, e.Kind)
}

func (e *Event) AssetWithdrawn() (AssetWithdrawnParams, error) {
	return decode[AssetWithdrawnParams](e.Params, e.Kind)
}

func (e *Event) Swapped() (SwappedParams, error) {
	return decode[SwappedParams](e.Params, e.Kind)
}

func (e *Event) Transfer() (TransferParams, error) {
	return decode[TransferParams](e.Params, e.Kind)
}

func (e *Event) CoveDeposited() (CoveDepositedParams, error) {
	return decode[CoveDepositedParams](e.Params, e.Kind)
}

func (e *Event) CoveWithdrawn() (CoveWithdrawnParams, error) {
	return decode[CoveWithdrawnParams](e.Params, e.Kind)
}
