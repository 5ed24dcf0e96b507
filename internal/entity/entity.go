package entity

import (
	"github.com/shopspring/decimal"
)

// Store kinds. Every aggregate is a mutable document addressed by
// (kind, string key); event records are written once and never mutated
// except for the deposit attribution fix-up.
const (
	KindToken          = "token"
	KindPool           = "pool"
	KindHourlyPool     = "hourly_pool_status"
	KindDailyPool      = "daily_pool_status"
	KindCove           = "cove"
	KindHourlyCove     = "hourly_cove_status"
	KindDailyCove      = "daily_cove_status"
	KindHourlyGlobal   = "hourly_global_cove_status"
	KindDailyGlobal    = "daily_global_cove_status"
	KindUserCoveStake  = "user_cove_stake"
	KindUser           = "user"
	KindPair           = "pair"
	KindTxSource       = "transaction_source"
	KindSwapRecord     = "swap"
	KindDepositRecord  = "deposit"
	KindDepositIndex   = "deposit_index"
	KindWithdrawRecord = "withdrawal"
	KindCoveDepositRow = "cove_deposit"
)

// AssetClass is the closed classification of an asset: short-tail assets
// trade directly against the main pool, long-tail assets live inside a cove.
type AssetClass string

const (
	ShortTail AssetClass = "SHORT_TAIL"
	LongTail  AssetClass = "LONG_TAIL"
)

// Token is one asset's lifetime aggregate. TVL fields always reflect the
// latest observed on-chain balance, never a running sum.
type Token struct {
	ID       string     `json:"id"` // lowercased address
	Symbol   string     `json:"symbol"`
	Name     string     `json:"name"`
	Decimals int32      `json:"decimals"`
	Class    AssetClass `json:"class"`
	// cove holding this asset; set only for long-tail assets
	CoveID string `json:"cove_id,omitempty"`

	TxCount      int64           `json:"tx_count"`
	Volume       decimal.Decimal `json:"volume"`
	VolumeUSD    decimal.Decimal `json:"volume_usd"`
	TVL          decimal.Decimal `json:"tvl"`
	TVLUSD       decimal.Decimal `json:"tvl_usd"`
	Deposited    decimal.Decimal `json:"deposited"`
	DepositedUSD decimal.Decimal `json:"deposited_usd"`
}

// Pool holds the lifetime counters of one deployed exchange instance.
// Averages are recomputed from sums on every update, never incremented.
type Pool struct {
	ID string `json:"id"`

	TxCount   int64           `json:"tx_count"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
	AvgTrade  decimal.Decimal `json:"avg_trade"`

	FeeUSD      decimal.Decimal `json:"fee_usd"`
	AvgTradeFee decimal.Decimal `json:"avg_trade_fee"`
	AvgFeeInBps decimal.Decimal `json:"avg_fee_in_bps"`

	DepositCount int64           `json:"deposit_count"`
	DepositedUSD decimal.Decimal `json:"deposited_usd"`
	AvgDeposit   decimal.Decimal `json:"avg_deposit"`

	WithdrawalCount int64           `json:"withdrawal_count"`
	WithdrewUSD     decimal.Decimal `json:"withdrew_usd"`
	AvgWithdraw     decimal.Decimal `json:"avg_withdraw"`

	PoolTokensSupply decimal.Decimal `json:"pool_tokens_supply"`
	UniqueUsers      int64           `json:"unique_users"`
}

// PoolStatus is one hourly or daily bucket of the pool counters, scoped to
// [From, To]. Bounds are immutable once the bucket exists.
type PoolStatus struct {
	ID     string `json:"id"`
	PoolID string `json:"pool_id"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`

	TxCount   int64           `json:"tx_count"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
	AvgTrade  decimal.Decimal `json:"avg_trade"`

	FeeUSD      decimal.Decimal `json:"fee_usd"`
	AvgTradeFee decimal.Decimal `json:"avg_trade_fee"`
	AvgFeeInBps decimal.Decimal `json:"avg_fee_in_bps"`

	DepositCount int64           `json:"deposit_count"`
	DepositedUSD decimal.Decimal `json:"deposited_usd"`
	AvgDeposit   decimal.Decimal `json:"avg_deposit"`

	WithdrawalCount int64           `json:"withdrawal_count"`
	WithdrewUSD     decimal.Decimal `json:"withdrew_usd"`
	AvgWithdraw     decimal.Decimal `json:"avg_withdraw"`

	PoolTokensSupply decimal.Decimal `json:"pool_tokens_supply"`
	// mark-to-market pool value at bucket creation
	PoolValueUSD decimal.Decimal `json:"pool_value_usd"`
}

// Cove is a sub-vault keyed by its long-tail asset address.
type Cove struct {
	ID            string `json:"id"`
	LongtailAsset string `json:"longtail_asset"`
	Opener        string `json:"opener"`
	OpenedAt      int64  `json:"opened_at"`
	Transaction   string `json:"transaction"`

	PoolTokenAmount     decimal.Decimal `json:"pool_token_amount"`
	LongtailTokenAmount decimal.Decimal `json:"longtail_token_amount"`
	TVLUSD              decimal.Decimal `json:"tvl_usd"`

	VolumeUSD       decimal.Decimal `json:"volume_usd"`
	SwapCount       int64           `json:"swap_count"`
	DepositCount    int64           `json:"deposit_count"`
	WithdrawalCount int64           `json:"withdrawal_count"`
}

// CoveStatus is one hourly or daily bucket for a single cove. CoveID is
// empty on the global variant that aggregates all coves together.
type CoveStatus struct {
	ID     string `json:"id"`
	CoveID string `json:"cove_id,omitempty"`
	From   int64  `json:"from"`
	To     int64  `json:"to"`

	TxCount   int64           `json:"tx_count"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
	AvgTrade  decimal.Decimal `json:"avg_trade"`

	DepositCount    int64 `json:"deposit_count"`
	WithdrawalCount int64 `json:"withdrawal_count"`

	// latest observed implied price of the cove asset within the bucket
	LatestPrice decimal.Decimal `json:"latest_price"`
}

// UserCoveStake tracks one wallet's cumulative deposit tokens in one cove.
type UserCoveStake struct {
	ID            string          `json:"id"` // coveID + "-" + wallet
	CoveID        string          `json:"cove_id"`
	User          string          `json:"user"`
	DepositTokens decimal.Decimal `json:"deposit_tokens"`
	Active        bool            `json:"active"`
}

type User struct {
	ID               string          `json:"id"` // wallet address
	FirstTxTimestamp int64           `json:"first_tx_timestamp"`
	LastTxTimestamp  int64           `json:"last_tx_timestamp"`
	VolumeUSD        decimal.Decimal `json:"volume_usd"`
	TxCount          int64           `json:"tx_count"`
}

// Pair aggregates trades of an unordered asset pair. The key is the two
// asset ids concatenated; both orderings are probed before creating.
type Pair struct {
	ID        string          `json:"id"`
	Asset0    string          `json:"asset0"`
	Asset1    string          `json:"asset1"`
	TxCount   int64           `json:"tx_count"`
	VolumeUSD decimal.Decimal `json:"volume_usd"`
}

// TransactionSource counts transactions per attribution tag.
type TransactionSource struct {
	ID      string `json:"id"`
	TxCount int64  `json:"tx_count"`
}

// Swap is the immutable record of one swap event.
type Swap struct {
	ID          string `json:"id"`
	Transaction string `json:"transaction"`
	Timestamp   int64  `json:"timestamp"`
	LogIndex    uint32 `json:"log_index"`
	PoolID      string `json:"pool_id,omitempty"`
	SwapType    string `json:"swap_type,omitempty"` // "" for pool swaps, "COVE" for cove swaps

	InToken  string `json:"in_token"`
	OutToken string `json:"out_token"`

	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Origin    string `json:"origin"`

	AmountIn            decimal.Decimal `json:"amount_in"`
	AmountOut           decimal.Decimal `json:"amount_out"`
	AmountInUSD         decimal.Decimal `json:"amount_in_usd"`
	AmountOutUSD        decimal.Decimal `json:"amount_out_usd"`
	PricePerInputToken  decimal.Decimal `json:"price_per_input_token"`
	PricePerOutputToken decimal.Decimal `json:"price_per_output_token"`
	FeeUSD              decimal.Decimal `json:"fee_usd"`

	TransactionSource string `json:"transaction_source"`
	PairID            string `json:"pair_id,omitempty"`
}

// Deposit is the record of one inferred per-asset pool deposit, keyed by
// timestamp-txhash-token. The depositor can be re-pointed once by a
// farming-helper transfer.
type Deposit struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	PoolID    string          `json:"pool_id"`
	TokenID   string          `json:"token_id,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Depositor string          `json:"depositor"`
}

// DepositIndex lists the per-asset deposit rows written for one transaction,
// so the farming-helper transfer fix-up can find them by tx hash alone.
type DepositIndex struct {
	ID   string   `json:"id"` // tx hash
	Rows []string `json:"rows"`
}

// Withdrawal is the record of one pool or single-asset withdrawal.
type Withdrawal struct {
	ID         string          `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	PoolID     string          `json:"pool_id"`
	TokenID    string          `json:"token_id,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	AmountUSD  decimal.Decimal `json:"amount_usd"`
	Withdrawer string          `json:"withdrawer"`
}

// CoveDeposit is the record of one cove deposit, keyed by tx hash.
type CoveDeposit struct {
	ID        string          `json:"id"`
	Timestamp int64           `json:"timestamp"`
	CoveID    string          `json:"cove_id"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Depositor string          `json:"depositor"`
}
