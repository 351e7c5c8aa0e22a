// Package store provides data models and SQLite-backed persistence.
package store

// Fill represents a single trade execution fetched from the exchange.
type Fill struct {
	// Token is the instrument symbol (e.g. BTC, ETH)
	Token string

	// Side is the normalized direction: "buy" or "sell"
	Side string

	// Dir is the upstream direction label, if any (e.g. "Open Short")
	Dir string

	// Size is the absolute trade size in units of the instrument
	Size float64

	// Price is the execution price
	Price float64

	// Notional is |size| * price in USD
	Notional float64

	// TimeMs is the execution time as millisecond epoch
	TimeMs int64

	// TradeID is the upstream trade identifier
	TradeID string

	// OrderID is the upstream order identifier (may be empty)
	OrderID string
}

// Transfer represents a single ledger movement (deposit/withdrawal).
type Transfer struct {
	// Kind is the normalized movement type: "deposit", "withdraw" or "internal"
	Kind string

	// Token is the settlement asset (typically USDC)
	Token string

	// AmountUSD is the absolute USD-denominated amount
	AmountUSD float64

	// TimeMs is the ledger time as millisecond epoch
	TimeMs int64

	// Hash is the upstream transaction hash
	Hash string
}

// Finding kinds produced by the classifier.
const (
	FindingLargeDeposit     = "LARGE_DEPOSIT"
	FindingLargeOpenShort   = "LARGE_OPEN_SHORT"
	FindingElevatedActivity = "ELEVATED_ACTIVITY"
	FindingAggregate        = "AGGREGATE"
)

// Finding is one classified, alert-worthy event for one address.
type Finding struct {
	Kind     string
	Address  string
	Token    string
	Subtype  string
	Size     float64
	Price    float64
	Notional float64
	TimeMs   int64
	SourceID string
}

// LargeTrade is an archived fill above the market-wide minimum size,
// tagged with its owning wallet for cross-address cluster scans.
type LargeTrade struct {
	TradeID       string
	Wallet        string
	Token         string
	Side          string
	Notional      float64
	Price         float64
	Size          float64
	TimeMs        int64
	WalletAgeDays int
}

// Cluster directions.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Cluster is a detected coordinated-trading pattern. Immutable once created.
type Cluster struct {
	ID            string
	Wallets       []string
	Token         string
	Direction     string
	Trades        []LargeTrade
	TotalNotional float64
	TradeCount    int
	WalletCount   int
	SpanMinutes   float64
	Alignment     float64
	Score         int
	FirstTradeMs  int64
	LastTradeMs   int64
}

// ElevatedWallet is a persisted watchlist entry.
type ElevatedWallet struct {
	Address string
	Reason  string
	AddedAt int64
}
