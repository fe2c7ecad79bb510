// Package domain holds the shared data model for the signal pipeline:
// market events, trading signals, and the entities they compose into.
package domain

import "time"

// DefaultTokenDecimals is used when a newly-seen mint's decimals are not
// yet known from metadata; verify against authoritative metadata before
// doing production arithmetic on token quantities derived from it.
const DefaultTokenDecimals = 9

// DexKind categorizes the protocol family that owns a program account.
type DexKind string

const (
	DexRaydium   DexKind = "raydium"
	DexJupiter   DexKind = "jupiter"
	DexOrca      DexKind = "orca"
	DexSPLToken  DexKind = "spl_token"
	DexPumpStyle DexKind = "pump_style"
	DexUnknown   DexKind = "unknown"
)

// SwapDirection is the side of a swap from the wallet's perspective.
type SwapDirection string

const (
	SwapBuy  SwapDirection = "buy"
	SwapSell SwapDirection = "sell"
)

// EventKind discriminates MarketEvent variants.
type EventKind string

const (
	EventPoolCreated         EventKind = "pool_created"
	EventTokenLaunched       EventKind = "token_launched"
	EventSwapDetected        EventKind = "swap_detected"
	EventLargeTransfer       EventKind = "large_transfer_detected"
	EventAccountUpdate       EventKind = "account_update"
	EventSlotUpdate          EventKind = "slot_update"
	EventOther               EventKind = "other"
)

// MarketEvent is the decoded, typed representation of a single on-chain
// notification. Exactly one of the variant-specific pointer fields is set,
// matching Kind. This flattened-variant encoding (one struct, nilable
// sub-fields) keeps the type free of interfaces on the hot decode path.
type MarketEvent struct {
	Kind EventKind

	PoolCreated   *PoolCreated
	TokenLaunched *TokenLaunched
	SwapDetected  *SwapDetected
	LargeTransfer *LargeTransferDetected
	AccountUpdate *AccountUpdate
	SlotUpdate    *SlotUpdate
}

type PoolCreated struct {
	PoolAddress      string
	BaseMint         string
	QuoteMint        string
	DexKind          DexKind
	CreatorAddress   string
	InitialLiquidity float64
	Slot             uint64
	CreatedAt        time.Time
}

type TokenLaunched struct {
	Mint            string
	Symbol          string
	Supply          uint64
	Decimals        int
	MintAuthority   string // empty means none
	FreezeAuthority string // empty means none
	Slot            uint64
	CreatedAt       time.Time
}

type SwapDetected struct {
	Signature string
	TokenIn   string
	TokenOut  string
	Wallet    string
	Direction SwapDirection
	DexKind   DexKind
	Slot      uint64
}

type LargeTransferDetected struct {
	Signature  string
	TokenMint  string
	FromWallet string
	ToWallet   string
	AmountBase float64
	AmountUSD  *float64 // nil when unknown
}

type AccountUpdate struct {
	Account string
	Owner   string
	Slot    uint64
	Data    []byte
}

type SlotUpdate struct {
	Slot   uint64
	Parent uint64
	Root   uint64
}

// SignalKind discriminates TradingSignal variants.
type SignalKind string

const (
	SignalBuy  SignalKind = "buy"
	SignalSell SignalKind = "sell"
)

// Urgency is a discrete scheduling priority for a signal's publish delay.
type Urgency string

const (
	UrgencyImmediate Urgency = "immediate"
	UrgencyHigh      Urgency = "high"
	UrgencyNormal    Urgency = "normal"
	UrgencyLow       Urgency = "low"
)

// TradingSignal is published on the event bus's trading_signals channel.
// Exactly one of Buy/Sell is set, matching Kind.
type TradingSignal struct {
	Kind SignalKind
	Buy  *BuySignal
	Sell *SellSignal
}

type BuySignal struct {
	TokenMint string
	Confidence float64 // [0,1]
	MaxAmount  float64
	Reason     string
	Source     string
	Delay      time.Duration // zero means publish immediately
	Urgency    Urgency
	Metadata   map[string]string
}

type SellSignal struct {
	TokenMint  string
	PriceTarget float64
	StopLoss    float64
	Amount      *float64 // nil means sell entire position
	Reason      string
	Metadata    map[string]string
}
