// Package capability defines the external interfaces the core consumes
// rather than implements: trade submission, signing, and persistence.
// Concrete backends are injected at construction (see internal/execadapter
// and internal/storage for this repo's demo implementations).
package capability

import (
	"context"
	"time"

	"copytrade-core/internal/domain"
)

// TxResult is the outcome of a submitted swap.
type TxResult struct {
	Signature       string
	InputAmount     uint64
	OutputAmount    uint64
	PriceImpactPct  float64
}

// TradeSubmitter is the on-chain RPC/DEX aggregator capability. Concrete
// backends handle quote retrieval, transaction construction, and
// submission; the core only ever calls SubmitSwap.
type TradeSubmitter interface {
	SubmitSwap(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (TxResult, error)
}

// SigningCapability is the wallet key-management capability. The core
// never reads private key material directly.
type SigningCapability interface {
	Sign(ctx context.Context, message []byte) ([]byte, error)
	PublicKey() string
}

// Store is the persistence capability backing the performance aggregate
// tables and the insider detector's wallet-history queries. Schemas are
// owned by the implementation; the core only relies on this query
// contract.
type Store interface {
	// Append-only event log.
	AppendCopyTradeRecord(ctx context.Context, rec *domain.CopyTradeRecord) (int64, error)
	UpdateCopyTradeRecord(ctx context.Context, id int64, exit float64, pnl float64, holdSeconds int64, result domain.CopyTradeResult, reason string) error
	RecentCopyTrades(ctx context.Context, insider string, limit int) ([]*domain.CopyTradeRecord, error)

	// Insider wallet rollups, read by the insider detector on each rescoring pass.
	WalletTradeHistory(ctx context.Context, address string, since time.Time) ([]*domain.CopyTradeRecord, error)
	HighPerformers(ctx context.Context, minWinRate, minProfit float64, minTrades int) ([]string, error)
	ConsistentEarlyEntrants(ctx context.Context, maxAvgDelayMinutes float64, minEarlyEntryRate float64) ([]string, error)
	OutsizedProfitWallets(ctx context.Context, minProfitPct float64) ([]string, error)

	// Feedback reads driving the insider detector's confidence adjustments.
	PendingFeedback(ctx context.Context) ([]domain.PerformanceFeedback, error)

	// Session bookkeeping.
	RecordSessionStart(ctx context.Context, startingCapitalUSD float64) (int64, error)
	RecordSessionEnd(ctx context.Context, sessionID int64, endingCapitalUSD float64, trades int) error
}
