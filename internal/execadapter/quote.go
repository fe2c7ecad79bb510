package execadapter

import (
	"context"
	"fmt"
	"strconv"

	"copytrade-core/internal/capability"
	"copytrade-core/internal/jupiter"
	"copytrade-core/internal/position"
)

// QuoteAdapter implements position.QuoteCapability against a live Jupiter
// quote, converting the token-to-SOL quote into USD via an externally
// supplied rate function (the core has no oracle of its own for SOL/USD).
type QuoteAdapter struct {
	jupiter    *jupiter.Client
	quoteMint  string
	solUSDRate func() float64
}

// NewQuoteAdapter builds a QuoteAdapter. quoteMint is SOL's mint address;
// solUSDRate is called on every Quote to get the current conversion rate.
func NewQuoteAdapter(jc *jupiter.Client, quoteMint string, solUSDRate func() float64) *QuoteAdapter {
	return &QuoteAdapter{jupiter: jc, quoteMint: quoteMint, solUSDRate: solUSDRate}
}

// Quote asks Jupiter for a mint->SOL quote on the full tokensHeld amount
// and converts the proceeds to USD.
func (q *QuoteAdapter) Quote(ctx context.Context, mint string, tokensHeld float64) (float64, float64, error) {
	if tokensHeld <= 0 {
		return 0, 0, nil
	}
	resp, err := q.jupiter.GetQuote(ctx, mint, q.quoteMint, uint64(tokensHeld))
	if err != nil {
		return 0, 0, fmt.Errorf("execadapter: quote: %w", err)
	}
	outLamports, err := strconv.ParseUint(resp.OutAmount, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("execadapter: parse quote out amount: %w", err)
	}
	solOut := float64(outLamports) / 1e9
	valueUSD := solOut * q.solUSDRate()
	price := valueUSD / tokensHeld
	return price, valueUSD, nil
}

// SellAdapter implements position.SellCapability by submitting a
// mint->SOL swap for the exited fraction of a tracked position's tokens,
// then applying the exit to the tracker on success.
type SellAdapter struct {
	submitter   capability.TradeSubmitter
	tracker     *position.Tracker
	quoteMint   string
	slippageBps int
}

// NewSellAdapter builds a SellAdapter. quoteMint is SOL's mint address.
func NewSellAdapter(submitter capability.TradeSubmitter, tracker *position.Tracker, quoteMint string, slippageBps int) *SellAdapter {
	return &SellAdapter{submitter: submitter, tracker: tracker, quoteMint: quoteMint, slippageBps: slippageBps}
}

func (s *SellAdapter) Sell(ctx context.Context, mint string, fraction float64) error {
	pos, ok := s.tracker.Get(mint)
	if !ok {
		return fmt.Errorf("execadapter: no open position for %s", mint)
	}
	amount := uint64(pos.TokensHeld * fraction)
	if amount == 0 {
		return fmt.Errorf("execadapter: exit amount rounds to zero for %s", mint)
	}
	if _, err := s.submitter.SubmitSwap(ctx, mint, s.quoteMint, amount, s.slippageBps); err != nil {
		return fmt.Errorf("execadapter: sell submit: %w", err)
	}
	s.tracker.ApplyExit(mint, fraction)
	return nil
}
