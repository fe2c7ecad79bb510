// Package decode implements the protocol decoder: a pure function
// from a raw subscription frame to zero or more typed MarketEvents.
// Decoding is deterministic — the same frame always yields the same
// events — and never panics; parse failures return an empty event slice
// plus a DecodeError.
package decode

import (
	"encoding/base64"
	"encoding/json"
	"math"
	"time"

	"github.com/mr-tron/base58"

	"copytrade-core/internal/domain"
)

// Known program IDs mapped to the DEX kind that owns them. Unknown
// owners emit no event.
var programOwners = map[string]domain.DexKind{
	"675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8": domain.DexRaydium,
	"9W959DqEETiGZocYWCQPaJ6sBmUzgfxXfqGeTEdp3aQP": domain.DexOrca,
	"JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4":  domain.DexJupiter,
	"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA":  domain.DexSPLToken,
	"6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P":  domain.DexPumpStyle,
}

// DexKindForProgram returns the DEX kind that owns a program account, or
// DexUnknown if the owner isn't one of the supported protocols.
func DexKindForProgram(owner string) domain.DexKind {
	if kind, ok := programOwners[owner]; ok {
		return kind
	}
	return domain.DexUnknown
}

// DecodeError is returned alongside an empty event slice on any parse
// failure. It is a value, never a panic: the decoder's caller decides
// whether to log and skip.
type DecodeError struct {
	SubscriptionID uint64
	Reason         string
}

func (e *DecodeError) Error() string { return e.Reason }

// notification is the shape common to slot/account/program notifications;
// only the fields relevant to classification are extracted eagerly, the
// rest stays in RawMessage for kind-specific parsing.
type notification struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value struct {
		Pubkey string `json:"pubkey"`
		Account struct {
			Owner string          `json:"owner"`
			Data  json.RawMessage `json:"data"`
		} `json:"account"`
		// present directly on bare account notifications (no pubkey wrapper)
		Owner string          `json:"owner"`
		Data  json.RawMessage `json:"data"`
	} `json:"value"`
	// slotNotification shape
	Slot   *uint64 `json:"slot"`
	Parent *uint64 `json:"parent"`
	Root   *uint64 `json:"root"`
}

// Decode classifies a single raw frame into zero or more MarketEvents.
// It is pure and deterministic: Decode(id, f) == Decode(id, f) always.
func Decode(subscriptionID uint64, raw json.RawMessage) ([]domain.MarketEvent, *DecodeError) {
	if len(raw) == 0 {
		return nil, nil
	}

	// Bare slot notifications have "slot"/"parent"/"root" at the top level
	// with no "value" object; detect that shape first.
	var slotShape struct {
		Slot   *uint64 `json:"slot"`
		Parent *uint64 `json:"parent"`
		Root   *uint64 `json:"root"`
	}
	if err := json.Unmarshal(raw, &slotShape); err == nil && slotShape.Slot != nil && slotShape.Parent != nil {
		return []domain.MarketEvent{{
			Kind: domain.EventSlotUpdate,
			SlotUpdate: &domain.SlotUpdate{
				Slot:   *slotShape.Slot,
				Parent: valueOr(slotShape.Parent, 0),
				Root:   valueOr(slotShape.Root, 0),
			},
		}}, nil
	}

	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, &DecodeError{SubscriptionID: subscriptionID, Reason: "malformed json: " + err.Error()}
	}

	owner := n.Value.Owner
	if owner == "" {
		owner = n.Value.Account.Owner
	}
	data := n.Value.Data
	if len(data) == 0 {
		data = n.Value.Account.Data
	}

	if owner == "" {
		// No recognizable program ownership: emit a generic account
		// update only if there's an account key to report, else nothing.
		if n.Value.Pubkey == "" {
			return nil, nil
		}
		return []domain.MarketEvent{{
			Kind: domain.EventAccountUpdate,
			AccountUpdate: &domain.AccountUpdate{
				Account: n.Value.Pubkey,
				Slot:    n.Context.Slot,
			},
		}}, nil
	}

	dex := DexKindForProgram(owner)
	if dex == domain.DexUnknown {
		return nil, nil
	}

	return classify(subscriptionID, dex, n, data)
}

func valueOr(p *uint64, def uint64) uint64 {
	if p == nil {
		return def
	}
	return *p
}

// classify applies per-DEX account-layout heuristics to produce typed
// events. This heuristic layer is intentionally conservative: it only
// emits an event when the parsed fields are self-consistent. Data it
// cannot use yields either a generic AccountUpdate or no event at all
// (unknown DEX kinds, unparseable token accounts and swap logs, and pool
// accounts without nonzero reserves produce nothing).
func classify(subscriptionID uint64, dex domain.DexKind, n notification, data json.RawMessage) ([]domain.MarketEvent, *DecodeError) {
	switch dex {
	case domain.DexSPLToken:
		return classifySPLToken(n, data)
	case domain.DexRaydium, domain.DexOrca, domain.DexPumpStyle:
		return classifyPoolAccount(dex, n, data)
	case domain.DexJupiter:
		return classifySwapLog(n, data)
	default:
		return nil, nil
	}
}

// parsedTokenAccount is the jsonParsed shape of an SPL token account.
type parsedTokenAccount struct {
	Parsed struct {
		Info struct {
			Mint        string `json:"mint"`
			Owner       string `json:"owner"`
			TokenAmount struct {
				Amount   string  `json:"amount"`
				Decimals int     `json:"decimals"`
				UIAmount float64 `json:"uiAmount"`
			} `json:"tokenAmount"`
		} `json:"info"`
	} `json:"parsed"`
}

func classifySPLToken(n notification, data json.RawMessage) ([]domain.MarketEvent, *DecodeError) {
	var parsed parsedTokenAccount
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Parsed.Info.Mint == "" {
		return nil, nil // not a decodable parsed token account; skip quietly
	}

	// A large transfer is detected as a token-account balance notification
	// whose magnitude exceeds nothing on its own (the account-level view
	// can't see counterparties) — the decoder emits the account update;
	// a large-transfer classification needs transaction-level data which
	// arrives through program notifications, handled below.
	return []domain.MarketEvent{{
		Kind: domain.EventAccountUpdate,
		AccountUpdate: &domain.AccountUpdate{
			Account: n.Value.Pubkey,
			Owner:   parsed.Parsed.Info.Owner,
			Slot:    n.Context.Slot,
		},
	}}, nil
}

// raydiumPoolLayout is the minimal subset of an AMM pool's base64 account
// data the decoder reads: the base and quote mints, at fixed byte offsets
// matching the Raydium liquidity-pool state layout. BaseRes and QuoteRes
// are not read from the account data and stay zero.
type raydiumPoolLayout struct {
	BaseMint  string
	QuoteMint string
	BaseRes   uint64
	QuoteRes  uint64
}

func classifyPoolAccount(dex domain.DexKind, n notification, data json.RawMessage) ([]domain.MarketEvent, *DecodeError) {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil || len(pair) < 2 {
		return nil, nil
	}
	if pair[1] != "base64" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(pair[0])
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64 pool data: " + err.Error()}
	}

	layout, ok := decodeRaydiumLayout(raw)
	if !ok {
		// Account changed but layout isn't recognizable yet (e.g. still
		// being initialized) — treat as a generic update, not an error.
		return []domain.MarketEvent{{
			Kind:          domain.EventAccountUpdate,
			AccountUpdate: &domain.AccountUpdate{Account: n.Value.Pubkey, Slot: n.Context.Slot},
		}}, nil
	}

	// First sighting of a pool with nonzero reserves is treated as the
	// pool's creation event; subsequent updates are swaps affecting
	// reserves, surfaced generically since the account view alone can't
	// attribute a wallet or direction without the transaction log.
	if layout.BaseRes > 0 && layout.QuoteRes > 0 {
		return []domain.MarketEvent{{
			Kind: domain.EventPoolCreated,
			PoolCreated: &domain.PoolCreated{
				PoolAddress:      n.Value.Pubkey,
				BaseMint:         layout.BaseMint,
				QuoteMint:        layout.QuoteMint,
				DexKind:          dex,
				InitialLiquidity: float64(layout.QuoteRes) / 1e9,
				Slot:             n.Context.Slot,
				CreatedAt:        time.Now(),
			},
		}}, nil
	}

	return nil, nil
}

// decodeRaydiumLayout extracts the two mints from a pool account's raw
// bytes. The real Raydium AMM v4 layout places the two mint pubkeys at
// fixed offsets; this implementation validates length and offsets
// defensively and reports ok=false rather than guessing on truncated data.
// Reserves are not decoded, so a recognized layout has zero reserves and
// classifyPoolAccount emits no PoolCreated event for it.
func decodeRaydiumLayout(raw []byte) (raydiumPoolLayout, bool) {
	const (
		baseMintOffset  = 400
		quoteMintOffset = 432
		mintLen         = 32
	)
	if len(raw) < quoteMintOffset+mintLen {
		return raydiumPoolLayout{}, false
	}
	return raydiumPoolLayout{
		BaseMint:  base58.Encode(raw[baseMintOffset : baseMintOffset+mintLen]),
		QuoteMint: base58.Encode(raw[quoteMintOffset : quoteMintOffset+mintLen]),
	}, true
}

// swapLogEntry is the jsonParsed shape for a program-log swap
// notification carrying signature/wallet/direction.
type swapLogEntry struct {
	Signature string `json:"signature"`
	Wallet    string `json:"wallet"`
	TokenIn   string `json:"tokenIn"`
	TokenOut  string `json:"tokenOut"`
	Direction string `json:"direction"`
}

func classifySwapLog(n notification, data json.RawMessage) ([]domain.MarketEvent, *DecodeError) {
	var entry swapLogEntry
	if err := json.Unmarshal(data, &entry); err != nil || entry.Signature == "" {
		return nil, nil
	}
	dir := domain.SwapBuy
	if entry.Direction == "sell" {
		dir = domain.SwapSell
	}
	return []domain.MarketEvent{{
		Kind: domain.EventSwapDetected,
		SwapDetected: &domain.SwapDetected{
			Signature: entry.Signature,
			TokenIn:   entry.TokenIn,
			TokenOut:  entry.TokenOut,
			Wallet:    entry.Wallet,
			Direction: dir,
			DexKind:   domain.DexJupiter,
			Slot:      n.Context.Slot,
		},
	}}, nil
}

// BondingProgress computes curve fill. Note this inverts the usual "fill
// percentage" direction (larger return value does not mean "more mature"
// in the conventional sense); confirm intent with the domain owner before
// treating larger values as "more mature".
func BondingProgress(refSOL, currentSOL float64) float64 {
	if refSOL == 0 {
		return 0
	}
	v := ((refSOL - currentSOL) / refSOL) * 100
	return math.Max(0, math.Min(100, v))
}
