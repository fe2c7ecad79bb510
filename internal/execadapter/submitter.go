// Package execadapter wires the blockchain and Jupiter clients into the
// capability.TradeSubmitter contract the execution orchestrator consumes:
// quote, build swap transaction, sign, submit — reduced to the single
// SubmitSwap entry point the core needs, since position sizing and
// retries are owned by the orchestrator itself.
package execadapter

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"copytrade-core/internal/blockchain"
	"copytrade-core/internal/capability"
	"copytrade-core/internal/jupiter"
)

// JupiterSubmitter implements capability.TradeSubmitter against a live
// Jupiter quote/swap API and a blockchain RPC client for signing and
// broadcast.
type JupiterSubmitter struct {
	jupiter       *jupiter.Client
	wallet        *blockchain.Wallet
	txBuilder     *blockchain.TransactionBuilder
	rpc           *blockchain.RPCClient
	skipPreflight bool
}

// NewJupiterSubmitter assembles a submitter from already-constructed
// clients; the caller owns their lifecycle (RPC failover) independently
// of this adapter.
func NewJupiterSubmitter(jc *jupiter.Client, wallet *blockchain.Wallet, txBuilder *blockchain.TransactionBuilder, rpc *blockchain.RPCClient) *JupiterSubmitter {
	return &JupiterSubmitter{
		jupiter:       jc,
		wallet:        wallet,
		txBuilder:     txBuilder,
		rpc:           rpc,
		skipPreflight: true,
	}
}

// SubmitSwap quotes, builds, signs, and submits a swap from inputMint to
// outputMint for amount (in the input mint's base units), returning the
// resulting transaction outcome.
func (s *JupiterSubmitter) SubmitSwap(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (capability.TxResult, error) {
	quote, err := s.jupiter.GetQuote(ctx, inputMint, outputMint, amount)
	if err != nil {
		return capability.TxResult{}, fmt.Errorf("execadapter: quote: %w", err)
	}

	swapTx, err := s.jupiter.GetSwapTransaction(ctx, inputMint, outputMint, s.wallet.Address(), amount)
	if err != nil {
		return capability.TxResult{}, fmt.Errorf("execadapter: build swap tx: %w", err)
	}

	signedTx, err := s.txBuilder.SignSerializedTransaction(swapTx)
	if err != nil {
		return capability.TxResult{}, fmt.Errorf("execadapter: sign: %w", err)
	}

	sig, err := s.rpc.SendTransaction(ctx, signedTx, s.skipPreflight)
	if err != nil {
		log.Warn().Str("mint", outputMint).Msg(blockchain.HumanErrorWithAction(err))
		return capability.TxResult{}, fmt.Errorf("execadapter: submit: %w", err)
	}

	outAmount, _ := strconv.ParseUint(quote.OutAmount, 10, 64)
	priceImpact, _ := strconv.ParseFloat(quote.PriceImpactPct, 64)

	return capability.TxResult{
		Signature:      sig,
		InputAmount:    amount,
		OutputAmount:   outAmount,
		PriceImpactPct: priceImpact,
	}, nil
}

// WalletSigner implements capability.SigningCapability over a blockchain
// wallet, so components outside internal/blockchain never touch key
// material directly.
type WalletSigner struct {
	wallet *blockchain.Wallet
}

// NewWalletSigner wraps wallet as a SigningCapability.
func NewWalletSigner(wallet *blockchain.Wallet) *WalletSigner {
	return &WalletSigner{wallet: wallet}
}

func (w *WalletSigner) Sign(_ context.Context, message []byte) ([]byte, error) {
	return w.wallet.Sign(message), nil
}

func (w *WalletSigner) PublicKey() string {
	return w.wallet.Address()
}
