// Package watcher polls an EVM chain and screens confirmed transactions
// against the pattern detectors.
//
// Flagged transactions have already landed on chain, so the watcher is an
// alerting surface rather than a gate: hits go to the report callback and
// the warning history, nothing is blocked.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/mbd888/chainguard/internal/guard"
	"github.com/mbd888/chainguard/internal/tx"
)

// ChainReader is the subset of ethclient.Client the watcher needs.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// Validator screens a transaction and returns the detection result.
type Validator interface {
	ValidateUnifiedTransactionWithPatterns(ctx context.Context, t *tx.UnifiedTransaction) (*guard.ValidationResult, error)
}

// ReportFunc receives every transaction the detectors flagged.
type ReportFunc func(t *tx.UnifiedTransaction, result *guard.ValidationResult)

// Config for the chain watcher
type Config struct {
	RPCURL       string
	PollInterval time.Duration
	StartBlock   uint64 // 0 = latest
	// MaxBlocksPerPoll bounds catch-up after downtime so a single poll
	// cannot stall on a long block range.
	MaxBlocksPerPoll uint64
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PollInterval:     15 * time.Second,
		StartBlock:       0,
		MaxBlocksPerPoll: 32,
	}
}

// Watcher polls for new blocks and runs every transaction through the
// validator.
type Watcher struct {
	client    ChainReader
	config    Config
	validator Validator
	report    ReportFunc
	logger    *slog.Logger

	lastBlock uint64

	stop chan struct{}
	done chan struct{}
}

// New dials the RPC endpoint and creates a watcher.
func New(cfg Config, v Validator, report ReportFunc, logger *slog.Logger) (*Watcher, error) {
	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	return NewWithReader(client, cfg, v, report, logger), nil
}

// NewWithReader creates a watcher on an existing chain reader.
func NewWithReader(client ChainReader, cfg Config, v Validator, report ReportFunc, logger *slog.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxBlocksPerPoll == 0 {
		cfg.MaxBlocksPerPoll = DefaultConfig().MaxBlocksPerPoll
	}
	return &Watcher{
		client:    client,
		config:    cfg,
		validator: v,
		report:    report,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins polling for new blocks
func (w *Watcher) Start(ctx context.Context) error {
	if w.config.StartBlock == 0 {
		block, err := w.client.BlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("failed to get block number: %w", err)
		}
		w.lastBlock = block
	} else {
		w.lastBlock = w.config.StartBlock - 1
	}

	w.logger.Info("chain watcher started",
		"startBlock", w.lastBlock,
		"pollInterval", w.config.PollInterval,
	)

	go w.pollLoop(ctx)
	return nil
}

// Stop stops the watcher and waits for the poll loop to exit
func (w *Watcher) Stop() {
	close(w.stop)
	<-w.done
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			if err := w.poll(ctx); err != nil {
				w.logger.Error("poll failed", "error", err)
			}
		}
	}
}

// poll screens every transaction in the blocks since the last poll.
func (w *Watcher) poll(ctx context.Context) error {
	head, err := w.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to get block number: %w", err)
	}

	// Nothing new
	if head <= w.lastBlock {
		return nil
	}

	to := head
	if to-w.lastBlock > w.config.MaxBlocksPerPoll {
		to = w.lastBlock + w.config.MaxBlocksPerPoll
	}

	for n := w.lastBlock + 1; n <= to; n++ {
		block, err := w.client.BlockByNumber(ctx, new(big.Int).SetUint64(n))
		if err != nil {
			return fmt.Errorf("failed to fetch block %d: %w", n, err)
		}
		for _, t := range block.Transactions() {
			w.screen(ctx, t)
		}
		w.lastBlock = n
	}
	return nil
}

func (w *Watcher) screen(ctx context.Context, t *types.Transaction) {
	// Contract creations carry no call target for the selector checks.
	if t.To() == nil {
		return
	}

	ut := unified(t)
	result, err := w.validator.ValidateUnifiedTransactionWithPatterns(ctx, ut)
	if err != nil {
		w.logger.Error("screening failed", "tx", ut.ID, "error", err)
		return
	}
	if len(result.Warnings) == 0 {
		return
	}

	w.logger.Warn("confirmed transaction flagged",
		"tx", ut.ID,
		"warnings", len(result.Warnings),
	)
	if w.report != nil {
		w.report(ut, result)
	}
}

// unified maps a confirmed chain transaction onto the detector input shape.
func unified(t *types.Transaction) *tx.UnifiedTransaction {
	return &tx.UnifiedTransaction{
		ID:    t.Hash().Hex(),
		Chain: tx.ChainEVM,
		EVM: &tx.EVMCall{
			To:                   *t.To(),
			Data:                 t.Data(),
			Value:                t.Value(),
			MaxFeePerGas:         t.GasFeeCap(),
			MaxPriorityFeePerGas: t.GasTipCap(),
		},
	}
}
