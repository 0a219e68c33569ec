// Package guard composes pattern detection, the risk oracle, and policy
// into a single pre-flight allow/block decision for a proposed transaction.
package guard

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gagliardetto/solana-go"
	"github.com/mbd888/chainguard/internal/evm"
	"github.com/mbd888/chainguard/internal/oracle"
	"github.com/mbd888/chainguard/internal/pattern"
	solanadetect "github.com/mbd888/chainguard/internal/solana"
)

// MaxSlippagePercent is the slippage ceiling for IsSlippageAcceptable.
const MaxSlippagePercent = 5.0

// ValidationResult is the terminal outcome of one validation. Computed
// fresh per call; IsValid is false iff at least one warning blocks under
// the active policy or the emergency stop is set, and BlockedBy lists
// exactly the responsible pattern ids.
type ValidationResult struct {
	IsValid   bool              `json:"isValid"`
	Warnings  []pattern.Warning `json:"warnings"`
	BlockedBy []pattern.Pattern `json:"blockedBy,omitempty"`
}

// Guard is a bound validation instance: configuration, detectors, oracle
// client, the process-wide emergency latch, and the warning history.
type Guard struct {
	mu          sync.RWMutex
	cfg         Config
	solDetector *solanadetect.Detector
	evmDetector *evm.Detector
	oracle      *oracle.Client
	history     []pattern.Warning
	emergency   atomic.Bool
	logger      *slog.Logger

	oracleOpts []oracle.Option
}

// Option configures the guard.
type Option func(*Guard)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithOracleOptions forwards options to the risk oracle client, rebuilt on
// every config swap (tests inject caches and stub HTTP clients this way).
func WithOracleOptions(opts ...oracle.Option) Option {
	return func(g *Guard) { g.oracleOpts = opts }
}

// New builds a guard from a config.
func New(cfg Config, opts ...Option) *Guard {
	g := &Guard{logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	g.apply(cfg)
	return g
}

// SetConfig replaces the configuration wholesale and rebuilds the
// detectors and oracle client around it.
func (g *Guard) SetConfig(cfg Config) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.apply(cfg)
}

// Config returns the active configuration.
func (g *Guard) Config() Config {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cfg
}

// apply rebuilds derived state from cfg. Caller holds g.mu (or is New).
func (g *Guard) apply(cfg Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBlock
	}
	if cfg.RiskTolerance == "" {
		cfg.RiskTolerance = ToleranceModerate
	}
	g.cfg = cfg
	g.solDetector = solanadetect.NewDetector(solanadetect.Config{
		ValidateTransferHooks: cfg.ValidateTransferHooks,
		MaxHookAccounts:       cfg.MaxHookAccounts,
		AllowedHookPrograms:   parseHookPrograms(cfg.AllowedHookPrograms, g.logger),
	})
	g.evmDetector = evm.NewDetector()
	g.oracle = oracle.NewClient(cfg.Pulsar, g.oracleOpts...)
}

// parseHookPrograms converts configured base58 program ids, skipping (and
// logging) anything unparsable rather than failing the whole config.
func parseHookPrograms(raw []string, logger *slog.Logger) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(raw))
	for _, s := range raw {
		pk, err := solana.PublicKeyFromBase58(s)
		if err != nil {
			logger.Warn("ignoring invalid hook program id", "program", s, "error", err)
			continue
		}
		out = append(out, pk)
	}
	return out
}

// ActivateEmergencyStop trips the latch: every subsequent validation on
// this instance is blocked until deactivated.
func (g *Guard) ActivateEmergencyStop() {
	g.emergency.Store(true)
	g.logger.Warn("emergency stop activated")
}

// DeactivateEmergencyStop releases the latch. The config-level
// EmergencyStop flag, if set, still blocks.
func (g *Guard) DeactivateEmergencyStop() {
	g.emergency.Store(false)
	g.logger.Info("emergency stop deactivated")
}

// EmergencyStopped reports whether the latch or the config flag is set.
func (g *Guard) EmergencyStopped() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.emergency.Load() || g.cfg.EmergencyStop
}

// WarningHistory returns a copy of the append-only warning log.
func (g *Guard) WarningHistory() []pattern.Warning {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]pattern.Warning, len(g.history))
	copy(out, g.history)
	return out
}

// ClearWarningHistory empties the warning log.
func (g *Guard) ClearWarningHistory() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = nil
}

func (g *Guard) recordWarnings(ws []pattern.Warning) {
	if len(ws) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, ws...)
}

// Oracle exposes the risk client for the API surface (cache stats, lookups).
func (g *Guard) Oracle() *oracle.Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.oracle
}

// IsSlippageAcceptable reports whether an observed slippage percentage is
// within the fixed tolerance. Negative slippage (a better price) passes.
func IsSlippageAcceptable(actual float64) bool {
	return actual <= MaxSlippagePercent
}
