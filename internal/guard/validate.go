package guard

import (
	"context"
	"fmt"

	"github.com/mbd888/chainguard/internal/metrics"
	"github.com/mbd888/chainguard/internal/oracle"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/traces"
	"github.com/mbd888/chainguard/internal/tx"
)

// ValidateTransaction is the legacy account-model-only entry point: it
// validates a bare Solana instruction set under the active config.
func (g *Guard) ValidateTransaction(ctx context.Context, data *tx.SolanaData) (*ValidationResult, error) {
	return g.ValidateUnifiedTransactionWithPatterns(ctx, &tx.UnifiedTransaction{
		Chain:  tx.ChainSolana,
		Solana: data,
	})
}

// ValidateUnifiedTransactionWithPatterns runs the full validation sequence:
// emergency stop, chain consistency, per-chain pattern detection, custom
// rules, risk check, privacy check, then policy.
//
// The only error path is a risk oracle failure with fallback disabled;
// everything else, including malformed input, surfaces as warnings in the
// result. A blocked transaction is never silently allowed and a warn-mode
// transaction is never silently blocked.
func (g *Guard) ValidateUnifiedTransactionWithPatterns(ctx context.Context, t *tx.UnifiedTransaction) (*ValidationResult, error) {
	ctx, span := traces.StartSpan(ctx, "guard.validate", traces.Chain(string(t.Chain)), traces.TxID(t.ID))
	defer span.End()

	g.mu.RLock()
	cfg := g.cfg
	solDetector := g.solDetector
	evmDetector := g.evmDetector
	oracleClient := g.oracle
	g.mu.RUnlock()

	// Emergency stop short-circuits before any other check, for every
	// input and every mode.
	if g.EmergencyStopped() {
		w := pattern.NewWarning(pattern.EmergencyStop, pattern.SeverityCritical,
			"emergency stop is active; all transactions are blocked")
		g.recordWarnings([]pattern.Warning{w})
		g.observe(t.Chain, false)
		return &ValidationResult{
			IsValid:   false,
			Warnings:  []pattern.Warning{w},
			BlockedBy: []pattern.Pattern{pattern.EmergencyStop},
		}, nil
	}

	var warnings []pattern.Warning

	if !t.ChainDataConsistent() {
		warnings = append(warnings, pattern.NewWarning(pattern.ChainMismatch, pattern.SeverityCritical,
			fmt.Sprintf("chain tag %q disagrees with the populated chain data", t.Chain)))
	}

	if cfg.EnablePatternDetection {
		switch t.Chain {
		case tx.ChainSolana:
			warnings = append(warnings, solDetector.Detect(t.Solana)...)
		case tx.ChainEVM:
			warnings = append(warnings, evmDetector.Detect(t.EVM)...)
		}
	}

	// Custom rules run after built-in detection; a failing rule appends a
	// warning subject to the same policy evaluation, never a bypass.
	for _, rule := range cfg.CustomRules {
		if rule.Validate == nil || rule.Validate(t) {
			continue
		}
		sev := rule.Severity
		if sev == "" {
			sev = pattern.SeverityAlert
		}
		warnings = append(warnings, pattern.NewWarning(pattern.CustomRule, sev,
			fmt.Sprintf("custom rule %q rejected the transaction", rule.ID)))
	}

	if cfg.Pulsar.Enabled && len(t.AssetAddresses) > 0 {
		riskWarnings, err := g.riskCheck(ctx, oracleClient, cfg, t.AssetAddresses)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, riskWarnings...)
	}

	if t.Privacy != nil && t.Privacy.RequiresPrivacy && t.Privacy.PrivacyLevel == "" {
		warnings = append(warnings, pattern.NewWarning(pattern.PrivacyViolation, pattern.SeverityAlert,
			"transaction requires privacy but no privacy level is set; it would execute publicly"))
	}

	result := evaluatePolicy(cfg, warnings)
	g.recordWarnings(warnings)
	g.observe(t.Chain, result.IsValid, warnings...)
	span.SetAttributes(traces.Decision(decisionLabel(result.IsValid)))

	g.logger.Debug("transaction validated",
		"tx_id", t.ID,
		"chain", t.Chain,
		"warnings", len(result.Warnings),
		"is_valid", result.IsValid,
	)
	return result, nil
}

// riskCheck fans out one oracle fetch per asset and converts high scores
// and compliance failures into synthetic critical warnings.
func (g *Guard) riskCheck(ctx context.Context, client *oracle.Client, cfg Config, assets []string) ([]pattern.Warning, error) {
	batch, err := client.GetBatchRiskMetrics(ctx, assets)
	if err != nil && !cfg.Pulsar.FallbackOnError {
		return nil, err
	}

	var warnings []pattern.Warning
	for _, asset := range assets {
		m := batch[asset]
		if m == nil {
			continue
		}
		if m.RiskScore != nil && *m.RiskScore > cfg.Pulsar.RiskThreshold {
			w := pattern.NewWarning(pattern.RiskThreshold, pattern.SeverityCritical,
				fmt.Sprintf("asset risk score %.2f exceeds threshold %.2f", *m.RiskScore, cfg.Pulsar.RiskThreshold))
			warnings = append(warnings, w.WithAccount(asset))
		}
		if cfg.Pulsar.EnableComplianceCheck && m.ComplianceStatus != nil && *m.ComplianceStatus == oracle.ComplianceNonCompliant {
			w := pattern.NewWarning(pattern.ComplianceViolation, pattern.SeverityCritical,
				"asset is flagged non-compliant by the risk oracle")
			warnings = append(warnings, w.WithAccount(asset))
		}
	}
	return warnings, nil
}

// evaluatePolicy computes the terminal decision from the collected warnings.
func evaluatePolicy(cfg Config, warnings []pattern.Warning) *ValidationResult {
	result := &ValidationResult{IsValid: true, Warnings: warnings}
	if cfg.Mode == ModeWarn {
		return result
	}

	seen := make(map[pattern.Pattern]bool)
	for _, w := range warnings {
		if !blocks(cfg.RiskTolerance, w) {
			continue
		}
		if !seen[w.Pattern] {
			seen[w.Pattern] = true
			result.BlockedBy = append(result.BlockedBy, w.Pattern)
		}
	}
	result.IsValid = len(result.BlockedBy) == 0
	return result
}

// blocks reports whether one warning crosses the tolerance threshold.
func blocks(tolerance RiskTolerance, w pattern.Warning) bool {
	switch tolerance {
	case ToleranceStrict:
		return true
	case TolerancePermissive:
		// Only the unrecoverable token-killing patterns, regardless of label.
		return w.Pattern == pattern.MintKill || w.Pattern == pattern.FreezeKill
	case ToleranceModerate:
		return w.Severity.Rank() >= pattern.SeverityCritical.Rank()
	default:
		return w.Severity.Rank() >= pattern.SeverityCritical.Rank()
	}
}

func (g *Guard) observe(chain tx.Chain, isValid bool, warnings ...pattern.Warning) {
	metrics.ValidationsTotal.WithLabelValues(string(chain), decisionLabel(isValid)).Inc()
	for _, w := range warnings {
		metrics.PatternHitsTotal.WithLabelValues(string(w.Pattern)).Inc()
	}
}

func decisionLabel(isValid bool) string {
	if isValid {
		return "allowed"
	}
	return "blocked"
}
