// Package oracle fetches per-asset risk metrics from a remote risk oracle,
// with TTL caching, concurrent batch fan-out, and fail-open fallback.
package oracle

import (
	"time"
)

// Compliance is the oracle's compliance verdict for an asset.
type Compliance string

const (
	ComplianceCompliant    Compliance = "compliant"
	ComplianceNonCompliant Compliance = "non-compliant"
	ComplianceUnknown      Compliance = "unknown"
)

// RiskMetrics is one asset's risk snapshot. Nil fields mean the oracle
// could not answer (disabled, unavailable, or fallback); scores are in [0,1].
type RiskMetrics struct {
	Asset            string      `json:"asset,omitempty"`
	RiskScore        *float64    `json:"riskScore"`
	ComplianceStatus *Compliance `json:"complianceStatus"`
	CounterpartyRisk *float64    `json:"counterpartyRisk"`
	OracleIntegrity  *float64    `json:"oracleIntegrity"`
	Timestamp        time.Time   `json:"timestamp"`
}

// Unknown returns an all-nil metrics value for an asset, stamped now.
// Used for the disabled path and the fallback path.
func Unknown(asset string) *RiskMetrics {
	return &RiskMetrics{Asset: asset, Timestamp: time.Now().UTC()}
}

// Config is the oracle block of the guard configuration.
type Config struct {
	Enabled               bool          `json:"enabled"`
	Endpoint              string        `json:"endpoint"`
	APIKey                string        `json:"apiKey,omitempty"`
	CacheTTL              time.Duration `json:"cacheTtl"`
	Timeout               time.Duration `json:"timeout"`
	FallbackOnError       bool          `json:"fallbackOnError"`
	RiskThreshold         float64       `json:"riskThreshold"`
	EnableComplianceCheck bool          `json:"enableComplianceCheck"`
}

// Defaults applied by DefaultConfig.
const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultFetchTimeout  = 10 * time.Second
	DefaultRiskThreshold = 0.7
)

// DefaultConfig returns the config used when the caller does not supply one.
// Fallback-on-error defaults to on: an unavailable oracle degrades to
// "unknown risk" rather than failing closed.
func DefaultConfig() Config {
	return Config{
		CacheTTL:        DefaultCacheTTL,
		Timeout:         DefaultFetchTimeout,
		FallbackOnError: true,
		RiskThreshold:   DefaultRiskThreshold,
	}
}
