// Package pattern defines the closed taxonomy of dangerous transaction
// patterns and the severity classes used across the guard.
package pattern

import (
	"time"

	"github.com/mbd888/chainguard/internal/idgen"
)

// Pattern identifies a known dangerous transaction pattern.
type Pattern string

const (
	// Solana token-program patterns.
	MintKill              Pattern = "mint_kill"               // mint authority set to None
	FreezeKill            Pattern = "freeze_kill"             // freeze authority set to None
	SignerMismatch        Pattern = "signer_mismatch"         // new authority is not a signer
	DangerousClose        Pattern = "dangerous_close"         // CloseAccount present
	MaliciousTransferHook Pattern = "malicious_transfer_hook" // hook with excessive account access
	UnexpectedHook        Pattern = "unexpected_hook"         // hook execution with no transfer
	HookReentrancy        Pattern = "hook_reentrancy"         // sandwiched or repeated hook
	ExcessiveHookAccounts Pattern = "excessive_hook_accounts" // hook touches too many accounts

	// EVM call patterns.
	ReentrancyAttack   Pattern = "reentrancy_attack"
	FlashLoanAttack    Pattern = "flash_loan_attack"
	FrontRunning       Pattern = "front_running"
	UnauthorizedAccess Pattern = "unauthorized_access"

	// Orchestrator-level conditions.
	EmergencyStop       Pattern = "emergency_stop"
	ChainMismatch       Pattern = "chain_mismatch"
	RiskThreshold       Pattern = "risk_threshold"
	ComplianceViolation Pattern = "compliance_violation"
	PrivacyViolation    Pattern = "privacy_violation"
	CustomRule          Pattern = "custom_rule"
)

// Severity classifies how dangerous a matched pattern is.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityAlert    Severity = "alert"
	SeverityCritical Severity = "critical"
)

// Rank maps a severity to a comparable integer (higher = more severe).
// Unknown severities rank below warning so they never block on their own.
func (s Severity) Rank() int {
	switch s {
	case SeverityWarning:
		return 1
	case SeverityAlert:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Warning is a single detection result. Warnings are produced by detectors
// and the orchestrator and never mutated afterwards.
type Warning struct {
	ID              string    `json:"id"`
	Pattern         Pattern   `json:"pattern"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	AffectedAccount string    `json:"affectedAccount,omitempty"`
	DetectedAt      time.Time `json:"detectedAt"`
}

// NewWarning builds a warning with a fresh id and timestamp.
func NewWarning(p Pattern, sev Severity, msg string) Warning {
	return Warning{
		ID:         idgen.WithPrefix("warn_"),
		Pattern:    p,
		Severity:   sev,
		Message:    msg,
		DetectedAt: time.Now().UTC(),
	}
}

// WithAccount returns a copy of the warning annotated with the affected account.
func (w Warning) WithAccount(account string) Warning {
	w.AffectedAccount = account
	return w
}
