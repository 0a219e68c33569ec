package guard

import (
	"github.com/mbd888/chainguard/internal/oracle"
	"github.com/mbd888/chainguard/internal/pattern"
	solanadetect "github.com/mbd888/chainguard/internal/solana"
	"github.com/mbd888/chainguard/internal/tx"
)

// Mode decides whether blocking warnings actually block.
type Mode string

const (
	ModeBlock Mode = "block"
	ModeWarn  Mode = "warn" // record warnings, never block
)

// RiskTolerance decides which warning severities block in block mode.
type RiskTolerance string

const (
	// ToleranceStrict blocks on any warning.
	ToleranceStrict RiskTolerance = "strict"
	// ToleranceModerate blocks on critical warnings only. The default.
	ToleranceModerate RiskTolerance = "moderate"
	// TolerancePermissive blocks only the unrecoverable token-killing
	// patterns, whatever their severity label.
	TolerancePermissive RiskTolerance = "permissive"
)

// CustomRule is a caller-supplied predicate run after built-in detection.
// A failing rule appends a warning subject to normal policy evaluation;
// it cannot bypass policy. Zero Severity means Alert.
type CustomRule struct {
	ID       string
	Severity pattern.Severity
	Validate func(t *tx.UnifiedTransaction) bool
}

// Config is the guard's whole configuration surface. It is replaced
// wholesale via Guard.SetConfig, never mutated in place; unknown JSON keys
// are ignored on decode.
type Config struct {
	Mode                   Mode          `json:"mode"`
	RiskTolerance          RiskTolerance `json:"riskTolerance"`
	EmergencyStop          bool          `json:"emergencyStop"`
	EnablePatternDetection bool          `json:"enablePatternDetection"`
	ValidateTransferHooks  bool          `json:"validateTransferHooks"`
	MaxHookAccounts        int           `json:"maxHookAccounts"`
	AllowedHookPrograms    []string      `json:"allowedHookPrograms,omitempty"`
	Pulsar                 oracle.Config `json:"pulsar"`
	CustomRules            []CustomRule  `json:"-"`
}

// DefaultConfig returns the guard defaults: block mode, moderate tolerance,
// all detection on, oracle disabled until an endpoint is configured.
func DefaultConfig() Config {
	return Config{
		Mode:                   ModeBlock,
		RiskTolerance:          ToleranceModerate,
		EnablePatternDetection: true,
		ValidateTransferHooks:  true,
		MaxHookAccounts:        solanadetect.DefaultMaxHookAccounts,
		Pulsar:                 oracle.DefaultConfig(),
	}
}
