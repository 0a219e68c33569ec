package guard

import (
	"context"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/gagliardetto/solana-go"
	"github.com/mbd888/chainguard/internal/oracle"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/testutil"
	"github.com/mbd888/chainguard/internal/tx"
)

// SetAuthority payload: discriminant 6, authority type, option tag None.
var mintKillData = []byte{6, 0, 0}

func testKey(b byte) solana.PublicKey {
	var raw [32]byte
	for i := range raw {
		raw[i] = b
	}
	return solana.PublicKeyFromBytes(raw[:])
}

func solanaTx(instructions ...tx.Instruction) *tx.UnifiedTransaction {
	return &tx.UnifiedTransaction{
		ID:     "tx_test",
		Chain:  tx.ChainSolana,
		Solana: &tx.SolanaData{Instructions: instructions},
	}
}

func evmTx(call *tx.EVMCall) *tx.UnifiedTransaction {
	return &tx.UnifiedTransaction{ID: "tx_test", Chain: tx.ChainEVM, EVM: call}
}

func closeAccountIx() tx.Instruction {
	return tx.Instruction{
		ProgramID: solana.TokenProgramID,
		Accounts:  []tx.AccountMeta{{Address: testKey(1), IsWritable: true}},
		Data:      []byte{9},
	}
}

func mintKillIx() tx.Instruction {
	return tx.Instruction{ProgramID: solana.TokenProgramID, Data: mintKillData}
}

func hasPattern(warnings []pattern.Warning, p pattern.Pattern) bool {
	for _, w := range warnings {
		if w.Pattern == p {
			return true
		}
	}
	return false
}

func blockedBy(result *ValidationResult, p pattern.Pattern) bool {
	for _, b := range result.BlockedBy {
		if b == p {
			return true
		}
	}
	return false
}

func TestValidate_CleanTransaction(t *testing.T) {
	g := New(DefaultConfig())
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(
		tx.Instruction{ProgramID: solana.TokenProgramID, Data: []byte{3, 0, 0, 0, 0, 0, 0, 0, 1}},
	))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("clean transfer should be valid, got %+v", result)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}
}

func TestValidate_EmergencyStop(t *testing.T) {
	g := New(DefaultConfig())
	g.ActivateEmergencyStop()

	// Even an empty, harmless transaction is blocked.
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx())
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("emergency stop must block every transaction")
	}
	if !blockedBy(result, pattern.EmergencyStop) {
		t.Errorf("BlockedBy = %v, want EmergencyStop", result.BlockedBy)
	}

	g.DeactivateEmergencyStop()
	result, err = g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("deactivation should restore normal validation, got %+v", result)
	}
}

func TestValidate_EmergencyStop_OverridesWarnMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeWarn
	g := New(cfg)
	g.ActivateEmergencyStop()

	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx())
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("emergency stop must block even in warn mode")
	}
}

func TestValidate_ConfigEmergencyStopFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EmergencyStop = true
	g := New(cfg)

	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx())
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("config-level emergency stop must block")
	}
}

func TestValidate_ChainMismatch(t *testing.T) {
	g := New(DefaultConfig())

	// Chain tag says EVM, payload is Solana.
	mismatched := &tx.UnifiedTransaction{
		Chain:  tx.ChainEVM,
		Solana: &tx.SolanaData{},
	}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), mismatched)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("chain mismatch should block under moderate tolerance")
	}
	if !blockedBy(result, pattern.ChainMismatch) {
		t.Errorf("BlockedBy = %v, want ChainMismatch", result.BlockedBy)
	}
}

func TestValidate_MintKill_BlocksEveryTolerance(t *testing.T) {
	for _, tolerance := range []RiskTolerance{ToleranceStrict, ToleranceModerate, TolerancePermissive} {
		cfg := DefaultConfig()
		cfg.RiskTolerance = tolerance
		g := New(cfg)

		result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(mintKillIx()))
		if err != nil {
			t.Fatal(err)
		}
		if result.IsValid {
			t.Errorf("%s: MintKill must block", tolerance)
		}
		if !blockedBy(result, pattern.MintKill) {
			t.Errorf("%s: BlockedBy = %v, want MintKill", tolerance, result.BlockedBy)
		}
	}
}

func TestValidate_DangerousClose_ToleranceMatrix(t *testing.T) {
	tests := []struct {
		tolerance RiskTolerance
		wantValid bool
	}{
		{ToleranceStrict, false},    // blocks everything
		{ToleranceModerate, true},   // alert < critical
		{TolerancePermissive, true}, // only token-killing patterns block
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		cfg.RiskTolerance = tt.tolerance
		g := New(cfg)

		result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(closeAccountIx()))
		if err != nil {
			t.Fatal(err)
		}
		if result.IsValid != tt.wantValid {
			t.Errorf("%s: IsValid = %v, want %v (%+v)", tt.tolerance, result.IsValid, tt.wantValid, result)
		}
		if !hasPattern(result.Warnings, pattern.DangerousClose) {
			t.Errorf("%s: expected DangerousClose warning regardless of decision", tt.tolerance)
		}
	}
}

func TestValidate_WarnModeNeverBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeWarn
	cfg.RiskTolerance = ToleranceStrict
	g := New(cfg)

	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(mintKillIx()))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatal("warn mode must never block")
	}
	if !hasPattern(result.Warnings, pattern.MintKill) {
		t.Error("warn mode must still report the warnings")
	}
	if len(result.BlockedBy) != 0 {
		t.Errorf("warn mode BlockedBy should be empty, got %v", result.BlockedBy)
	}
}

func TestValidate_EVM_Reentrancy(t *testing.T) {
	g := New(DefaultConfig())

	sel := crypto.Keccak256([]byte("withdraw()"))[:4]
	call := &tx.EVMCall{
		To:   common.HexToAddress("0x1234567890123456789012345678901234567890"),
		Data: sel,
	}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), evmTx(call))
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("withdraw() should block under moderate tolerance")
	}
	if !blockedBy(result, pattern.ReentrancyAttack) {
		t.Errorf("BlockedBy = %v, want ReentrancyAttack", result.BlockedBy)
	}
}

func TestValidate_EVM_FrontRunning_AlertOnly(t *testing.T) {
	g := New(DefaultConfig())

	call := &tx.EVMCall{
		To:                   common.HexToAddress("0x1234567890123456789012345678901234567890"),
		MaxPriorityFeePerGas: new(big.Int).Mul(big.NewInt(300), big.NewInt(params.GWei)),
	}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), evmTx(call))
	if err != nil {
		t.Fatal(err)
	}
	// Alert severity: reported but not blocked under moderate tolerance.
	if !result.IsValid {
		t.Fatalf("front-running alert should not block under moderate, got %+v", result)
	}
	if !hasPattern(result.Warnings, pattern.FrontRunning) {
		t.Error("expected FrontRunning warning")
	}
}

func TestValidate_PatternDetectionDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnablePatternDetection = false
	g := New(cfg)

	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(mintKillIx()))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("detection disabled: nothing to block on, got %+v", result)
	}
}

func TestValidate_CustomRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CustomRules = []CustomRule{
		{
			ID:       "deny-large-batches",
			Severity: pattern.SeverityCritical,
			Validate: func(t *tx.UnifiedTransaction) bool {
				return t.Solana == nil || len(t.Solana.Instructions) <= 2
			},
		},
		{
			// Zero severity defaults to alert: reported, not blocked.
			ID:       "advisory",
			Validate: func(t *tx.UnifiedTransaction) bool { return false },
		},
	}
	g := New(cfg)

	// Two instructions: passes the critical rule, fails the advisory one.
	small := solanaTx(
		tx.Instruction{ProgramID: solana.SystemProgramID},
		tx.Instruction{ProgramID: solana.SystemProgramID},
	)
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), small)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("alert-level custom rule must not block under moderate, got %+v", result)
	}
	if !hasPattern(result.Warnings, pattern.CustomRule) {
		t.Error("expected advisory custom-rule warning")
	}

	// Three instructions: fails the critical rule too.
	large := solanaTx(
		tx.Instruction{ProgramID: solana.SystemProgramID},
		tx.Instruction{ProgramID: solana.SystemProgramID},
		tx.Instruction{ProgramID: solana.SystemProgramID},
	)
	result, err = g.ValidateUnifiedTransactionWithPatterns(context.Background(), large)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("critical custom rule must block")
	}
	if !blockedBy(result, pattern.CustomRule) {
		t.Errorf("BlockedBy = %v, want CustomRule", result.BlockedBy)
	}
}

func TestValidate_PrivacyViolation(t *testing.T) {
	g := New(DefaultConfig())

	ut := solanaTx()
	ut.Privacy = &tx.PrivacyMetadata{RequiresPrivacy: true}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), ut)
	if err != nil {
		t.Fatal(err)
	}
	// Alert: reported, not blocked under moderate.
	if !result.IsValid {
		t.Fatalf("privacy violation is an alert, got %+v", result)
	}
	if !hasPattern(result.Warnings, pattern.PrivacyViolation) {
		t.Error("expected PrivacyViolation warning")
	}

	// Level set: no warning.
	ut.Privacy.PrivacyLevel = "shielded"
	result, err = g.ValidateUnifiedTransactionWithPatterns(context.Background(), ut)
	if err != nil {
		t.Fatal(err)
	}
	if hasPattern(result.Warnings, pattern.PrivacyViolation) {
		t.Error("privacy level is set; no violation expected")
	}
}

func TestValidate_RiskOracle(t *testing.T) {
	fake := testutil.NewRiskOracle(t)
	fake.AnswerAll(testutil.RiskAnswer{Score: 0.95})

	cfg := DefaultConfig()
	cfg.Pulsar.Enabled = true
	cfg.Pulsar.Endpoint = fake.URL()
	g := New(cfg, WithOracleOptions(oracle.WithCache(oracle.NewMemoryCache())))

	ut := solanaTx()
	ut.AssetAddresses = []string{"RiskyAsset111"}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), ut)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("risk score above threshold must block")
	}
	if !blockedBy(result, pattern.RiskThreshold) {
		t.Errorf("BlockedBy = %v, want RiskThreshold", result.BlockedBy)
	}
}

func TestValidate_RiskOracle_Compliance(t *testing.T) {
	fake := testutil.NewRiskOracle(t)
	fake.AnswerAll(testutil.RiskAnswer{Score: 0.1, Compliance: "non-compliant"})

	cfg := DefaultConfig()
	cfg.Pulsar.Enabled = true
	cfg.Pulsar.Endpoint = fake.URL()
	cfg.Pulsar.EnableComplianceCheck = true
	g := New(cfg, WithOracleOptions(oracle.WithCache(oracle.NewMemoryCache())))

	ut := solanaTx()
	ut.AssetAddresses = []string{"Asset111"}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), ut)
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("non-compliant asset must block when compliance checks are on")
	}
	if !blockedBy(result, pattern.ComplianceViolation) {
		t.Errorf("BlockedBy = %v, want ComplianceViolation", result.BlockedBy)
	}
}

func TestValidate_RiskOracle_FallbackDegrades(t *testing.T) {
	fake := testutil.NewRiskOracle(t)
	fake.FailWith(http.StatusInternalServerError)

	cfg := DefaultConfig()
	cfg.Pulsar.Enabled = true
	cfg.Pulsar.Endpoint = fake.URL() // FallbackOnError defaults to true
	g := New(cfg, WithOracleOptions(oracle.WithCache(oracle.NewMemoryCache())))

	ut := solanaTx()
	ut.AssetAddresses = []string{"Asset111"}
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), ut)
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("oracle failure with fallback should degrade to unknown risk, got %+v", result)
	}
}

func TestValidate_LegacyEntryPoint(t *testing.T) {
	g := New(DefaultConfig())
	result, err := g.ValidateTransaction(context.Background(), &tx.SolanaData{
		Instructions: []tx.Instruction{mintKillIx()},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.IsValid {
		t.Fatal("legacy entry point must apply the same policy")
	}
}

func TestWarningHistory(t *testing.T) {
	g := New(DefaultConfig())

	if _, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(mintKillIx())); err != nil {
		t.Fatal(err)
	}
	history := g.WarningHistory()
	if len(history) == 0 {
		t.Fatal("expected recorded warnings")
	}
	if !hasPattern(history, pattern.MintKill) {
		t.Errorf("history = %v, want MintKill", history)
	}

	g.ClearWarningHistory()
	if len(g.WarningHistory()) != 0 {
		t.Error("history should be empty after clear")
	}
}

func TestSetConfig_RebuildsDetectors(t *testing.T) {
	g := New(DefaultConfig())

	cfg := g.Config()
	cfg.EnablePatternDetection = false
	g.SetConfig(cfg)

	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx(mintKillIx()))
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatal("config swap should take effect immediately")
	}
}

func TestSetConfig_EmptyFieldsDefaulted(t *testing.T) {
	g := New(Config{})
	cfg := g.Config()
	if cfg.Mode != ModeBlock {
		t.Errorf("Mode = %q, want block", cfg.Mode)
	}
	if cfg.RiskTolerance != ToleranceModerate {
		t.Errorf("RiskTolerance = %q, want moderate", cfg.RiskTolerance)
	}
}

func TestParseHookPrograms_SkipsInvalid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHookPrograms = []string{
		"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"not-base58!!",
	}
	g := New(cfg)

	// The invalid entry is skipped; the guard still works.
	result, err := g.ValidateUnifiedTransactionWithPatterns(context.Background(), solanaTx())
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsValid {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestIsSlippageAcceptable(t *testing.T) {
	tests := []struct {
		actual float64
		want   bool
	}{
		{0, true},
		{4.9, true},
		{5.0, true},
		{5.1, false},
		{-1.0, true}, // better price than quoted
	}

	for _, tt := range tests {
		if got := IsSlippageAcceptable(tt.actual); got != tt.want {
			t.Errorf("IsSlippageAcceptable(%v) = %v, want %v", tt.actual, got, tt.want)
		}
	}
}
