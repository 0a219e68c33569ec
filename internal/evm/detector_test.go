package evm

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/tx"
)

var testTarget = common.HexToAddress("0x1234567890123456789012345678901234567890")

func callTo(signature string) *tx.EVMCall {
	sel := selector(signature)
	return &tx.EVMCall{To: testTarget, Data: sel[:]}
}

func hasPattern(warnings []pattern.Warning, p pattern.Pattern) bool {
	for _, w := range warnings {
		if w.Pattern == p {
			return true
		}
	}
	return false
}

func TestDetect_Nil(t *testing.T) {
	if got := NewDetector().Detect(nil); got != nil {
		t.Errorf("Detect(nil) = %v, want nil", got)
	}
}

func TestDetect_Reentrancy(t *testing.T) {
	for _, sig := range []string{"withdraw()", "withdraw(uint256)", "withdrawAll()", "withdrawTo(address,uint256)"} {
		warnings := NewDetector().Detect(callTo(sig))
		if !hasPattern(warnings, pattern.ReentrancyAttack) {
			t.Errorf("%s: expected ReentrancyAttack, got %v", sig, warnings)
		}
		for _, w := range warnings {
			if w.Pattern == pattern.ReentrancyAttack {
				if w.Severity != pattern.SeverityCritical {
					t.Errorf("%s: severity = %s, want critical", sig, w.Severity)
				}
				if w.AffectedAccount != testTarget.Hex() {
					t.Errorf("%s: AffectedAccount = %s, want %s", sig, w.AffectedAccount, testTarget.Hex())
				}
			}
		}
	}
}

func TestDetect_FlashLoan(t *testing.T) {
	warnings := NewDetector().Detect(callTo("flashLoanSimple(address,address,uint256,bytes,uint16)"))
	if !hasPattern(warnings, pattern.FlashLoanAttack) {
		t.Fatalf("expected FlashLoanAttack, got %v", warnings)
	}
}

func TestDetect_OwnershipMutation(t *testing.T) {
	for _, sig := range []string{"transferOwnership(address)", "renounceOwnership()", "setOwner(address)", "changeAdmin(address)"} {
		warnings := NewDetector().Detect(callTo(sig))
		if !hasPattern(warnings, pattern.UnauthorizedAccess) {
			t.Errorf("%s: expected UnauthorizedAccess, got %v", sig, warnings)
		}
	}
}

func TestDetect_FrontRunning(t *testing.T) {
	gwei := func(n int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(n), big.NewInt(params.GWei))
	}

	tests := []struct {
		name string
		fee  *big.Int
		want bool
	}{
		{"nil fee", nil, false},
		{"normal fee", gwei(2), false},
		{"at threshold", gwei(100), false},
		{"above threshold", gwei(300), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := &tx.EVMCall{To: testTarget, MaxPriorityFeePerGas: tt.fee}
			warnings := NewDetector().Detect(call)
			if got := hasPattern(warnings, pattern.FrontRunning); got != tt.want {
				t.Errorf("FrontRunning = %v, want %v (warnings %v)", got, tt.want, warnings)
			}
		})
	}
}

func TestDetect_CleanCall(t *testing.T) {
	call := callTo("transfer(address,uint256)")
	call.Value = big.NewInt(1)
	warnings := NewDetector().Detect(call)
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for a plain transfer, got %v", warnings)
	}
}

func TestDetect_ShortCalldata(t *testing.T) {
	call := &tx.EVMCall{To: testTarget, Data: []byte{0x01, 0x02}}
	warnings := NewDetector().Detect(call)
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings for short calldata, got %v", warnings)
	}
}

func TestDetect_CustomPredicate(t *testing.T) {
	d := NewDetector()
	blocked := common.HexToAddress("0xdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef")
	d.Register(func(call *tx.EVMCall) *pattern.Warning {
		if call.To == blocked {
			w := pattern.NewWarning(pattern.CustomRule, pattern.SeverityCritical, "target is on the deny list")
			return &w
		}
		return nil
	})

	warnings := d.Detect(&tx.EVMCall{To: blocked})
	if !hasPattern(warnings, pattern.CustomRule) {
		t.Fatalf("expected custom predicate to fire, got %v", warnings)
	}

	warnings = d.Detect(&tx.EVMCall{To: testTarget})
	if hasPattern(warnings, pattern.CustomRule) {
		t.Fatalf("custom predicate should not fire for other targets, got %v", warnings)
	}
}

func TestDetect_MultiplePatterns(t *testing.T) {
	call := callTo("withdraw()")
	call.MaxPriorityFeePerGas = new(big.Int).Mul(big.NewInt(500), big.NewInt(params.GWei))

	warnings := NewDetector().Detect(call)
	if !hasPattern(warnings, pattern.ReentrancyAttack) || !hasPattern(warnings, pattern.FrontRunning) {
		t.Fatalf("expected both ReentrancyAttack and FrontRunning, got %v", warnings)
	}
}
