// Package evm matches single EVM calls against known dangerous patterns.
//
// Detection is deliberately shallow: exact 4-byte selector comparison against
// a static table plus fee-field thresholds. No ABI argument decoding, no
// bytecode analysis. Predicates are a pluggable list so new selectors can be
// added without touching the orchestrator.
package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/params"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/tx"
)

// DefaultPriorityFeeThreshold is the priority fee above which a call looks
// like a front-running attempt (100 gwei).
var DefaultPriorityFeeThreshold = new(big.Int).Mul(big.NewInt(100), big.NewInt(params.GWei))

// selector computes the 4-byte function selector for a canonical signature.
func selector(signature string) [4]byte {
	var s [4]byte
	copy(s[:], crypto.Keccak256([]byte(signature))[:4])
	return s
}

// selectorSet builds a lookup table from canonical signatures.
func selectorSet(signatures ...string) map[[4]byte]string {
	set := make(map[[4]byte]string, len(signatures))
	for _, sig := range signatures {
		set[selector(sig)] = sig
	}
	return set
}

var (
	// Withdrawal entry points commonly abused in reentrancy attacks.
	reentrancySelectors = selectorSet(
		"withdraw()",
		"withdraw(uint256)",
		"withdrawAll()",
		"withdrawTo(address,uint256)",
	)

	// Flash-loan entry points of the major lending protocols.
	flashLoanSelectors = selectorSet(
		"flashLoan(address,address,uint256,bytes)",
		"flashLoan(address,address[],uint256[],bytes)",
		"flashLoan(address,uint256,uint256,bytes)",
		"flashLoanSimple(address,address,uint256,bytes,uint16)",
	)

	// Ownership-mutation entry points.
	ownershipSelectors = selectorSet(
		"transferOwnership(address)",
		"renounceOwnership()",
		"setOwner(address)",
		"changeAdmin(address)",
	)
)

// Predicate inspects one call and returns a warning when it matches.
type Predicate func(call *tx.EVMCall) *pattern.Warning

// Detector runs an ordered predicate list over a single call.
type Detector struct {
	predicates []Predicate
}

// NewDetector returns a detector with the built-in predicate set.
func NewDetector() *Detector {
	return &Detector{predicates: []Predicate{
		reentrancyPredicate,
		flashLoanPredicate,
		frontRunningPredicate,
		unauthorizedAccessPredicate,
	}}
}

// Register appends a predicate; it runs after the built-ins.
func (d *Detector) Register(p Predicate) {
	d.predicates = append(d.predicates, p)
}

// Detect runs every predicate over the call. Predicates are independent;
// one call can match several patterns.
func (d *Detector) Detect(call *tx.EVMCall) []pattern.Warning {
	if call == nil {
		return nil
	}
	var warnings []pattern.Warning
	for _, p := range d.predicates {
		if w := p(call); w != nil {
			warnings = append(warnings, *w)
		}
	}
	return warnings
}

func matchSelector(call *tx.EVMCall, set map[[4]byte]string) (string, bool) {
	sel := call.Selector()
	if sel == nil {
		return "", false
	}
	var key [4]byte
	copy(key[:], sel)
	sig, ok := set[key]
	return sig, ok
}

func reentrancyPredicate(call *tx.EVMCall) *pattern.Warning {
	sig, ok := matchSelector(call, reentrancySelectors)
	if !ok {
		return nil
	}
	w := pattern.NewWarning(pattern.ReentrancyAttack, pattern.SeverityCritical,
		fmt.Sprintf("call invokes %s (selector 0x%s), a known reentrancy-prone entry point", sig, hex.EncodeToString(call.Selector())))
	w = w.WithAccount(call.To.Hex())
	return &w
}

func flashLoanPredicate(call *tx.EVMCall) *pattern.Warning {
	sig, ok := matchSelector(call, flashLoanSelectors)
	if !ok {
		return nil
	}
	w := pattern.NewWarning(pattern.FlashLoanAttack, pattern.SeverityCritical,
		fmt.Sprintf("call invokes flash-loan entry point %s", sig))
	w = w.WithAccount(call.To.Hex())
	return &w
}

func frontRunningPredicate(call *tx.EVMCall) *pattern.Warning {
	if call.MaxPriorityFeePerGas == nil {
		return nil
	}
	if call.MaxPriorityFeePerGas.Cmp(DefaultPriorityFeeThreshold) <= 0 {
		return nil
	}
	gwei := new(big.Int).Div(call.MaxPriorityFeePerGas, big.NewInt(params.GWei))
	w := pattern.NewWarning(pattern.FrontRunning, pattern.SeverityAlert,
		fmt.Sprintf("priority fee of %s gwei is far above normal, typical of front-running", gwei))
	return &w
}

func unauthorizedAccessPredicate(call *tx.EVMCall) *pattern.Warning {
	sig, ok := matchSelector(call, ownershipSelectors)
	if !ok {
		return nil
	}
	w := pattern.NewWarning(pattern.UnauthorizedAccess, pattern.SeverityAlert,
		fmt.Sprintf("call mutates contract ownership via %s", sig))
	w = w.WithAccount(call.To.Hex())
	return &w
}
