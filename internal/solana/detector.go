package solana

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/tx"
)

// Detection thresholds for transfer-hook heuristics.
const (
	// DefaultMaxHookAccounts is the account-count ceiling for a hook
	// instruction before ExcessiveHookAccounts fires.
	DefaultMaxHookAccounts = 20

	hookWritableLimit   = 10 // writable accounts before a hook looks malicious
	hookTotalLimit      = 15 // total accounts before a hook looks malicious
	hookNoTransferLimit = 10 // accounts touched by a hook with no transfer around
	hookInvocationLimit = 6  // times one program may appear before reentrancy fires
)

// knownSafeHookPrograms are ubiquitous benign programs that show up alongside
// token instructions and must never trip hook heuristics. Legitimate
// reward-distribution hooks self-invoke with many accounts, so operators
// extend this set via AllowedHookPrograms.
var knownSafeHookPrograms = map[solana.PublicKey]bool{
	solana.MemoProgramID:                      true,
	solana.SPLAssociatedTokenAccountProgramID: true,
	solana.SystemProgramID:                    true,
}

// Config controls which predicates run and their thresholds.
type Config struct {
	ValidateTransferHooks bool
	MaxHookAccounts       int
	AllowedHookPrograms   []solana.PublicKey
}

// Detector matches decoded instruction sequences against structural
// attack patterns. Detection is deterministic and O(n) per predicate.
type Detector struct {
	cfg     Config
	allowed map[solana.PublicKey]bool
}

// NewDetector builds a detector. A zero MaxHookAccounts falls back to
// DefaultMaxHookAccounts.
func NewDetector(cfg Config) *Detector {
	if cfg.MaxHookAccounts <= 0 {
		cfg.MaxHookAccounts = DefaultMaxHookAccounts
	}
	allowed := make(map[solana.PublicKey]bool, len(knownSafeHookPrograms)+len(cfg.AllowedHookPrograms))
	for pk := range knownSafeHookPrograms {
		allowed[pk] = true
	}
	for _, pk := range cfg.AllowedHookPrograms {
		allowed[pk] = true
	}
	return &Detector{cfg: cfg, allowed: allowed}
}

// Detect runs every predicate over the instruction sequence and signer set.
// Predicates are independent and non-exclusive: one instruction can produce
// several warnings.
func (d *Detector) Detect(data *tx.SolanaData) []pattern.Warning {
	if data == nil {
		return nil
	}

	signers := make(map[solana.PublicKey]bool, len(data.Signers))
	for _, s := range data.Signers {
		signers[s] = true
	}

	var warnings []pattern.Warning
	warnings = append(warnings, d.detectTokenPatterns(data.Instructions, signers)...)
	if d.cfg.ValidateTransferHooks {
		warnings = append(warnings, d.detectHookPatterns(data.Instructions)...)
	}
	return warnings
}

// detectTokenPatterns covers the SetAuthority and CloseAccount predicates.
func (d *Detector) detectTokenPatterns(instructions []tx.Instruction, signers map[solana.PublicKey]bool) []pattern.Warning {
	var warnings []pattern.Warning

	for _, ins := range instructions {
		if !IsTokenProgram(ins.ProgramID) {
			continue
		}

		switch dec := Decode(ins.Data); dec.Kind {
		case KindSetAuthority:
			warnings = append(warnings, detectAuthorityChange(dec, signers)...)
		case KindCloseAccount:
			w := pattern.NewWarning(pattern.DangerousClose, pattern.SeverityAlert,
				"transaction closes a token account; remaining funds move to the destination")
			if len(ins.Accounts) > 0 {
				w = w.WithAccount(ins.Accounts[0].Address.String())
			}
			warnings = append(warnings, w)
		}
	}
	return warnings
}

func detectAuthorityChange(dec Decoded, signers map[solana.PublicKey]bool) []pattern.Warning {
	if dec.NewAuthority == nil {
		switch dec.Authority {
		case AuthorityMint:
			return []pattern.Warning{pattern.NewWarning(pattern.MintKill, pattern.SeverityCritical,
				"mint authority is being set to None; token supply becomes permanently fixed")}
		case AuthorityFreeze:
			return []pattern.Warning{pattern.NewWarning(pattern.FreezeKill, pattern.SeverityCritical,
				"freeze authority is being set to None; holder accounts can never be frozen again")}
		}
		return nil
	}

	if !signers[*dec.NewAuthority] {
		w := pattern.NewWarning(pattern.SignerMismatch, pattern.SeverityWarning,
			"authority is being transferred to an address that did not sign this transaction")
		return []pattern.Warning{w.WithAccount(dec.NewAuthority.String())}
	}
	return nil
}

// detectHookPatterns covers the transfer-hook heuristics. A "hook" here is
// any non-token-program instruction riding along with token activity.
func (d *Detector) detectHookPatterns(instructions []tx.Instruction) []pattern.Warning {
	var warnings []pattern.Warning

	hasTransfer := false
	tokenPositions := make([]bool, len(instructions))
	for i, ins := range instructions {
		if !IsTokenProgram(ins.ProgramID) {
			continue
		}
		tokenPositions[i] = true
		switch Decode(ins.Data).Kind {
		case KindTransfer, KindTransferChecked:
			hasTransfer = true
		}
	}

	// Position-sensitive: does a token instruction exist on both sides of i?
	tokenBefore := make([]bool, len(instructions))
	tokenAfter := make([]bool, len(instructions))
	seen := false
	for i := range instructions {
		tokenBefore[i] = seen
		seen = seen || tokenPositions[i]
	}
	seen = false
	for i := len(instructions) - 1; i >= 0; i-- {
		tokenAfter[i] = seen
		seen = seen || tokenPositions[i]
	}

	invocations := make(map[solana.PublicKey]int)

	for i, ins := range instructions {
		if tokenPositions[i] {
			continue
		}
		program := ins.ProgramID
		invocations[program]++
		total := len(ins.Accounts)
		writable := 0
		for _, a := range ins.Accounts {
			if a.IsWritable {
				writable++
			}
		}

		if !d.allowed[program] && (writable > hookWritableLimit || total > hookTotalLimit) {
			w := pattern.NewWarning(pattern.MaliciousTransferHook, pattern.SeverityCritical,
				fmt.Sprintf("hook program %s touches %d accounts (%d writable), far beyond a legitimate transfer hook", program, total, writable))
			warnings = append(warnings, w.WithAccount(program.String()))
		}

		if !hasTransfer && total > hookNoTransferLimit {
			w := pattern.NewWarning(pattern.UnexpectedHook, pattern.SeverityAlert,
				fmt.Sprintf("program %s executes against %d accounts with no token transfer in the transaction", program, total))
			warnings = append(warnings, w.WithAccount(program.String()))
		}

		if tokenBefore[i] && tokenAfter[i] {
			w := pattern.NewWarning(pattern.HookReentrancy, pattern.SeverityCritical,
				fmt.Sprintf("program %s executes sandwiched between token instructions, a reentrancy setup", program))
			warnings = append(warnings, w.WithAccount(program.String()))
		}

		if !d.allowed[program] && total > d.cfg.MaxHookAccounts {
			w := pattern.NewWarning(pattern.ExcessiveHookAccounts, pattern.SeverityWarning,
				fmt.Sprintf("hook program %s touches %d accounts, above the configured limit of %d", program, total, d.cfg.MaxHookAccounts))
			warnings = append(warnings, w.WithAccount(program.String()))
		}
	}

	for program, count := range invocations {
		if d.allowed[program] || count <= hookInvocationLimit {
			continue
		}
		w := pattern.NewWarning(pattern.HookReentrancy, pattern.SeverityCritical,
			fmt.Sprintf("program %s is invoked %d times in one transaction", program, count))
		warnings = append(warnings, w.WithAccount(program.String()))
	}

	return warnings
}
