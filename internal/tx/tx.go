// Package tx defines the chain-tagged transaction model the guard validates.
//
// A UnifiedTransaction is a parsed, ready-to-submit transaction handed over
// by a chain adapter. The guard inspects it and never builds or mutates it.
package tx

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gagliardetto/solana-go"
)

// Chain identifies which virtual machine a transaction targets.
type Chain string

const (
	ChainSolana Chain = "solana"
	ChainEVM    Chain = "evm"
)

// AccountMeta is one account referenced by a Solana instruction,
// in original order.
type AccountMeta struct {
	Address    solana.PublicKey `json:"address"`
	IsSigner   bool             `json:"isSigner"`
	IsWritable bool             `json:"isWritable"`
}

// Instruction is a single Solana instruction: a program, an ordered
// account list, and opaque data bytes.
type Instruction struct {
	ProgramID solana.PublicKey `json:"programId"`
	Accounts  []AccountMeta    `json:"accounts"`
	Data      []byte           `json:"data"`
}

// SolanaData is the account-model variant of a unified transaction.
type SolanaData struct {
	Instructions []Instruction      `json:"instructions"`
	Signers      []solana.PublicKey `json:"signers"`
}

// EVMCall is a single EVM call: target, calldata (first 4 bytes select the
// function), value, and EIP-1559 fee fields.
type EVMCall struct {
	To                   common.Address `json:"to"`
	Data                 []byte         `json:"data"`
	Value                *big.Int       `json:"value,omitempty"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas,omitempty"`
}

// Selector returns the 4-byte function selector, or nil if calldata is short.
func (c *EVMCall) Selector() []byte {
	if len(c.Data) < 4 {
		return nil
	}
	return c.Data[:4]
}

// PrivacyMetadata carries the caller's privacy requirements for a transaction.
type PrivacyMetadata struct {
	RequiresPrivacy bool   `json:"requiresPrivacy"`
	PrivacyLevel    string `json:"privacyLevel,omitempty"`
}

// UnifiedTransaction is a chain-tagged transaction plus optional risk and
// privacy context. Exactly one of Solana or EVM should be set, matching Chain;
// the guard surfaces a disagreement as a validation warning rather than an error.
type UnifiedTransaction struct {
	ID             string           `json:"id"`
	Chain          Chain            `json:"chain"`
	Solana         *SolanaData      `json:"solana,omitempty"`
	EVM            *EVMCall         `json:"evm,omitempty"`
	AssetAddresses []string         `json:"assetAddresses,omitempty"`
	Privacy        *PrivacyMetadata `json:"privacyMetadata,omitempty"`
}

// ChainDataConsistent reports whether the populated variant matches the
// chain tag.
func (t *UnifiedTransaction) ChainDataConsistent() bool {
	switch t.Chain {
	case ChainSolana:
		return t.Solana != nil && t.EVM == nil
	case ChainEVM:
		return t.EVM != nil && t.Solana == nil
	default:
		return false
	}
}
