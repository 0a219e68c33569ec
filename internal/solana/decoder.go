// Package solana decodes SPL token instruction payloads and matches them
// against known dangerous patterns.
//
// Decoding covers the small closed set of layouts the detector cares about:
// SetAuthority, CloseAccount, Transfer, and TransferChecked, for both the
// token program and its 2022 variant. Everything else, including undersized
// payloads, decodes to "unrecognized" and is skipped — one malformed
// instruction never aborts detection of the rest.
package solana

import (
	"github.com/gagliardetto/solana-go"
)

// Token program instruction discriminants (first data byte).
const (
	opTransfer        = 3
	opSetAuthority    = 6
	opCloseAccount    = 9
	opTransferChecked = 12
)

// SetAuthority layout offsets: [0]=discriminant, [1]=authority type,
// [2]=option tag, [3:35]=new authority pubkey when the tag is Some.
const (
	optionNone = 0
	optionSome = 1

	setAuthorityMinLen  = 3
	setAuthoritySomeLen = 3 + 32
)

// Kind classifies a decoded token instruction.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindTransfer
	KindTransferChecked
	KindSetAuthority
	KindCloseAccount
)

// AuthorityType is the token authority being changed by SetAuthority.
type AuthorityType byte

const (
	AuthorityMint   AuthorityType = 0
	AuthorityFreeze AuthorityType = 1
)

// Decoded is the result of interpreting one instruction payload.
// NewAuthority is nil for the None option tag.
type Decoded struct {
	Kind         Kind
	Authority    AuthorityType
	NewAuthority *solana.PublicKey
}

// Decode interprets the leading bytes of a token-program payload.
// It never fails: anything it cannot fully account for is KindUnrecognized.
func Decode(data []byte) Decoded {
	if len(data) == 0 {
		return Decoded{}
	}

	switch data[0] {
	case opTransfer:
		return Decoded{Kind: KindTransfer}
	case opTransferChecked:
		return Decoded{Kind: KindTransferChecked}
	case opCloseAccount:
		return Decoded{Kind: KindCloseAccount}
	case opSetAuthority:
		return decodeSetAuthority(data)
	default:
		return Decoded{}
	}
}

func decodeSetAuthority(data []byte) Decoded {
	if len(data) < setAuthorityMinLen {
		return Decoded{}
	}

	d := Decoded{
		Kind:      KindSetAuthority,
		Authority: AuthorityType(data[1]),
	}

	switch data[2] {
	case optionNone:
		return d
	case optionSome:
		if len(data) < setAuthoritySomeLen {
			return Decoded{}
		}
		pk := solana.PublicKeyFromBytes(data[3:setAuthoritySomeLen])
		d.NewAuthority = &pk
		return d
	default:
		// Option tags other than 0/1 are not a layout we know.
		return Decoded{}
	}
}

// IsTokenProgram reports whether the program is the SPL token program or
// its 2022 variant.
func IsTokenProgram(program solana.PublicKey) bool {
	return program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID)
}
