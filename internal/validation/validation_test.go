package validation

import (
	"testing"
)

func TestIsValidEthAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"0x1234567890123456789012345678901234567890", true},
		{"0xabcdefABCDEF1234567890123456789012345678", true},
		{"0x0000000000000000000000000000000000000000", true},

		// Invalid cases
		{"1234567890123456789012345678901234567890", false},     // No 0x
		{"0x12345678901234567890123456789012345678", false},     // Too short
		{"0x123456789012345678901234567890123456789012", false}, // Too long
		{"0xGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGGG", false},   // Invalid chars
		{"", false},
		{"0x", false},
	}

	for _, tc := range tests {
		result := IsValidEthAddress(tc.addr)
		if result != tc.valid {
			t.Errorf("IsValidEthAddress(%q) = %v, want %v", tc.addr, result, tc.valid)
		}
	}
}

func TestIsValidSolanaAddress(t *testing.T) {
	tests := []struct {
		addr  string
		valid bool
	}{
		{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", true},
		{"11111111111111111111111111111111", true}, // System program

		// Invalid cases
		{"", false},
		{"abc", false},                                          // Too short once decoded
		{"0x1234567890123456789012345678901234567890", false},   // Hex, not base58
		{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5D0", false},  // '0' not in base58 alphabet
		{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DAAA", false}, // Wrong length
	}

	for _, tc := range tests {
		result := IsValidSolanaAddress(tc.addr)
		if result != tc.valid {
			t.Errorf("IsValidSolanaAddress(%q) = %v, want %v", tc.addr, result, tc.valid)
		}
	}
}

func TestIsValidAssetAddress(t *testing.T) {
	if !IsValidAssetAddress("0x1234567890123456789012345678901234567890") {
		t.Error("expected eth address to be accepted")
	}
	if !IsValidAssetAddress("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA") {
		t.Error("expected solana address to be accepted")
	}
	if IsValidAssetAddress("not-an-address") {
		t.Error("expected garbage to be rejected")
	}
}

func TestSanitizeAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x1234567890123456789012345678901234567890", "0x1234567890123456789012345678901234567890"},
		{"0xABCDEF1234567890123456789012345678901234", "0xabcdef1234567890123456789012345678901234"},
		{"  0x1234567890123456789012345678901234567890  ", "0x1234567890123456789012345678901234567890"},

		// Base58 is case-sensitive and must not be lowercased
		{"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
		{"  TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA  ", "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"},
	}

	for _, tc := range tests {
		result := SanitizeAddress(tc.input)
		if result != tc.expected {
			t.Errorf("SanitizeAddress(%q) = %q, want %q", tc.input, result, tc.expected)
		}
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"hello\x00world", 20, "helloworld"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}
