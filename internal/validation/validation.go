// Package validation provides input validation middleware for the Chainguard API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mr-tron/base58"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20

// ethAddressRegex validates Ethereum addresses
var ethAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidEthAddress checks if a string is a valid Ethereum address
func IsValidEthAddress(addr string) bool {
	return ethAddressRegex.MatchString(addr)
}

// IsValidSolanaAddress checks if a string is a base58-encoded 32-byte key
func IsValidSolanaAddress(addr string) bool {
	raw, err := base58.Decode(addr)
	return err == nil && len(raw) == 32
}

// IsValidAssetAddress accepts an address in either chain's format.
// Asset addresses arrive untyped in risk lookups, so both are allowed.
func IsValidAssetAddress(addr string) bool {
	return IsValidEthAddress(addr) || IsValidSolanaAddress(addr)
}

// SanitizeString trims a string to maxLen and strips whitespace and
// null bytes. Used before echoing client input back in error messages.
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeAddress trims an address without changing case. Base58 is
// case-sensitive, so only hex addresses are lowercased.
func SanitizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X") {
		addr = strings.ToLower(addr)
	}
	return addr
}

// AssetParamMiddleware validates the :asset URL parameter on routes that use it.
// Apply to route groups with :asset params to reject malformed addresses early.
func AssetParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		asset := c.Param("asset")
		if asset != "" && !IsValidAssetAddress(asset) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_asset",
				"message": "asset must be a valid Ethereum or Solana address",
			})
			return
		}
		c.Next()
	}
}
