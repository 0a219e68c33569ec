package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/chainguard/internal/guard"
	"github.com/mbd888/chainguard/internal/logging"
	"github.com/mbd888/chainguard/internal/metrics"
	"github.com/mbd888/chainguard/internal/pagination"
	"github.com/mbd888/chainguard/internal/pattern"
	"github.com/mbd888/chainguard/internal/realtime"
	"github.com/mbd888/chainguard/internal/security"
	"github.com/mbd888/chainguard/internal/tx"
	"github.com/mbd888/chainguard/internal/validation"
)

// validateRequest is the body of POST /v1/validate. Config, when present,
// overrides the server's guard settings for this one request only. It is
// kept raw so omitted fields inherit the server's effective config
// instead of decoding to zero values.
type validateRequest struct {
	Transaction tx.UnifiedTransaction `json:"transaction"`
	Config      json.RawMessage       `json:"config,omitempty"`
}

type validateResponse struct {
	IsValid   bool              `json:"isValid"`
	Warnings  []pattern.Warning `json:"warnings"`
	BlockedBy []pattern.Pattern `json:"blockedBy,omitempty"`
}

func (s *Server) validateHandler(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body: " + validation.SanitizeString(err.Error(), 200),
		})
		return
	}

	if req.Transaction.Chain != tx.ChainSolana && req.Transaction.Chain != tx.ChainEVM {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_chain",
			"message": "chain must be \"solana\" or \"evm\"",
		})
		return
	}

	g := s.guard
	if len(req.Config) > 0 {
		cfg := s.guard.Config()
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_config",
				"message": "Invalid config override: " + validation.SanitizeString(err.Error(), 200),
			})
			return
		}
		// The startup SSRF check covers only the configured endpoint, so an
		// override pointing the oracle elsewhere is re-checked here.
		if cfg.Pulsar.Enabled {
			if err := security.ValidateEndpointURL(cfg.Pulsar.Endpoint); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_config",
					"message": "oracle endpoint: " + validation.SanitizeString(err.Error(), 200),
				})
				return
			}
		}
		// A per-request override runs on a scratch guard so concurrent
		// requests never observe each other's settings. The scratch guard
		// shares the live emergency-stop state.
		g = guard.New(cfg, guard.WithLogger(logging.L(c.Request.Context())))
		if s.guard.EmergencyStopped() {
			g.ActivateEmergencyStop()
		}
	}

	result, err := g.ValidateUnifiedTransactionWithPatterns(c.Request.Context(), &req.Transaction)
	if err != nil {
		logging.L(c.Request.Context()).Error("validation failed", "error", err, "tx_id", req.Transaction.ID)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "validation_error",
			"message": "Validation could not complete: " + validation.SanitizeString(err.Error(), 200),
		})
		return
	}

	s.realtimeHub.BroadcastValidation(realtimeEvent(&req.Transaction, result))

	c.JSON(http.StatusOK, validateResponse{
		IsValid:   result.IsValid,
		Warnings:  result.Warnings,
		BlockedBy: result.BlockedBy,
	})
}

// -----------------------------------------------------------------------------
// Emergency stop
// -----------------------------------------------------------------------------

func (s *Server) activateEmergencyStopHandler(c *gin.Context) {
	s.guard.ActivateEmergencyStop()
	metrics.EmergencyStopActive.Set(1)
	s.realtimeHub.BroadcastEmergencyStop(true)
	logging.L(c.Request.Context()).Warn("emergency stop activated", "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"emergencyStop": true})
}

func (s *Server) deactivateEmergencyStopHandler(c *gin.Context) {
	s.guard.DeactivateEmergencyStop()
	metrics.EmergencyStopActive.Set(0)
	s.realtimeHub.BroadcastEmergencyStop(false)
	logging.L(c.Request.Context()).Info("emergency stop deactivated", "client_ip", c.ClientIP())
	c.JSON(http.StatusOK, gin.H{"emergencyStop": false})
}

func (s *Server) emergencyStopStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"emergencyStop": s.guard.EmergencyStopped()})
}

// -----------------------------------------------------------------------------
// Warning history
// -----------------------------------------------------------------------------

const (
	defaultWarningPageSize = 50
	maxWarningPageSize     = 500
)

// warningHistoryHandler returns recorded warnings newest-first with cursor
// pagination. The cursor is opaque; clients pass back nextCursor verbatim.
func (s *Server) warningHistoryHandler(c *gin.Context) {
	limit := defaultWarningPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be a positive integer",
			})
			return
		}
		if n > maxWarningPageSize {
			n = maxWarningPageSize
		}
		limit = n
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is malformed",
		})
		return
	}

	history := s.guard.WarningHistory()
	items := warningsAfter(history, cursor, limit+1)
	page, next, hasMore := pagination.ComputePage(items, limit, func(w pattern.Warning) (time.Time, string) {
		return w.DetectedAt, w.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"warnings":   page,
		"count":      len(page),
		"total":      len(history),
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// warningsAfter walks the history newest-first and returns up to max entries
// past the cursor position. A cursor whose entry has since been cleared falls
// back to the timestamp.
func warningsAfter(history []pattern.Warning, cur *pagination.Cursor, max int) []pattern.Warning {
	out := make([]pattern.Warning, 0, max)
	skipping := cur != nil
	for i := len(history) - 1; i >= 0 && len(out) < max; i-- {
		w := history[i]
		if skipping {
			if w.ID == cur.ID {
				skipping = false
			} else if w.DetectedAt.Before(cur.CreatedAt) {
				skipping = false
				out = append(out, w)
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

func (s *Server) clearWarningHistoryHandler(c *gin.Context) {
	s.guard.ClearWarningHistory()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// -----------------------------------------------------------------------------
// Risk oracle
// -----------------------------------------------------------------------------

func (s *Server) assetRiskHandler(c *gin.Context) {
	asset := validation.SanitizeAddress(c.Param("asset"))
	if asset == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_asset",
			"message": "asset address is required",
		})
		return
	}

	if !s.guard.Config().Pulsar.Enabled {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "oracle_disabled",
			"message": "Risk oracle is not configured",
		})
		return
	}

	m, err := s.guard.Oracle().GetRiskMetrics(c.Request.Context(), asset)
	if err != nil {
		logging.L(c.Request.Context()).Error("risk lookup failed", "error", err, "asset", asset)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "oracle_error",
			"message": "Risk oracle unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, m)
}

func (s *Server) cacheStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.guard.Oracle().CacheStats())
}

func (s *Server) clearCacheHandler(c *gin.Context) {
	s.guard.Oracle().ClearCache()
	c.JSON(http.StatusOK, gin.H{"cleared": true})
}

// -----------------------------------------------------------------------------
// Config and events
// -----------------------------------------------------------------------------

// configHandler returns the effective guard configuration. The oracle API
// key never leaves the process.
func (s *Server) configHandler(c *gin.Context) {
	cfg := s.guard.Config()
	cfg.Pulsar.APIKey = ""
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) eventStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

func realtimeEvent(t *tx.UnifiedTransaction, r *guard.ValidationResult) realtime.ValidationEvent {
	return realtime.ValidationEvent{
		TxID:      t.ID,
		Chain:     string(t.Chain),
		IsValid:   r.IsValid,
		BlockedBy: r.BlockedBy,
		Warnings:  len(r.Warnings),
	}
}
