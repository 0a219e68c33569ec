package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/chainguard/pkg/guardclient"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *guardclient.Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *guardclient.Client) *Handlers {
	return &Handlers{client: client}
}

// HandleValidateTransaction runs a transaction through the guard.
func (h *Handlers) HandleValidateTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	if chain != "solana" && chain != "evm" {
		return mcp.NewToolResultError("chain must be 'solana' or 'evm'"), nil
	}

	rawTx := req.GetArguments()["transaction"]
	txData, ok := rawTx.(map[string]any)
	if !ok {
		return mcp.NewToolResultError("transaction must be an object"), nil
	}

	// Assemble the unified transaction the API expects.
	unified := map[string]any{
		"chain": chain,
		chain:   txData,
	}
	if rawAssets := req.GetArguments()["asset_addresses"]; rawAssets != nil {
		unified["assetAddresses"] = rawAssets
	}

	raw, err := h.client.ValidateTransaction(ctx, unified)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Validation failed: %v", err)), nil
	}

	text, err := formatValidationResult(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse validation result: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleCheckAssetRisk looks up an asset in the risk oracle.
func (h *Handlers) HandleCheckAssetRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	asset := req.GetString("asset", "")
	if asset == "" {
		return mcp.NewToolResultError("asset is required"), nil
	}

	raw, err := h.client.GetAssetRisk(ctx, asset)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Risk lookup failed: %v", err)), nil
	}

	text, err := formatRiskMetrics(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse risk metrics: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleEmergencyStop activates, deactivates, or reports the emergency stop.
func (h *Handlers) HandleEmergencyStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := req.GetString("action", "")

	var (
		raw json.RawMessage
		err error
	)
	switch action {
	case "activate":
		raw, err = h.client.ActivateEmergencyStop(ctx)
	case "deactivate":
		raw, err = h.client.DeactivateEmergencyStop(ctx)
	case "status":
		raw, err = h.client.GetEmergencyStopStatus(ctx)
	default:
		return mcp.NewToolResultError("action must be 'activate', 'deactivate', or 'status'"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Emergency stop request failed: %v", err)), nil
	}

	var resp struct {
		EmergencyStop bool `json:"emergencyStop"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	if resp.EmergencyStop {
		return mcp.NewToolResultText("Emergency stop is ACTIVE. All transactions are blocked."), nil
	}
	return mcp.NewToolResultText("Emergency stop is inactive. Normal validation in effect."), nil
}

// HandleGetWarningHistory returns (and optionally clears) past warnings.
func (h *Handlers) HandleGetWarningHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetWarningHistory(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get warning history: %v", err)), nil
	}

	text, err := formatWarningHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse warning history: %v", err)), nil
	}

	if req.GetBool("clear", false) {
		if _, err := h.client.ClearWarningHistory(ctx); err != nil {
			text += fmt.Sprintf("\n\nNote: failed to clear history: %v", err)
		} else {
			text += "\n\nHistory cleared."
		}
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetGuardConfig returns the active guard configuration.
func (h *Handlers) HandleGetGuardConfig(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetConfig(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get config: %v", err)), nil
	}

	return mcp.NewToolResultText("Active guard configuration:\n" + formatJSON(raw)), nil
}

// --- Formatting helpers ---

type validationResult struct {
	IsValid  bool `json:"isValid"`
	Warnings []struct {
		Pattern         string `json:"pattern"`
		Severity        string `json:"severity"`
		Message         string `json:"message"`
		AffectedAccount string `json:"affectedAccount,omitempty"`
	} `json:"warnings"`
	BlockedBy []string `json:"blockedBy,omitempty"`
}

func formatValidationResult(raw json.RawMessage) (string, error) {
	var res validationResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", err
	}

	var sb strings.Builder
	if res.IsValid {
		sb.WriteString("ALLOWED — transaction passed validation.\n")
	} else {
		sb.WriteString("BLOCKED — do not submit this transaction.\n")
		if len(res.BlockedBy) > 0 {
			fmt.Fprintf(&sb, "Blocked by: %s\n", strings.Join(res.BlockedBy, ", "))
		}
	}

	if len(res.Warnings) == 0 {
		sb.WriteString("No warnings.")
		return sb.String(), nil
	}

	fmt.Fprintf(&sb, "\n%d warning(s):\n", len(res.Warnings))
	for _, w := range res.Warnings {
		fmt.Fprintf(&sb, "- [%s] %s: %s", strings.ToUpper(w.Severity), w.Pattern, w.Message)
		if w.AffectedAccount != "" {
			fmt.Fprintf(&sb, " (account: %s)", w.AffectedAccount)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatRiskMetrics(raw json.RawMessage) (string, error) {
	var m struct {
		Asset            string   `json:"asset"`
		RiskScore        *float64 `json:"riskScore"`
		ComplianceStatus *string  `json:"complianceStatus"`
		CounterpartyRisk *float64 `json:"counterpartyRisk"`
		OracleIntegrity  *float64 `json:"oracleIntegrity"`
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Asset: %s\n", m.Asset)
	if m.RiskScore == nil {
		sb.WriteString("Risk score: unknown (oracle could not answer)\n")
	} else {
		fmt.Fprintf(&sb, "Risk score: %.2f (0 = safe, 1 = maximum risk)\n", *m.RiskScore)
	}
	if m.ComplianceStatus != nil {
		fmt.Fprintf(&sb, "Compliance: %s\n", *m.ComplianceStatus)
	}
	if m.CounterpartyRisk != nil {
		fmt.Fprintf(&sb, "Counterparty risk: %.2f\n", *m.CounterpartyRisk)
	}
	if m.OracleIntegrity != nil {
		fmt.Fprintf(&sb, "Oracle integrity: %.2f\n", *m.OracleIntegrity)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatWarningHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		Count    int `json:"count"`
		Warnings []struct {
			Pattern    string `json:"pattern"`
			Severity   string `json:"severity"`
			Message    string `json:"message"`
			DetectedAt string `json:"detectedAt"`
		} `json:"warnings"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if resp.Count == 0 {
		return "No warnings recorded.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d warning(s) on record:\n", resp.Count)
	for _, w := range resp.Warnings {
		fmt.Fprintf(&sb, "- [%s] %s: %s (%s)\n", strings.ToUpper(w.Severity), w.Pattern, w.Message, w.DetectedAt)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func formatJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
