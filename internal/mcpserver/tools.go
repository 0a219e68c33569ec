package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Chainguard MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolValidateTransaction = mcp.NewTool("validate_transaction",
	mcp.WithDescription(
		"Validate a proposed blockchain transaction against Chainguard's security patterns "+
			"before signing or submitting it. Detects authority takeovers, dangerous account "+
			"closures, suspicious transfer hooks, reentrancy, flash-loan attacks, and more. "+
			"Returns an allow/block decision with the warnings that drove it. "+
			"Always run this before submitting a transaction you did not author yourself."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Target chain: 'solana' or 'evm'"),
		mcp.Enum("solana", "evm")),
	mcp.WithObject("transaction",
		mcp.Required(),
		mcp.Description("The parsed transaction. For Solana: {\"instructions\": [...], \"signers\": [...]}. "+
			"For EVM: {\"to\": \"0x...\", \"data\": \"base64 calldata\", \"maxPriorityFeePerGas\": \"...\"}")),
	mcp.WithArray("asset_addresses",
		mcp.Description("Token or contract addresses the transaction touches, for risk-oracle lookup")),
)

var ToolCheckAssetRisk = mcp.NewTool("check_asset_risk",
	mcp.WithDescription(
		"Look up risk metrics for a token or contract address from the risk oracle. "+
			"Returns a risk score (0 = safe, 1 = maximum risk), compliance status, and "+
			"audit/verification flags. Use this before interacting with an unfamiliar asset."),
	mcp.WithString("asset",
		mcp.Required(),
		mcp.Description("The asset address (Ethereum 0x... or Solana base58)")),
)

var ToolEmergencyStop = mcp.NewTool("emergency_stop",
	mcp.WithDescription(
		"Control Chainguard's emergency stop. While active, every validation is blocked "+
			"regardless of content — use it when a live exploit is suspected and transactions "+
			"must halt immediately. Actions: 'activate', 'deactivate', or 'status'."),
	mcp.WithString("action",
		mcp.Required(),
		mcp.Description("What to do: 'activate' blocks all transactions, 'deactivate' resumes normal validation, 'status' reports the current state"),
		mcp.Enum("activate", "deactivate", "status")),
)

var ToolGetWarningHistory = mcp.NewTool("get_warning_history",
	mcp.WithDescription(
		"Retrieve the warnings Chainguard has accumulated across past validations. "+
			"Useful for auditing what was detected and when. "+
			"Pass clear=true to wipe the history after reading it."),
	mcp.WithBoolean("clear",
		mcp.Description("If true, clear the history after returning it")),
)

var ToolGetGuardConfig = mcp.NewTool("get_guard_config",
	mcp.WithDescription(
		"Fetch Chainguard's active configuration: validation mode (block/warn), risk "+
			"tolerance (strict/moderate/permissive), hook validation settings, and whether "+
			"the risk oracle is enabled."),
)
