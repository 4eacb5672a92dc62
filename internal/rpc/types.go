package rpc

import (
	"github.com/Klingon-tech/smartcolors/internal/kernel"
)

// JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeNotFound       = -32000
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      interface{} `json:"id"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *Error      `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ── Param types ─────────────────────────────────────────────────────────

// ColorParam is used by endpoints that take a single color.
type ColorParam struct {
	Color   string  `json:"color"`
	Version *uint32 `json:"version,omitempty"` // Only color_getDefinition; nil = current.
}

// OutpointParam is used by color_getOutpoint.
type OutpointParam struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// ProofParam is used by color_getProof.
type ProofParam struct {
	Color string `json:"color"`
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
}

// TraceParam is used by color_traceProof.
type TraceParam struct {
	Color        string `json:"color"`
	GenesisTxID  string `json:"genesis_tx_id"`
	GenesisIndex uint32 `json:"genesis_index"`
	TxID         string `json:"tx_id"`
	Index        uint32 `json:"index"`
}

// VerifyParam is used by color_verifyProof.
type VerifyParam struct {
	Proof string `json:"proof"` // Hex-encoded proof.
}

// CoinsParam is used by color_listCoins.
type CoinsParam struct {
	Color   string   `json:"color"`
	Scripts []string `json:"scripts"` // Hex output scripts owned by the caller.
}

// FundingCoin is a plain coin offered to pay for a transfer.
type FundingCoin struct {
	TxID  string `json:"tx_id"`
	Index uint32 `json:"index"`
	Value uint64 `json:"value"`
}

// TransferRecipient receives a quantity of color.
type TransferRecipient struct {
	Script   string `json:"script"`
	Quantity uint64 `json:"quantity"`
}

// TransferParam is used by color_buildTransfer.
type TransferParam struct {
	Color      string              `json:"color"`
	Owned      []string            `json:"owned"`
	Funding    []FundingCoin       `json:"funding,omitempty"`
	Recipients []TransferRecipient `json:"recipients"`
	Change     string              `json:"change"`
	Fee        uint64              `json:"fee"`
}

// ── Result types ────────────────────────────────────────────────────────

// InfoResult is returned by tracker_getInfo.
type InfoResult struct {
	Height    int64  `json:"height"` // -1 before the first indexed block.
	Colors    int    `json:"colors"`
	StateHash string `json:"state_hash"`
}

// DefinitionResult describes one version of a color definition.
type DefinitionResult struct {
	Color    string `json:"color"`
	Version  uint32 `json:"version"`
	Root     string `json:"root"`
	Hash     string `json:"hash"`
	Metadata string `json:"metadata,omitempty"` // Hex.
}

// ColorListResult is returned by color_list.
type ColorListResult struct {
	Colors []DefinitionResult `json:"colors"`
}

// BalanceResult is returned by color_getBalance.
type BalanceResult struct {
	Color   string `json:"color"`
	Balance uint64 `json:"balance"`
	Outputs int    `json:"outputs"`
}

// OutputsResult is returned by color_listOutputs.
type OutputsResult struct {
	Color   string                 `json:"color"`
	Outputs []kernel.ColoredOutput `json:"outputs"`
}

// OutpointResult is returned by color_getOutpoint.
type OutpointResult struct {
	Outpoint string                 `json:"outpoint"`
	Colors   []kernel.ColoredOutput `json:"colors"`
}

// ProofResult is returned by color_getProof and color_traceProof.
type ProofResult struct {
	Color    string `json:"color"`
	Version  uint32 `json:"version"`
	Target   string `json:"target"`
	Quantity uint64 `json:"quantity"`
	Txs      int    `json:"txs"`
	Proof    string `json:"proof"` // Hex-encoded proof.
}

// VerifyResult is returned by color_verifyProof.
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Color    string `json:"color,omitempty"`
	Target   string `json:"target,omitempty"`
	Quantity uint64 `json:"quantity,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CoinResult describes a colored coin.
type CoinResult struct {
	TxID     string `json:"tx_id"`
	Index    uint32 `json:"index"`
	Value    uint64 `json:"value"`
	Quantity uint64 `json:"quantity"`
}

// CoinsResult is returned by color_listCoins.
type CoinsResult struct {
	Color string       `json:"color"`
	Coins []CoinResult `json:"coins"`
}

// TransferResult is returned by color_buildTransfer.
type TransferResult struct {
	TxID          string `json:"tx_id"`
	Tx            string `json:"tx"` // Hex-encoded unsigned transaction.
	Colored       []int  `json:"colored"`
	ColoredChange uint64 `json:"colored_change"`
	Fee           uint64 `json:"fee"`
}
