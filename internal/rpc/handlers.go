package rpc

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/smartcolors/internal/colordb"
	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/kernel"
	"github.com/Klingon-tech/smartcolors/internal/proof"
	"github.com/Klingon-tech/smartcolors/internal/prover"
	"github.com/Klingon-tech/smartcolors/internal/wallet"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

// ── Param helpers ───────────────────────────────────────────────────────

func parseColor(s string) (types.ColorID, *Error) {
	if s == "" {
		return types.ColorID{}, &Error{Code: CodeInvalidParams, Message: "color is required"}
	}
	id, err := types.HexToColorID(s)
	if err != nil {
		return types.ColorID{}, &Error{Code: CodeInvalidParams, Message: "invalid color: must be 32-byte hex"}
	}
	return id, nil
}

func parseOutpoint(txid string, index uint32) (types.Outpoint, *Error) {
	h, err := types.HexToHash(txid)
	if err != nil {
		return types.Outpoint{}, &Error{Code: CodeInvalidParams, Message: "invalid tx_id: must be 32-byte hex"}
	}
	return types.Outpoint{TxID: h, Index: index}, nil
}

func parseScripts(field string, in []string) ([][]byte, *Error) {
	out := make([][]byte, len(in))
	for i, s := range in {
		b, err := hex.DecodeString(s)
		if err != nil || len(b) == 0 {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid %s[%d]: must be non-empty hex", field, i)}
		}
		out[i] = b
	}
	return out, nil
}

// colorError maps color database errors onto RPC errors.
func colorError(err error) *Error {
	if errors.Is(err, colordb.ErrUnknownColor) || errors.Is(err, colordb.ErrNotColored) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	return &Error{Code: CodeInternalError, Message: err.Error()}
}

func newDefinitionResult(def *colordef.Definition) DefinitionResult {
	return DefinitionResult{
		Color:    def.ColorID.String(),
		Version:  def.Version,
		Root:     def.Root.String(),
		Hash:     def.Hash().String(),
		Metadata: hex.EncodeToString(def.Metadata),
	}
}

// ── Tracker endpoints ───────────────────────────────────────────────────

func (s *Server) handleTrackerGetInfo(_ context.Context, _ *Request) (interface{}, *Error) {
	height, err := s.backend.Height()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	colors := s.backend.Colors()
	state, err := colors.StateHash()
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: err.Error()}
	}
	return &InfoResult{
		Height:    height,
		Colors:    len(colors.Colors()),
		StateHash: state.String(),
	}, nil
}

// ── Color endpoints ─────────────────────────────────────────────────────

func (s *Server) handleColorList(_ context.Context, _ *Request) (interface{}, *Error) {
	colors := s.backend.Colors()
	result := &ColorListResult{Colors: []DefinitionResult{}}
	for _, id := range colors.Colors() {
		def, err := colors.Definition(id)
		if err != nil {
			return nil, colorError(err)
		}
		result.Colors = append(result.Colors, newDefinitionResult(def))
	}
	return result, nil
}

func (s *Server) handleColorGetDefinition(_ context.Context, req *Request) (interface{}, *Error) {
	var params ColorParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var (
		def *colordef.Definition
		err error
	)
	if params.Version != nil {
		def, err = s.backend.Colors().DefinitionAt(id, *params.Version)
	} else {
		def, err = s.backend.Colors().Definition(id)
	}
	if err != nil {
		return nil, colorError(err)
	}
	res := newDefinitionResult(def)
	return &res, nil
}

func (s *Server) handleColorGetBalance(_ context.Context, req *Request) (interface{}, *Error) {
	var params ColorParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}

	outs, err := s.backend.Colors().Outputs(id)
	if err != nil {
		return nil, colorError(err)
	}
	var total uint64
	for _, o := range outs {
		total += o.Quantity
	}
	return &BalanceResult{Color: id.String(), Balance: total, Outputs: len(outs)}, nil
}

func (s *Server) handleColorListOutputs(_ context.Context, req *Request) (interface{}, *Error) {
	var params ColorParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}

	outs, err := s.backend.Colors().Outputs(id)
	if err != nil {
		return nil, colorError(err)
	}
	result := &OutputsResult{Color: id.String(), Outputs: outs}
	if result.Outputs == nil {
		result.Outputs = []kernel.ColoredOutput{}
	}
	return result, nil
}

func (s *Server) handleColorGetOutpoint(_ context.Context, req *Request) (interface{}, *Error) {
	var params OutpointParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	op, rpcErr := parseOutpoint(params.TxID, params.Index)
	if rpcErr != nil {
		return nil, rpcErr
	}

	colors, err := s.backend.Colors().Get(op)
	if err != nil {
		return nil, colorError(err)
	}
	if colors == nil {
		colors = []kernel.ColoredOutput{}
	}
	return &OutpointResult{Outpoint: op.String(), Colors: colors}, nil
}

// ── Proof endpoints ─────────────────────────────────────────────────────

func (s *Server) handleColorGetProof(ctx context.Context, req *Request) (interface{}, *Error) {
	var params ProofParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}
	target, rpcErr := parseOutpoint(params.TxID, params.Index)
	if rpcErr != nil {
		return nil, rpcErr
	}

	p, err := s.backend.Prove(ctx, id, target)
	if err != nil {
		return nil, colorError(err)
	}
	return s.proofResult(ctx, p)
}

func (s *Server) handleColorTraceProof(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TraceParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}
	genesis, rpcErr := parseOutpoint(params.GenesisTxID, params.GenesisIndex)
	if rpcErr != nil {
		return nil, rpcErr
	}
	target, rpcErr := parseOutpoint(params.TxID, params.Index)
	if rpcErr != nil {
		return nil, rpcErr
	}

	p, err := s.backend.Trace(ctx, id, genesis, target)
	if err != nil {
		if errors.Is(err, prover.ErrNotGenesis) || errors.Is(err, prover.ErrNotReached) {
			return nil, &Error{Code: CodeNotFound, Message: err.Error()}
		}
		return nil, colorError(err)
	}
	return s.proofResult(ctx, p)
}

// proofResult checks p against its definition and encodes it.
func (s *Server) proofResult(ctx context.Context, p *proof.Proof) (interface{}, *Error) {
	def, err := s.backend.Colors().DefinitionAt(p.ColorID, p.Version)
	if err != nil {
		return nil, colorError(err)
	}
	qty, err := p.VerifyDefinition(ctx, def)
	if err != nil {
		return nil, &Error{Code: CodeInternalError, Message: fmt.Sprintf("proof for %s does not verify: %v", p.Target, err)}
	}
	return &ProofResult{
		Color:    p.ColorID.String(),
		Version:  p.Version,
		Target:   p.Target.String(),
		Quantity: qty,
		Txs:      len(p.Txs),
		Proof:    hex.EncodeToString(p.Encode()),
	}, nil
}

func (s *Server) handleColorVerifyProof(ctx context.Context, req *Request) (interface{}, *Error) {
	var params VerifyParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(params.Proof)
	if err != nil || len(raw) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid proof: must be non-empty hex"}
	}
	p, err := proof.Decode(raw)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}, nil
	}

	qty, err := s.backend.Verify(ctx, p)
	if err != nil {
		if errors.Is(err, colordb.ErrUnknownColor) {
			return nil, colorError(err)
		}
		return &VerifyResult{
			Valid:  false,
			Color:  p.ColorID.String(),
			Target: p.Target.String(),
			Error:  err.Error(),
		}, nil
	}
	return &VerifyResult{
		Valid:    true,
		Color:    p.ColorID.String(),
		Target:   p.Target.String(),
		Quantity: qty,
	}, nil
}

// ── Wallet endpoints ────────────────────────────────────────────────────

func (s *Server) handleColorListCoins(ctx context.Context, req *Request) (interface{}, *Error) {
	var params CoinsParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params.Scripts) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "scripts is required"}
	}
	scripts, rpcErr := parseScripts("scripts", params.Scripts)
	if rpcErr != nil {
		return nil, rpcErr
	}

	coins, err := s.backend.ColoredCoins(ctx, id, scripts)
	if err != nil {
		return nil, colorError(err)
	}
	result := &CoinsResult{Color: id.String(), Coins: make([]CoinResult, 0, len(coins))}
	for _, c := range coins {
		result.Coins = append(result.Coins, CoinResult{
			TxID:     c.Outpoint.TxID.String(),
			Index:    c.Outpoint.Index,
			Value:    c.Value,
			Quantity: c.Quantity,
		})
	}
	return result, nil
}

func (s *Server) handleColorBuildTransfer(ctx context.Context, req *Request) (interface{}, *Error) {
	var params TransferParam
	if err := parseParams(req, &params); err != nil {
		return nil, err
	}
	id, rpcErr := parseColor(params.Color)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params.Owned) == 0 {
		return nil, &Error{Code: CodeInvalidParams, Message: "owned is required"}
	}
	owned, rpcErr := parseScripts("owned", params.Owned)
	if rpcErr != nil {
		return nil, rpcErr
	}
	change, err := hex.DecodeString(params.Change)
	if err != nil {
		return nil, &Error{Code: CodeInvalidParams, Message: "invalid change: must be hex"}
	}

	funding := make([]wallet.Coin, len(params.Funding))
	for i, f := range params.Funding {
		op, rpcErr := parseOutpoint(f.TxID, f.Index)
		if rpcErr != nil {
			return nil, rpcErr
		}
		funding[i] = wallet.Coin{Outpoint: op, Value: f.Value}
	}

	recipients := make([]wallet.Recipient, len(params.Recipients))
	for i, r := range params.Recipients {
		script, err := hex.DecodeString(r.Script)
		if err != nil || len(script) == 0 {
			return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("invalid recipients[%d].script: must be non-empty hex", i)}
		}
		recipients[i] = wallet.Recipient{Quantity: r.Quantity, PkScript: script}
	}

	built, err := s.backend.Transfer(ctx, id, owned, funding, recipients, change, params.Fee)
	if err != nil {
		if errors.Is(err, colordb.ErrUnknownColor) {
			return nil, colorError(err)
		}
		return nil, &Error{Code: CodeInvalidParams, Message: fmt.Sprintf("build transfer: %v", err)}
	}
	return &TransferResult{
		TxID:          built.Tx.Hash().String(),
		Tx:            hex.EncodeToString(built.Tx.Bytes()),
		Colored:       built.Colored,
		ColoredChange: built.ColoredChange,
		Fee:           built.Fee,
	}, nil
}
