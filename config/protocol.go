package config

import "github.com/Klingon-tech/smartcolors/pkg/msbdrop"

// =============================================================================
// Protocol Rules
// These MUST match across every issuer, prover and verifier or proofs
// stop being comparable.
// =============================================================================

// MaxQuantity is the exclusive upper bound on a color quantity: values are
// 64 bits wide and MSB-drop encoding spends one bit on the colored flag and
// one on the marker.
const MaxQuantity = msbdrop.MaxQuantity

// MaxColoredOutputs is the number of outputs a sequence mask can address.
const MaxColoredOutputs = 32

// DefaultDustLimit is the smallest output value relayed by default on the
// base ledger.
const DefaultDustLimit uint64 = 546

// Transaction size limits applied to transactions built or indexed here.
const (
	MaxTxInputs   = 2500    // Max inputs per transaction
	MaxTxOutputs  = 2500    // Max outputs per transaction
	MaxScriptSize = 10_000  // Max script bytes per input or output
	MaxProofTxs   = 100_000 // Max transactions carried by one proof
)

// MaxGenesisPoints bounds the genesis points read from one issuance file.
const MaxGenesisPoints = 1 << 20
