// smartcolors-cli is an offline tool for color issuers and holders: it
// builds issuance files, encodes output values and verifies color proofs.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Klingon-tech/smartcolors/internal/colordef"
	"github.com/Klingon-tech/smartcolors/internal/proof"
	"github.com/Klingon-tech/smartcolors/pkg/msbdrop"
	"github.com/Klingon-tech/smartcolors/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "issue":
		cmdIssue(args)
	case "supersede":
		cmdSupersede(args)
	case "show":
		cmdShow(args)
	case "verify":
		cmdVerify(args)
	case "encode":
		cmdEncode(args)
	case "decode":
		cmdDecode(args)
	case "help", "--help", "-h":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: smartcolors-cli <command> [flags]

Commands:
  issue       Build an issuance file from genesis points
  supersede   Write the next version of an issuance with a new point set
  show        Print an issuance, definition or proof file
  verify      Verify a proof file against a definition
  encode      Encode a color quantity as an output value
  decode      Decode an output value

Examples:
  smartcolors-cli issue --issuer=<hex> --out=gold.issuance <txid>:0=1000 <txid>:1=5
  smartcolors-cli supersede --in=gold.issuance --out=gold-v1.issuance <txid>:0=1000
  smartcolors-cli verify --def=gold.issuance target.colorproof
  smartcolors-cli encode --min=546 600
  smartcolors-cli decode 3249
`)
}

// ── issue ───────────────────────────────────────────────────────────

// parsePoints parses "txid:n=quantity" arguments.
func parsePoints(args []string) ([]colordef.GenesisPoint, error) {
	if len(args) == 0 {
		return nil, errors.New("at least one genesis point is required")
	}
	points := make([]colordef.GenesisPoint, 0, len(args))
	for _, arg := range args {
		opStr, qtyStr, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("genesis point %q: expected txid:n=quantity", arg)
		}
		op, err := types.ParseOutpoint(opStr)
		if err != nil {
			return nil, fmt.Errorf("genesis point %q: %w", arg, err)
		}
		qty, err := strconv.ParseUint(qtyStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("genesis point %q: quantity: %w", arg, err)
		}
		points = append(points, colordef.GenesisPoint{Outpoint: op, Quantity: qty})
	}
	return points, nil
}

func cmdIssue(args []string) {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	colorHex := fs.String("color", "", "Color id (hex); derived from --issuer when empty")
	issuerHex := fs.String("issuer", "", "Issuer public data (hex) used to derive the color id")
	metadata := fs.String("metadata", "", "Issuer metadata")
	out := fs.String("out", "", "Output issuance file")
	fs.Parse(args)

	if *out == "" {
		fatal("Usage: smartcolors-cli issue [--color=<hex> | --issuer=<hex>] [--metadata=<text>] --out=<file> <txid:n=qty>...")
	}
	points, err := parsePoints(fs.Args())
	if err != nil {
		fatal("%v", err)
	}

	var color types.ColorID
	switch {
	case *colorHex != "":
		color, err = types.HexToColorID(*colorHex)
		if err != nil {
			fatal("invalid color id: %v", err)
		}
	case *issuerHex != "":
		issuer, err := hex.DecodeString(*issuerHex)
		if err != nil {
			fatal("invalid issuer: %v", err)
		}
		color = colordef.DeriveColorID(issuer, points[0].Outpoint)
	default:
		fatal("either --color or --issuer is required")
	}

	is, _, err := colordef.NewIssuance(color, 0, []byte(*metadata), points)
	if err != nil {
		fatal("build issuance: %v", err)
	}
	if err := is.WriteFile(*out); err != nil {
		fatal("write %s: %v", *out, err)
	}
	printIssuance(is)
}

func cmdSupersede(args []string) {
	fs := flag.NewFlagSet("supersede", flag.ExitOnError)
	in := fs.String("in", "", "Current issuance file")
	out := fs.String("out", "", "Output issuance file")
	fs.Parse(args)

	if *in == "" || *out == "" {
		fatal("Usage: smartcolors-cli supersede --in=<file> --out=<file> <txid:n=qty>...")
	}
	prev, err := colordef.ReadIssuanceFile(*in)
	if err != nil {
		fatal("read %s: %v", *in, err)
	}
	points, err := parsePoints(fs.Args())
	if err != nil {
		fatal("%v", err)
	}
	tree, err := colordef.BuildTree(points)
	if err != nil {
		fatal("build tree: %v", err)
	}
	def, err := prev.Definition.Supersede(tree.Root())
	if err != nil {
		fatal("supersede: %v", err)
	}
	is := &colordef.Issuance{Definition: def, Points: points}
	if err := is.WriteFile(*out); err != nil {
		fatal("write %s: %v", *out, err)
	}
	printIssuance(is)
}

func printIssuance(is *colordef.Issuance) {
	printDefinition(is.Definition)
	fmt.Printf("Points:   %d\n", len(is.Points))
	for _, p := range is.Points {
		fmt.Printf("  %s = %d\n", p.Outpoint, p.Quantity)
	}
}

func printDefinition(def *colordef.Definition) {
	fmt.Printf("Color:    %s\n", def.ColorID)
	fmt.Printf("Version:  %d\n", def.Version)
	fmt.Printf("Root:     %s\n", def.Root)
	fmt.Printf("Hash:     %s\n", def.Hash())
	if len(def.Metadata) > 0 {
		fmt.Printf("Metadata: %q\n", def.Metadata)
	}
}

// ── show / verify ───────────────────────────────────────────────────

// loadDefinition reads either an issuance file or a bare definition file.
func loadDefinition(path string) (*colordef.Definition, error) {
	is, err := colordef.ReadIssuanceFile(path)
	if err == nil {
		return is.Definition, nil
	}
	def, derr := colordef.ReadFile(path)
	if derr != nil {
		return nil, fmt.Errorf("%s is neither an issuance (%v) nor a definition (%v)", path, err, derr)
	}
	return def, nil
}

func readProof(path string) (*proof.Proof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return proof.UnmarshalFile(data)
}

func cmdShow(args []string) {
	if len(args) != 1 {
		fatal("Usage: smartcolors-cli show <file>")
	}
	path := args[0]
	if is, err := colordef.ReadIssuanceFile(path); err == nil {
		printIssuance(is)
		return
	}
	if def, err := colordef.ReadFile(path); err == nil {
		printDefinition(def)
		return
	}
	p, err := readProof(path)
	if err != nil {
		fatal("%s: unrecognized file: %v", path, err)
	}
	fmt.Printf("Color:    %s\n", p.ColorID)
	fmt.Printf("Version:  %d\n", p.Version)
	fmt.Printf("Genesis:  %s\n", p.Genesis)
	fmt.Printf("Target:   %s\n", p.Target)
	fmt.Printf("Txs:      %d\n", len(p.Txs))
	for i, t := range p.Txs {
		fmt.Printf("  %d: %s\n", i, t.Hash())
	}
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	defPath := fs.String("def", "", "Issuance or definition file of the color")
	fs.Parse(args)

	if *defPath == "" || fs.NArg() != 1 {
		fatal("Usage: smartcolors-cli verify --def=<file> <proof-file>")
	}
	def, err := loadDefinition(*defPath)
	if err != nil {
		fatal("%v", err)
	}
	p, err := readProof(fs.Arg(0))
	if err != nil {
		fatal("read proof: %v", err)
	}
	qty, err := p.VerifyDefinition(context.Background(), def)
	if err != nil {
		fatal("proof rejected: %v", err)
	}
	fmt.Printf("Valid:    %s holds %d of %s\n", p.Target, qty, p.ColorID)
}

// ── encode / decode ─────────────────────────────────────────────────

func cmdEncode(args []string) {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	floor := fs.Uint64("min", 0, "Minimum output value (dust limit)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fatal("Usage: smartcolors-cli encode [--min=<value>] <quantity>")
	}
	qty, err := strconv.ParseUint(fs.Arg(0), 10, 64)
	if err != nil {
		fatal("invalid quantity: %v", err)
	}
	v, err := msbdrop.EncodeAbove(qty, *floor)
	if err != nil {
		fatal("%v", err)
	}
	fmt.Println(v)
}

func cmdDecode(args []string) {
	if len(args) != 1 {
		fatal("Usage: smartcolors-cli decode <value>")
	}
	v, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		fatal("invalid value: %v", err)
	}
	fmt.Println(msbdrop.Decode(v))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
