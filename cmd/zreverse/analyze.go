package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	reverseasm "github.com/acrajesh/reverse-asm"
	"github.com/acrajesh/reverse-asm/internal/output"
)

// hexList accumulates repeated --entry <hex> flags into a []uint64.
type hexList []uint64

func (h *hexList) String() string { return fmt.Sprint([]uint64(*h)) }

func (h *hexList) Set(s string) error {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("--entry %q: %w", s, err)
	}
	*h = append(*h, v)
	return nil
}

func cmdAnalyze(args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	in := fs.String("in", "", "input file")
	outDir := fs.String("out", "", "output directory")
	window := fs.Int("window", 0, "classifier window size in bytes")
	codeThreshold := fs.Float64("code-threshold", 0, "classifier CODE threshold")
	dataThreshold := fs.Float64("data-threshold", 0, "classifier DATA threshold")
	style := fs.String("pseudocode-style", "c-like", "c-like or python-like")
	emitHex := fs.Bool("hex", false, "set Config.EmitHex (the listing hex-dumps unknown spans either way)")
	emitJSON := fs.Bool("json", false, "also write analysis.json")
	emitDOT := fs.Bool("dot", false, "also write callgraph.dot")
	var entries hexList
	fs.Var(&entries, "entry", "declared entry point address (hex), repeatable")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" || *outDir == "" {
		return fmt.Errorf("--in and --out are required")
	}

	cfg, err := buildConfig(*window, *codeThreshold, *dataThreshold, *style, *emitHex)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*in)
	if err != nil {
		return fmt.Errorf("read %s: %w", *in, err)
	}

	_, code := runAnalysis(data, *in, entries, cfg, *outDir, *emitJSON, *emitDOT)
	if code != 0 {
		return exitCode(code)
	}
	return nil
}

func buildConfig(window int, codeThreshold, dataThreshold float64, style string, emitHex bool) (reverseasm.Config, error) {
	cfg := reverseasm.Config{
		DecodeWindowSize: window,
		CodeThreshold:    codeThreshold,
		DataThreshold:    dataThreshold,
		EmitHex:          emitHex,
	}
	switch style {
	case "c-like", "":
		cfg.PseudocodeStyle = reverseasm.CLike
	case "python-like":
		cfg.PseudocodeStyle = reverseasm.PythonLike
	default:
		return cfg, fmt.Errorf("--pseudocode-style: unknown style %q", style)
	}
	return cfg, nil
}

// runAnalysis runs the pipeline over one file, writes its outputs, logs
// stage progress to stderr, and returns the exit code assigned to each
// Status (success=0, partial=1, failure=2).
func runAnalysis(data []byte, name string, entries hexList, cfg reverseasm.Config, outDir string, emitJSON, emitDOT bool) (*reverseasm.AnalysisResult, int) {
	fmt.Fprintf(os.Stderr, "Ingesting %s...\n", name)
	result, err := reverseasm.Analyze(data, name, entries, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return nil, 2
	}

	fmt.Fprintf(os.Stderr, "Decoded %d instructions, %d unknown spans\n",
		len(result.Instructions), len(result.UnknownSpans))
	fmt.Fprintf(os.Stderr, "Classified %d regions\n", len(result.Regions))
	fmt.Fprintf(os.Stderr, "Built %d basic blocks, inferred %d procedures\n",
		len(result.Blocks), len(result.Procedures))

	if err := output.WriteText(outDir, "asm.txt", result.RenderAsm()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return result, 2
	}
	if err := output.WriteText(outDir, "pseudocode.txt", result.RenderPseudocode()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return result, 2
	}
	if emitJSON {
		if err := output.WriteJSON(outDir, "analysis.json", result); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return result, 2
		}
	}
	if emitDOT {
		if err := output.WriteText(outDir, "callgraph.dot", result.RenderCallGraphDOT()); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return result, 2
		}
	}

	fmt.Fprintf(os.Stderr, "Status: %s (decode_rate=%.2f)\n", result.Status, result.Statistics.DecodeRate)

	switch result.Status {
	case reverseasm.StatusSuccess:
		return result, 0
	case reverseasm.StatusPartial:
		return result, 1
	default:
		return result, 2
	}
}
