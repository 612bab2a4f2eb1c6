package main

import (
	"errors"
	"fmt"
	"os"
)

// exitCode lets a subcommand request a specific process exit code (the
// analyze command maps Status success/partial/failure to 0/1/2) without
// short-circuiting output flushing via os.Exit itself.
type exitCode int

func (e exitCode) Error() string { return fmt.Sprintf("exit %d", int(e)) }

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "analyze":
		err = cmdAnalyze(os.Args[2:])
	case "batch":
		err = cmdBatch(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	var code exitCode
	if errors.As(err, &code) {
		os.Exit(int(code))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `zreverse — z/Architecture binary recovery toolkit

Usage:
  zreverse analyze --in <file> --out <dir>    Analyze one load module or program object
  zreverse batch   --in <dir>  --out <dir>    Analyze every file in a directory

Flags:
  --in <path>              Input file (analyze) or directory (batch)
  --out <dir>              Output directory
  --entry <hex>             Declared entry point address, repeatable
  --window <n>              Classifier window size in bytes (default 64)
  --code-threshold <f>       Classifier CODE threshold (default 0.70)
  --data-threshold <f>       Classifier DATA threshold (default 0.30)
  --pseudocode-style <s>     c-like (default) or python-like
  --hex                      Set Config.EmitHex (unknown spans are hex-dumped either way)
  --json                     Also write analysis.json
  --dot                      Also write callgraph.dot
  --workers <n>              Batch worker pool size (default 4)
`)
}
