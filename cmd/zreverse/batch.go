package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	reverseasm "github.com/acrajesh/reverse-asm"
)

// cmdBatch runs the pipeline over every regular file in a directory,
// one goroutine per worker, since each Analyze call is itself sequential
// and single-threaded and artifacts share no state with each other.
// The --workers goroutines cap concurrency; they drain a channel
// buffered with every file name.
func cmdBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", "", "input directory")
	outDir := fs.String("out", "", "output directory")
	window := fs.Int("window", 0, "classifier window size in bytes")
	codeThreshold := fs.Float64("code-threshold", 0, "classifier CODE threshold")
	dataThreshold := fs.Float64("data-threshold", 0, "classifier DATA threshold")
	style := fs.String("pseudocode-style", "c-like", "c-like or python-like")
	emitHex := fs.Bool("hex", false, "set Config.EmitHex (the listing hex-dumps unknown spans either way)")
	emitJSON := fs.Bool("json", false, "also write analysis.json per file")
	emitDOT := fs.Bool("dot", false, "also write callgraph.dot per file")
	workers := fs.Int("workers", 4, "worker pool size")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inDir == "" || *outDir == "" {
		return fmt.Errorf("--in and --out are required")
	}

	cfg, err := buildConfig(*window, *codeThreshold, *dataThreshold, *style, *emitHex)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(*inDir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", *inDir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	fmt.Fprintf(os.Stderr, "Batch: %d files, %d workers\n", len(names), *workers)

	jobs := make(chan string, len(names))
	for _, n := range names {
		jobs <- n
	}
	close(jobs)

	var mu sync.Mutex
	worstCode := 0

	var wg sync.WaitGroup
	for i := 0; i < *workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				code := processOne(*inDir, *outDir, name, cfg, *emitJSON, *emitDOT)
				mu.Lock()
				if code > worstCode {
					worstCode = code
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if worstCode != 0 {
		return exitCode(worstCode)
	}
	return nil
}

func processOne(inDir, outDir, name string, cfg reverseasm.Config, emitJSON, emitDOT bool) int {
	path := filepath.Join(inDir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: read %s: %v\n", path, err)
		return 2
	}

	fileOut := filepath.Join(outDir, name)
	_, code := runAnalysis(data, name, nil, cfg, fileOut, emitJSON, emitDOT)
	return code
}
