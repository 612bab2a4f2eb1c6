// Package output writes analysis results to files: the two renderer
// text streams (assembler listing and pseudocode) and a JSON dump of
// the aggregate result.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteText writes a renderer's output (assembler listing or
// pseudocode) to name under dir, creating dir if necessary.
func WriteText(dir, name, text string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// WriteJSON writes v as indented JSON to name under dir, creating dir
// if necessary.
func WriteJSON(dir, name string, v any) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
