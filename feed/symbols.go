package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// symbolFile is the part of a symbol description file the feed needs.
// The files may carry arbitrary extra metadata.
type symbolFile struct {
	Symbol string `json:"symbol"`
}

// DiscoverSymbols globs path/mask and reads the symbol field out of
// every matched JSON file. Files without a symbol field are skipped.
func DiscoverSymbols(path, mask string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(path, mask))
	if err != nil {
		return nil, fmt.Errorf("bad symbols mask %s: %w", mask, err)
	}

	symbols := make([]string, 0, len(matches))
	for _, match := range matches {
		data, err := os.ReadFile(match)
		if err != nil {
			return nil, fmt.Errorf("failed to read symbol file %s: %w", match, err)
		}
		var file symbolFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse symbol file %s: %w", match, err)
		}
		if file.Symbol != "" {
			symbols = append(symbols, file.Symbol)
		}
	}
	return symbols, nil
}
