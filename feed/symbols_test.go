package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverSymbols(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"aapl.json":  `{"symbol": "AAPL", "exchange": "US"}`,
		"msft.json":  `{"symbol": "MSFT"}`,
		"empty.json": `{"name": "no symbol here"}`,
		"notes.txt":  `not a symbol file`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	symbols, err := DiscoverSymbols(dir, "*.json")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestDiscoverSymbolsBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))

	_, err := DiscoverSymbols(dir, "*.json")
	assert.Error(t, err)
}

func TestDiscoverSymbolsEmptyDir(t *testing.T) {
	symbols, err := DiscoverSymbols(t.TempDir(), "*.json")
	require.NoError(t, err)
	assert.Empty(t, symbols)
}
