package dataset

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pserrors "github.com/antonypamo/ProSavantEngine/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDataset(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

const validEquations = `{
	"hamiltonian": {"expression": "T + V", "description": "total energy"},
	"potential": {"expression": "log(1 + r)"}
}`

const validNodes = `{"nodes": [[0, 1, 1.618], [0, -1, 1.618]]}`

const validFrequencies = "name,hz\nA0,27.5\nA4,440\n"

func TestResolveBasePathExplicitWins(t *testing.T) {
	dir := writeDataset(t, map[string]string{"equations.json": validEquations})
	t.Setenv(EnvBasePath, t.TempDir())

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	assert.Equal(t, dir, r.BasePath())
}

func TestResolveBasePathFromEnv(t *testing.T) {
	dir := writeDataset(t, map[string]string{"constants.csv": "name,value\n"})
	t.Setenv(EnvBasePath, dir)

	r := NewRepository(Config{SearchPaths: []string{}, Logger: testLogger()})
	assert.Equal(t, dir, r.BasePath())
}

func TestResolveBasePathSearchRequiresMarker(t *testing.T) {
	t.Setenv(EnvBasePath, "")
	empty := t.TempDir()
	marked := writeDataset(t, map[string]string{"frequencies.csv": validFrequencies})

	r := NewRepository(Config{SearchPaths: []string{empty, marked}, Logger: testLogger()})
	assert.Equal(t, marked, r.BasePath(),
		"directories without structured files must be skipped")
}

func TestResolveBasePathNoneFound(t *testing.T) {
	t.Setenv(EnvBasePath, "")
	r := NewRepository(Config{SearchPaths: []string{}, Logger: testLogger()})
	assert.Empty(t, r.BasePath())

	s, err := r.LoadStructured()
	require.NoError(t, err)
	assert.Empty(t, s.Equations)
	assert.Empty(t, s.Nodes)
	assert.Empty(t, s.Frequencies)
	assert.Empty(t, s.Constants)
}

func TestLoadStructuredFull(t *testing.T) {
	dir := writeDataset(t, map[string]string{
		"equations.json":         validEquations,
		"icosahedron_nodes.json": validNodes,
		"frequencies.csv":        validFrequencies,
		"constants.csv":          "name,value\nphi,1.618\n",
	})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	s, err := r.LoadStructured()
	require.NoError(t, err)

	require.Len(t, s.Equations, 2)
	assert.Equal(t, "T + V", s.Equations["hamiltonian"].Expression)
	assert.Equal(t, "total energy", s.Equations["hamiltonian"].Description)

	require.Len(t, s.Nodes, 2)
	assert.InDelta(t, 1.618, s.Nodes[0][2], 1e-9)

	require.Len(t, s.Frequencies, 2)
	assert.Equal(t, "27.5", s.Frequencies[0]["hz"])
	assert.Equal(t, "A4", s.Frequencies[1]["name"])

	require.Len(t, s.Constants, 1)
	assert.Equal(t, "1.618", s.Constants[0]["value"])
}

func TestLoadStructuredPartialDataset(t *testing.T) {
	dir := writeDataset(t, map[string]string{"frequencies.csv": validFrequencies})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	s, err := r.LoadStructured()
	require.NoError(t, err)
	assert.Empty(t, s.Equations)
	assert.Len(t, s.Frequencies, 2)
}

func TestLoadStructuredRejectsInvalidEquations(t *testing.T) {
	// Definition missing the required expression field.
	dir := writeDataset(t, map[string]string{
		"equations.json": `{"broken": {"description": "no expression"}}`,
	})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	_, err := r.LoadStructured()
	require.Error(t, err)
	assert.True(t, pserrors.IsInvalid(err))
}

func TestLoadStructuredRejectsBadNodeGeometry(t *testing.T) {
	dir := writeDataset(t, map[string]string{
		"icosahedron_nodes.json": `{"nodes": [[1, 2]]}`,
	})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	_, err := r.LoadStructured()
	require.Error(t, err)
	assert.True(t, pserrors.IsInvalid(err))
}

func TestLoadStructuredRejectsMalformedJSON(t *testing.T) {
	dir := writeDataset(t, map[string]string{"equations.json": "{not json"})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	_, err := r.LoadStructured()
	require.Error(t, err)
}

func TestResolveLogPath(t *testing.T) {
	dir := writeDataset(t, map[string]string{"constants.csv": "name,value\n"})

	r := NewRepository(Config{BasePath: dir, Logger: testLogger()})
	path, err := r.ResolveLogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultLogFilename), path)
}

func TestResolveLogPathCustomFilename(t *testing.T) {
	dir := writeDataset(t, map[string]string{"constants.csv": "name,value\n"})

	r := NewRepository(Config{BasePath: dir, LogFilename: "trace.jsonl", Logger: testLogger()})
	path, err := r.ResolveLogPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "trace.jsonl"), path)
}
