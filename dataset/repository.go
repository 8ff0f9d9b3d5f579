// Package dataset locates and loads the structured auxiliary data shipped
// alongside the engine: equation definitions, icosahedron node geometry, and
// the frequency/constant tables.
//
// All loads are best-effort: a missing file yields an empty value rather than
// an error, so the engine runs with whatever subset of data is present.
package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"

	"github.com/antonypamo/ProSavantEngine/errors"
)

// EnvBasePath overrides dataset discovery when set to an existing directory.
const EnvBasePath = "SAVANT_DATA_PATH"

// Marker files identifying a structured dataset directory.
var structuredMarkers = []string{
	"equations.json",
	"icosahedron_nodes.json",
	"frequencies.csv",
	"constants.csv",
}

// DefaultSearchPaths are probed, in order, when no base path is configured.
var DefaultSearchPaths = []string{
	"/var/lib/prosavant/datasets",
	"/usr/share/prosavant/datasets",
	"./data",
}

// DefaultLogFilename is the reflection log created next to the dataset.
const DefaultLogFilename = "field_log.jsonl"

// equationsSchema constrains equations.json: an object mapping equation names
// to definitions that carry at least an expression string.
const equationsSchema = `{
	"type": "object",
	"additionalProperties": {
		"type": "object",
		"properties": {
			"expression": {"type": "string"},
			"description": {"type": "string"}
		},
		"required": ["expression"]
	}
}`

// nodesSchema constrains icosahedron_nodes.json: an object whose "nodes"
// array holds 3-D coordinates.
const nodesSchema = `{
	"type": "object",
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "array",
				"items": {"type": "number"},
				"minItems": 3,
				"maxItems": 3
			}
		}
	},
	"required": ["nodes"]
}`

// Structured is the full structured dataset. Absent files leave their field
// empty.
type Structured struct {
	Equations map[string]Equation
	Nodes     [][3]float64
	// Frequencies and Constants preserve the CSV rows as column->value maps.
	Frequencies []map[string]string
	Constants   []map[string]string
}

// Equation is one named symbolic definition from equations.json.
type Equation struct {
	Expression  string `json:"expression"`
	Description string `json:"description,omitempty"`
}

// Config configures a Repository.
type Config struct {
	// BasePath points directly at a dataset directory. Takes precedence
	// over the environment and search paths, but must exist.
	BasePath string

	// SearchPaths replaces DefaultSearchPaths when non-nil.
	SearchPaths []string

	// LogFilename defaults to DefaultLogFilename.
	LogFilename string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Repository resolves a dataset directory and loads its contents.
type Repository struct {
	basePath    string
	logFilename string
	logger      *slog.Logger
}

// NewRepository discovers the dataset directory. Resolution order: explicit
// BasePath, then the SAVANT_DATA_PATH environment variable, then the search
// paths. A repository with no discovered directory is still usable; loads
// just return empty data.
func NewRepository(cfg Config) *Repository {
	if cfg.LogFilename == "" {
		cfg.LogFilename = DefaultLogFilename
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	searchPaths := cfg.SearchPaths
	if searchPaths == nil {
		searchPaths = DefaultSearchPaths
	}

	r := &Repository{
		logFilename: cfg.LogFilename,
		logger:      cfg.Logger.With("component", "dataset"),
	}
	r.basePath = resolveBasePath(cfg.BasePath, searchPaths)
	if r.basePath == "" {
		r.logger.Debug("no dataset directory found; loads will be empty")
	} else {
		r.logger.Debug("dataset directory resolved", "path", r.basePath)
	}
	return r
}

// resolveBasePath applies the discovery order, requiring each candidate to
// exist on disk.
func resolveBasePath(explicit string, searchPaths []string) string {
	if explicit != "" && dirExists(explicit) {
		return explicit
	}
	if env := os.Getenv(EnvBasePath); env != "" && dirExists(env) {
		return env
	}
	for _, p := range searchPaths {
		if dirExists(p) && hasMarker(p) {
			return p
		}
	}
	return ""
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// hasMarker reports whether path contains at least one structured data file.
func hasMarker(path string) bool {
	for _, m := range structuredMarkers {
		if _, err := os.Stat(filepath.Join(path, m)); err == nil {
			return true
		}
	}
	return false
}

// BasePath returns the resolved dataset directory, empty when none was found.
func (r *Repository) BasePath() string { return r.basePath }

// LoadStructured loads every structured file that exists. Individual files
// that are present but malformed produce an error; absent files do not.
func (r *Repository) LoadStructured() (*Structured, error) {
	s := &Structured{}

	if err := r.loadEquations(s); err != nil {
		return nil, err
	}
	if err := r.loadNodes(s); err != nil {
		return nil, err
	}

	var err error
	if s.Frequencies, err = r.loadCSV("frequencies.csv"); err != nil {
		return nil, err
	}
	if s.Constants, err = r.loadCSV("constants.csv"); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Repository) loadEquations(s *Structured) error {
	data, ok, err := r.readFile("equations.json")
	if err != nil || !ok {
		return err
	}
	if err := validateJSON(data, equationsSchema, "equations.json"); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.Equations); err != nil {
		return errors.WrapInvalid(err, "Repository", "LoadStructured", "parse equations.json")
	}
	return nil
}

func (r *Repository) loadNodes(s *Structured) error {
	data, ok, err := r.readFile("icosahedron_nodes.json")
	if err != nil || !ok {
		return err
	}
	if err := validateJSON(data, nodesSchema, "icosahedron_nodes.json"); err != nil {
		return err
	}
	var doc struct {
		Nodes [][3]float64 `json:"nodes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.WrapInvalid(err, "Repository", "LoadStructured", "parse icosahedron_nodes.json")
	}
	s.Nodes = doc.Nodes
	return nil
}

// readFile returns the file contents and whether it exists. A repository
// without a base path reports every file as absent.
func (r *Repository) readFile(name string) ([]byte, bool, error) {
	if r.basePath == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(filepath.Join(r.basePath, name))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "Repository", "LoadStructured", "read "+name)
	}
	return data, true, nil
}

// validateJSON checks data against schema before unmarshaling so malformed
// dataset files fail with a precise message instead of a zero-valued struct.
func validateJSON(data []byte, schema, name string) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return errors.WrapInvalid(err, "Repository", "LoadStructured", "validate "+name)
	}
	if !result.Valid() {
		detail := ""
		if errs := result.Errors(); len(errs) > 0 {
			detail = ": " + errs[0].String()
		}
		return errors.WrapInvalid(
			fmt.Errorf("%w: %s%s", errors.ErrInvalidData, name, detail),
			"Repository", "LoadStructured", "validate "+name)
	}
	return nil
}

// loadCSV reads a header-keyed CSV file into one map per row.
func (r *Repository) loadCSV(name string) ([]map[string]string, error) {
	data, ok, err := r.readFile(name)
	if err != nil || !ok {
		return nil, err
	}

	reader := csv.NewReader(bytes.NewReader(data))
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapInvalid(err, "Repository", "LoadStructured", "parse "+name)
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapInvalid(err, "Repository", "LoadStructured", "parse "+name)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ResolveLogPath returns a writable path for the reflection log, creating the
// directory when needed. Falls back to the user cache directory when no
// dataset directory was discovered.
func (r *Repository) ResolveLogPath() (string, error) {
	dir := r.basePath
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return "", errors.Wrap(err, "Repository", "ResolveLogPath", "locate cache directory")
		}
		dir = filepath.Join(cache, "prosavant")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrap(err, "Repository", "ResolveLogPath", "create log directory")
	}
	return filepath.Join(dir, r.logFilename), nil
}
