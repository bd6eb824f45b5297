package xsd

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// SchemaLoader loads a schema document together with every local document
// it brings in through xs:include and xs:import, and compiles them into a
// single Schema. Remote locations are rejected.
type SchemaLoader struct {
	// Fs is the filesystem documents are read from. Defaults to the OS filesystem.
	Fs afero.Fs
	// Logger receives debug records for every document loaded.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// NewSchemaLoader creates a loader reading from fs.
func NewSchemaLoader(fs afero.Fs) *SchemaLoader {
	return &SchemaLoader{Fs: fs}
}

// Load reads the schema at location and the documents it includes or
// imports, then builds the combined schema. Each document is read once even
// when several documents refer to it, and include cycles end at the first
// repetition.
func (sl *SchemaLoader) Load(location string) (*Schema, error) {
	fs := sl.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	logger := sl.Logger
	if logger == nil {
		logger = slog.Default()
	}

	l := &schemaLoad{fs: fs, logger: logger, seen: make(map[string]bool)}
	if err := l.load(filepath.Clean(location)); err != nil {
		return nil, err
	}
	return Build(l.docs...)
}

// schemaLoad is the state of one Load call.
type schemaLoad struct {
	fs     afero.Fs
	logger *slog.Logger
	seen   map[string]bool
	docs   []*Node
}

func (l *schemaLoad) load(location string) error {
	if l.seen[location] {
		return nil
	}
	l.seen[location] = true

	data, err := afero.ReadFile(l.fs, location)
	if err != nil {
		return fmt.Errorf("failed to read schema %s: %w", location, err)
	}
	root, err := ParseBytes(data)
	if err != nil {
		return fmt.Errorf("failed to parse schema %s: %w", location, err)
	}
	if !isXSD(root, "schema") {
		return &SchemaError{
			Message: fmt.Sprintf("root element of %s is '%s', not xs:schema", location, root.Name.Local),
			Line:    root.Line,
			Column:  root.Column,
		}
	}
	l.logger.Debug("loaded schema document", "location", location, "targetNamespace", root.AttrValue("targetNamespace"))
	l.docs = append(l.docs, root)

	for _, child := range xsdChildren(root) {
		if !isXSD(child, "include") && !isXSD(child, "import") {
			continue
		}
		ref := strings.TrimSpace(child.AttrValue("schemaLocation"))
		if ref == "" {
			// An import without a location names a namespace whose
			// components must come from elsewhere.
			continue
		}
		if isRemoteLocation(ref) {
			return &SchemaError{
				Message: fmt.Sprintf("remote schema location '%s' is not supported", ref),
				Line:    child.Line,
				Column:  child.Column,
			}
		}
		if !filepath.IsAbs(ref) {
			ref = filepath.Join(filepath.Dir(location), ref)
		}
		if err := l.load(filepath.Clean(ref)); err != nil {
			return fmt.Errorf("failed to %s %s: %w", child.Name.Local, child.AttrValue("schemaLocation"), err)
		}
	}
	return nil
}

func isRemoteLocation(location string) bool {
	return strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://")
}

// LoadSchemaBytes builds a schema from a single XSD document held in memory.
// xs:include and xs:import locations are not followed.
func LoadSchemaBytes(data []byte) (*Schema, error) {
	root, err := ParseBytes(data)
	if err != nil {
		return nil, err
	}
	return Build(root)
}

// LoadSchemaFile loads the schema at path from the OS filesystem,
// following local includes and imports.
func LoadSchemaFile(path string) (*Schema, error) {
	return NewSchemaLoader(afero.NewOsFs()).Load(path)
}
