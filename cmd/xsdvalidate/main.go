// Command xsdvalidate validates XML documents against an XSD schema.
//
//	xsdvalidate [flags] <xml-file> <xsd-file>
//	xsdvalidate --schema <xsd-file> <xml-file>...
//
// It exits 0 when every document is valid, 1 when a document has
// violations and 2 on usage, parse or schema errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	xsd "github.com/agentflare-ai/go-xsd-validate"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitFailure = 2
)

// config is the optional YAML configuration file. Flags given on the
// command line take precedence.
type config struct {
	Schema    string `yaml:"schema"`
	Format    string `yaml:"format"`
	Color     bool   `yaml:"color"`
	Jobs      int    `yaml:"jobs"`
	CacheSize int    `yaml:"cache_size"`
}

func main() {
	os.Exit(runWithArgs(context.Background(), os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr))
}

func runWithArgs(ctx context.Context, args []string, fs afero.Fs, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("xsdvalidate", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	cfg := config{Format: "text"}
	configPath := flags.StringP("config", "c", "", "path to a YAML configuration file")
	schemaPath := flags.StringP("schema", "s", "", "path to the XSD schema; all arguments are then XML files")
	format := flags.StringP("format", "f", cfg.Format, "output format: text, pretty or json")
	color := flags.Bool("color", false, "colorize pretty output")
	jobs := flags.IntP("jobs", "j", 0, "number of documents validated concurrently (0 = GOMAXPROCS)")
	cacheSize := flags.Int("cache-size", xsd.DefaultCacheSize, "number of compiled schemas kept in memory")
	verbose := flags.BoolP("verbose", "v", false, "log schema loading at debug level")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: xsdvalidate [flags] <xml-file> <xsd-file>\n")
		fmt.Fprintf(stderr, "       xsdvalidate --schema <xsd-file> <xml-file>...\n\nFlags:\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitValid
		}
		return exitFailure
	}

	if *configPath != "" {
		if err := readConfig(fs, *configPath, &cfg); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitFailure
		}
	}
	if flags.Changed("schema") {
		cfg.Schema = *schemaPath
	}
	if flags.Changed("format") {
		cfg.Format = *format
	}
	if flags.Changed("color") {
		cfg.Color = *color
	}
	if flags.Changed("jobs") {
		cfg.Jobs = *jobs
	}
	if flags.Changed("cache-size") || cfg.CacheSize == 0 {
		cfg.CacheSize = *cacheSize
	}

	switch cfg.Format {
	case "text", "pretty", "json":
	default:
		fmt.Fprintf(stderr, "error: unknown format %q\n", cfg.Format)
		return exitFailure
	}

	xmlPaths := flags.Args()
	if cfg.Schema == "" {
		if len(xmlPaths) != 2 {
			flags.Usage()
			return exitFailure
		}
		cfg.Schema, xmlPaths = xmlPaths[1], xmlPaths[:1]
	}
	if len(xmlPaths) == 0 {
		flags.Usage()
		return exitFailure
	}

	for _, p := range xmlPaths {
		if !exists(fs, p) {
			fmt.Fprintf(stderr, "XML file not found: %s\n", p)
			return exitFailure
		}
	}
	if !exists(fs, cfg.Schema) {
		fmt.Fprintf(stderr, "XSD file not found: %s\n", cfg.Schema)
		return exitFailure
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	cache := xsd.NewSchemaCacheWithLoader(cfg.CacheSize, &xsd.SchemaLoader{Fs: fs, Logger: logger})
	schema, err := cache.Get(cfg.Schema)
	if err != nil {
		fmt.Fprintf(stderr, "Invalid XSD Schema: %v\n", err)
		return exitFailure
	}

	bv := &xsd.BatchValidator{Schema: schema, Fs: fs, Jobs: cfg.Jobs}
	results, err := bv.ValidateFiles(ctx, xmlPaths)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}

	code := exitValid
	for _, r := range results {
		switch {
		case r.Err != nil:
			code = exitFailure
		case !r.Result.Valid && code == exitValid:
			code = exitInvalid
		}
	}

	switch cfg.Format {
	case "json":
		err = writeJSON(stdout, results)
	case "pretty":
		err = writePretty(fs, stdout, results, cfg.Color)
	default:
		err = writeText(stdout, results)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFailure
	}
	return code
}

func readConfig(fs afero.Fs, path string, cfg *config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func exists(fs afero.Fs, path string) bool {
	info, err := fs.Stat(path)
	return err == nil && !info.IsDir()
}

// writeText prints each result in the "Line L, Column C: message" format.
// File names are added when more than one document was validated.
func writeText(w io.Writer, results []xsd.FileResult) error {
	for _, r := range results {
		var msg string
		if r.Err != nil {
			msg = "Invalid XML: " + r.Err.Error()
		} else {
			msg = r.Result.Message()
		}
		if len(results) > 1 {
			msg = r.Path + ":\n" + indent(msg)
		}
		if _, err := fmt.Fprintln(w, msg); err != nil {
			return err
		}
	}
	return nil
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

func writePretty(fs afero.Fs, w io.Writer, results []xsd.FileResult, color bool) error {
	formatter := &xsd.ErrorFormatter{Color: color}
	for _, r := range results {
		if r.Err != nil {
			if _, err := fmt.Fprintf(w, "Invalid XML: %v\n", r.Err); err != nil {
				return err
			}
			continue
		}
		if r.Result.Valid {
			if _, err := fmt.Fprintf(w, "%s: %s\n", r.Path, r.Result.Message()); err != nil {
				return err
			}
			continue
		}
		source, _ := afero.ReadFile(fs, r.Path)
		diagnostics := xsd.NewDiagnosticConverter(r.Path).Convert(r.Result.Errors)
		if _, err := fmt.Fprintf(w, "Found %d validation issues in %s:\n\n", len(diagnostics), r.Path); err != nil {
			return err
		}
		for _, d := range diagnostics {
			if _, err := fmt.Fprintln(w, formatter.Format(d, string(source))); err != nil {
				return err
			}
		}
	}
	return nil
}

// report is the JSON shape of one validated document.
type report struct {
	Path   string                `json:"path"`
	Valid  bool                  `json:"valid"`
	Errors []xsd.ValidationError `json:"errors"`
	Error  string                `json:"error,omitempty"`
}

func writeJSON(w io.Writer, results []xsd.FileResult) error {
	reports := make([]report, 0, len(results))
	for _, r := range results {
		rep := report{Path: r.Path, Errors: []xsd.ValidationError{}}
		if r.Err != nil {
			rep.Error = r.Err.Error()
		} else {
			rep.Valid = r.Result.Valid
			rep.Errors = r.Result.Errors
		}
		reports = append(reports, rep)
	}
	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
