package xsd

import (
	"context"
	"fmt"
	"runtime"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// FileResult is the outcome of validating one file of a batch. Err is set
// when the file could not be read or parsed; Result is nil then.
type FileResult struct {
	Path   string  `json:"path"`
	Result *Result `json:"result,omitempty"`
	Err    error   `json:"-"`
}

// BatchValidator validates many instance files against one schema.
type BatchValidator struct {
	Schema *Schema
	// Fs is the filesystem files are read from. Defaults to the OS filesystem.
	Fs afero.Fs
	// Jobs bounds the number of files validated at once. Defaults to GOMAXPROCS.
	Jobs int
}

// ValidateFiles validates every path and returns one FileResult per path,
// in the order given. A file that fails to parse does not stop the others.
// Cancelling ctx stops scheduling further files and returns ctx.Err().
func (bv *BatchValidator) ValidateFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	if bv.Schema == nil {
		return nil, ErrSchemaNotLoaded
	}
	fs := bv.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	jobs := bv.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	results := make([]FileResult, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = bv.validateFile(fs, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (bv *BatchValidator) validateFile(fs afero.Fs, path string) FileResult {
	fr := FileResult{Path: path}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		fr.Err = fmt.Errorf("failed to read %s: %w", path, err)
		return fr
	}
	root, err := ParseBytes(data)
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.Result, fr.Err = Validate(root, bv.Schema)
	return fr
}
