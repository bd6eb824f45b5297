package xsd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"go.uber.org/goleak"
)

func TestBatchValidatorValidateFiles(t *testing.T) {
	defer goleak.VerifyNone(t)

	schema := mustLoadSchema(t, personSchema)
	fs := afero.NewMemMapFs()
	var paths []string
	for i := 0; i < 20; i++ {
		path := fmt.Sprintf("/in/person-%02d.xml", i)
		age := i
		if i%5 == 0 {
			age = -i - 1
		}
		writeFiles(t, fs, map[string]string{
			path: fmt.Sprintf(`<person age="%d"/>`, age),
		})
		paths = append(paths, path)
	}
	writeFiles(t, fs, map[string]string{"/in/broken.xml": `<person age="1">`})
	paths = append(paths, "/in/broken.xml", "/in/missing.xml")

	bv := &BatchValidator{Schema: schema, Fs: fs, Jobs: 3}
	results, err := bv.ValidateFiles(context.Background(), paths)
	if err != nil {
		t.Fatalf("ValidateFiles() error = %v", err)
	}

	var got []string
	for i, r := range results {
		if r.Path != paths[i] {
			t.Errorf("results[%d].Path = %s, want %s", i, r.Path, paths[i])
		}
		switch {
		case r.Err != nil:
			got = append(got, "error")
		case r.Result.Valid:
			got = append(got, "valid")
		default:
			got = append(got, "invalid")
		}
	}
	var want []string
	for i := 0; i < 20; i++ {
		if i%5 == 0 {
			want = append(want, "invalid")
		} else {
			want = append(want, "valid")
		}
	}
	want = append(want, "error", "error")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}

	var pe *ParseError
	if !errors.As(results[20].Err, &pe) {
		t.Errorf("broken.xml error = %v, want *ParseError", results[20].Err)
	}
	if !errors.Is(results[21].Err, os.ErrNotExist) {
		t.Errorf("missing.xml error = %v, want os.ErrNotExist", results[21].Err)
	}
}

func TestBatchValidatorErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"/a.xml": `<person/>`})

	if _, err := (&BatchValidator{Fs: fs}).ValidateFiles(context.Background(), []string{"/a.xml"}); !errors.Is(err, ErrSchemaNotLoaded) {
		t.Errorf("ValidateFiles() without a schema error = %v, want ErrSchemaNotLoaded", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bv := &BatchValidator{Schema: mustLoadSchema(t, personSchema), Fs: fs}
	if _, err := bv.ValidateFiles(ctx, []string{"/a.xml"}); !errors.Is(err, context.Canceled) {
		t.Errorf("ValidateFiles() with a cancelled context error = %v, want context.Canceled", err)
	}

	results, err := bv.ValidateFiles(context.Background(), nil)
	if err != nil || len(results) != 0 {
		t.Errorf("ValidateFiles(nil) = %v, %v", results, err)
	}
}
