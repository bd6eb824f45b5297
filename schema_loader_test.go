package xsd

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for path, content := range files {
		if err := afero.WriteFile(fs, path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", path, err)
		}
	}
}

var invoiceSchemas = map[string]string{
	"/schemas/invoice.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
    xmlns:c="urn:common" targetNamespace="urn:invoice" elementFormDefault="qualified">
  <xs:import namespace="urn:common" schemaLocation="common/types.xsd"/>
  <xs:element name="invoice">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="total" type="c:Money"/>
        <xs:element name="currency" type="c:Currency"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`,
	"/schemas/common/types.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:common">
  <xs:include schemaLocation="units.xsd"/>
  <xs:simpleType name="Money">
    <xs:restriction base="xs:decimal">
      <xs:fractionDigits value="2"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`,
	"/schemas/common/units.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:common">
  <xs:simpleType name="Currency">
    <xs:restriction base="xs:token">
      <xs:enumeration value="EUR"/>
      <xs:enumeration value="USD"/>
    </xs:restriction>
  </xs:simpleType>
</xs:schema>`,
}

func TestSchemaLoaderFollowsIncludesAndImports(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, invoiceSchemas)

	var logs bytes.Buffer
	loader := &SchemaLoader{
		Fs:     fs,
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	schema, err := loader.Load("/schemas/invoice.xsd")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if diff := cmp.Diff([]string{"urn:invoice", "urn:common"}, schema.TargetNamespaces); diff != "" {
		t.Errorf("TargetNamespaces mismatch (-want +got):\n%s", diff)
	}
	if got := strings.Count(logs.String(), "loaded schema document"); got != 3 {
		t.Errorf("logged %d loaded documents, want 3:\n%s", got, logs.String())
	}

	res := mustValidate(t, schema, `<invoice xmlns="urn:invoice"><total>1.234</total><currency>GBP</currency></invoice>`)
	want := []ErrorCode{"cvc-fractionDigits-valid", ErrEnumerationInvalid}
	if diff := cmp.Diff(want, errorCodes(res)); diff != "" {
		t.Errorf("error codes mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaLoaderIncludeCycle(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"/a.xsd": wrapSchema(`<xs:include schemaLocation="b.xsd"/>
<xs:element name="root" type="T"/>`),
		"/b.xsd": wrapSchema(`<xs:include schemaLocation="./a.xsd"/>
<xs:simpleType name="T"><xs:restriction base="xs:int"/></xs:simpleType>`),
	})

	schema, err := NewSchemaLoader(fs).Load("/a.xsd")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if res := mustValidate(t, schema, `<root>7</root>`); !res.Valid {
		t.Errorf("Validate() = %s", res.Message())
	}
}

func TestSchemaLoaderErrors(t *testing.T) {
	tests := []struct {
		name         string
		files        map[string]string
		want         string
		wantSchema   bool
		wantNotExist bool
	}{
		{
			name:         "missing document",
			files:        map[string]string{},
			want:         "failed to read schema /main.xsd",
			wantNotExist: true,
		},
		{
			name: "missing include",
			files: map[string]string{
				"/main.xsd": wrapSchema(`<xs:include schemaLocation="gone.xsd"/>`),
			},
			want:         "failed to include gone.xsd: failed to read schema /gone.xsd",
			wantNotExist: true,
		},
		{
			name: "remote location",
			files: map[string]string{
				"/main.xsd": wrapSchema(`<xs:import namespace="urn:x" schemaLocation="https://example.com/x.xsd"/>`),
			},
			want:       "remote schema location 'https://example.com/x.xsd' is not supported",
			wantSchema: true,
		},
		{
			name: "not a schema",
			files: map[string]string{
				"/main.xsd": `<schema/>`,
			},
			want:       "root element of /main.xsd is 'schema', not xs:schema",
			wantSchema: true,
		},
		{
			name: "malformed document",
			files: map[string]string{
				"/main.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">`,
			},
			want: "failed to parse schema /main.xsd",
		},
		{
			name: "error in an included document",
			files: map[string]string{
				"/main.xsd":  wrapSchema(`<xs:include schemaLocation="types.xsd"/>`),
				"/types.xsd": wrapSchema(`<xs:element name="e" type="Missing"/>`),
			},
			want:       "undefined type 'Missing' for element 'e'",
			wantSchema: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, tt.files)

			schema, err := NewSchemaLoader(fs).Load("/main.xsd")
			if err == nil {
				t.Fatal("Load() succeeded")
			}
			if schema != nil {
				t.Error("Load() returned a schema alongside the error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
			var se *SchemaError
			if got := errors.As(err, &se); got != tt.wantSchema {
				t.Errorf("errors.As(*SchemaError) = %v, want %v", got, tt.wantSchema)
			}
			if got := errors.Is(err, os.ErrNotExist); got != tt.wantNotExist {
				t.Errorf("errors.Is(os.ErrNotExist) = %v, want %v", got, tt.wantNotExist)
			}
		})
	}
}

func TestLoadSchemaBytesIgnoresLocations(t *testing.T) {
	schema := mustLoadSchema(t, wrapSchema(`<xs:include schemaLocation="does-not-exist.xsd"/>
<xs:element name="e" type="xs:string"/>`))
	if _, ok := schema.Element(QName{Local: "e"}); !ok {
		t.Error("element e not declared")
	}
}
