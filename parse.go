package xsd

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/agentflare-ai/go-xmldom"
)

var (
	lineInMessage   = regexp.MustCompile(`line (\d+)`)
	columnInMessage = regexp.MustCompile(`col(?:umn)? (\d+)`)
)

// ParseBytes parses an XML document held in memory.
func ParseBytes(data []byte) (*Node, error) {
	doc, err := xmldom.NewDecoderFromBytes(data).Decode()
	if err != nil {
		return nil, newParseError(err)
	}
	return documentRoot(doc)
}

// ParseReader parses an XML document from r.
func ParseReader(r io.Reader) (*Node, error) {
	doc, err := xmldom.Decode(r)
	if err != nil {
		return nil, newParseError(err)
	}
	return documentRoot(doc)
}

// ParseFile parses the XML document stored at path.
func ParseFile(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseDocument converts an already decoded go-xmldom document.
func ParseDocument(doc xmldom.Document) (*Node, error) {
	if doc == nil {
		return nil, &ParseError{Message: "nil document"}
	}
	return documentRoot(doc)
}

func documentRoot(doc xmldom.Document) (*Node, error) {
	root := doc.DocumentElement()
	if root == nil {
		return nil, &ParseError{Message: "document has no root element"}
	}
	return convertElement(root, nil), nil
}

// newParseError extracts whatever position information the decoder exposes.
func newParseError(err error) *ParseError {
	pe := &ParseError{Message: err.Error(), Err: err}

	var syntaxErr *xml.SyntaxError
	if errors.As(err, &syntaxErr) {
		pe.Message = syntaxErr.Msg
		pe.Line = syntaxErr.Line
		return pe
	}
	if m := lineInMessage.FindStringSubmatch(pe.Message); m != nil {
		pe.Line, _ = strconv.Atoi(m[1])
	}
	if m := columnInMessage.FindStringSubmatch(pe.Message); m != nil {
		pe.Column, _ = strconv.Atoi(m[1])
	}
	return pe
}
