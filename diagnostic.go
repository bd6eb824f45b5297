package xsd

import (
	"fmt"
	"strings"
)

// Diagnostic represents a rustc-style validation diagnostic
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Position  Position `json:"position"`
	Tag       string   `json:"tag,omitempty"`
	Attribute string   `json:"attribute,omitempty"`
	SpecRef   string   `json:"spec_ref,omitempty"`
	Hints     []string `json:"hints,omitempty"`
}

// Severity represents the severity level of a diagnostic
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Position contains source position information for a node
type Position struct {
	File   string `json:"file"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
}

// DiagnosticConverter converts validation errors to rustc-style diagnostics
type DiagnosticConverter struct {
	fileName string
}

// NewDiagnosticConverter creates a converter for errors found in fileName.
func NewDiagnosticConverter(fileName string) *DiagnosticConverter {
	return &DiagnosticConverter{fileName: fileName}
}

// Convert converts validation errors to diagnostics, keeping their order.
func (dc *DiagnosticConverter) Convert(errs []ValidationError) []Diagnostic {
	diagnostics := make([]Diagnostic, 0, len(errs))
	for _, e := range errs {
		diagnostics = append(diagnostics, dc.convertError(e))
	}
	return diagnostics
}

func (dc *DiagnosticConverter) convertError(e ValidationError) Diagnostic {
	severity := e.Severity
	if severity == "" {
		severity = SeverityError
	}
	return Diagnostic{
		Severity:  severity,
		Code:      string(e.Code),
		Message:   e.Message,
		Position:  Position{File: dc.fileName, Line: e.Line, Column: e.Column},
		Tag:       e.Element,
		Attribute: e.Attribute,
		SpecRef:   specRef(e.Code),
		Hints:     hints(e),
	}
}

// specRef returns the XML Schema Part 1 section defining a rule.
func specRef(code ErrorCode) string {
	c := string(code)
	switch {
	case strings.HasPrefix(c, "cvc-elt"):
		return "XML Schema Part 1 §3.3.4 (Element Locally Valid)"
	case strings.HasPrefix(c, "cvc-complex-type"):
		return "XML Schema Part 1 §3.4.4 (Element Locally Valid (Complex Type))"
	case strings.HasPrefix(c, "cvc-attribute"):
		return "XML Schema Part 1 §3.2.4 (Attribute Locally Valid)"
	case strings.HasPrefix(c, "cvc-id"):
		return "XML Schema Part 1 §3.3.4 (Validation Root Valid (ID/IDREF))"
	case strings.HasPrefix(c, "cvc-datatype"):
		return "XML Schema Part 2 §4.1.4 (Datatype Valid)"
	case strings.HasPrefix(c, "cvc-"):
		return "XML Schema Part 2 §4.3 (Constraining Facets)"
	}
	return ""
}

// hints suggests fixes for the common violations.
func hints(e ValidationError) []string {
	var out []string
	switch e.Code {
	case ErrUnexpectedElement:
		if len(e.Expected) > 0 {
			out = append(out, fmt.Sprintf("valid children at this point are: %s", strings.Join(e.Expected, ", ")))
		} else {
			out = append(out, fmt.Sprintf("remove <%s> or move it to a position the content model allows", e.Actual))
		}
	case ErrRequiredElementMissing:
		if len(e.Expected) > 0 {
			out = append(out, fmt.Sprintf("add <%s> at the end of <%s>", e.Expected[0], e.Element))
		}
	case ErrContentModelTooComplex:
		out = append(out, "rewrite the content model so that each child can be matched by only one particle")
	case ErrRequiredAttributeMissing:
		out = append(out, fmt.Sprintf("add the attribute: %s=\"...\"", e.Attribute))
	case ErrAttributeNotDeclared:
		out = append(out, "check the attribute name for typos; undeclared attributes are not allowed")
	case ErrEnumerationInvalid:
		if len(e.Expected) > 0 {
			out = append(out, fmt.Sprintf("valid values are: %s", strings.Join(e.Expected, ", ")))
		}
	case ErrIDRefNotFound:
		out = append(out,
			fmt.Sprintf("ensure an element in the document has the ID '%s'", e.Actual),
			"IDs are case-sensitive")
	case ErrDuplicateID:
		out = append(out, "each ID value must be unique within the document")
	case ErrElementNotDeclared:
		out = append(out, "check the root element name and its namespace against the schema")
	}
	if len(out) == 0 && len(e.Expected) > 0 {
		out = append(out, fmt.Sprintf("expected: %s", strings.Join(e.Expected, ", ")))
	}
	return out
}

// ErrorFormatter provides rustc-style error formatting
type ErrorFormatter struct {
	Color bool
}

// Format formats a diagnostic in rustc style, quoting the offending line
// of source when it is available.
func (ef *ErrorFormatter) Format(diag Diagnostic, source string) string {
	var sb strings.Builder

	severity := string(diag.Severity)
	if ef.Color {
		switch diag.Severity {
		case SeverityError:
			severity = "\033[31;1merror\033[0m"
		case SeverityWarning:
			severity = "\033[33;1mwarning\033[0m"
		case SeverityInfo:
			severity = "\033[36;1minfo\033[0m"
		}
	}

	fmt.Fprintf(&sb, "%s[%s]: %s\n", severity, diag.Code, diag.Message)
	fmt.Fprintf(&sb, " --> %s:%d:%d\n", diag.Position.File, diag.Position.Line, diag.Position.Column)

	if source != "" && diag.Position.Line > 0 {
		lines := strings.Split(source, "\n")
		if diag.Position.Line <= len(lines) {
			fmt.Fprintf(&sb, "%4d | %s\n", diag.Position.Line, strings.TrimRight(lines[diag.Position.Line-1], "\r"))
			sb.WriteString("     | ")
			if diag.Position.Column > 0 {
				sb.WriteString(strings.Repeat(" ", diag.Position.Column-1))
				if ef.Color {
					sb.WriteString("\033[31;1m^\033[0m")
				} else {
					sb.WriteString("^")
				}
				if diag.Attribute != "" {
					sb.WriteString(strings.Repeat("~", len(diag.Attribute)))
				}
			}
			sb.WriteString("\n")
		}
	}

	if len(diag.Hints) > 0 {
		sb.WriteString("     |\n")
		for _, hint := range diag.Hints {
			sb.WriteString("     = help: " + hint + "\n")
		}
	}
	if diag.SpecRef != "" {
		sb.WriteString("     = note: see " + diag.SpecRef + "\n")
	}
	return sb.String()
}
