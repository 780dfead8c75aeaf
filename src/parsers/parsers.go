package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/bherila/k1flow/src/models"
	"github.com/bherila/k1flow/src/normalizer"
	"github.com/bherila/k1flow/src/parsers/aiextract"
	"github.com/bherila/k1flow/src/parsers/custodial"
	"github.com/bherila/k1flow/src/parsers/delimited"
	"github.com/bherila/k1flow/src/parsers/history"
	"github.com/bherila/k1flow/src/parsers/qfx"
)

// Format identifies a recognized source format.
type Format string

const (
	FormatDelimited Format = "delimited"
	FormatQFX       Format = "qfx"
	FormatHistory   Format = "history"
	FormatAIExtract Format = "aiextract"
	FormatCustodial Format = "custodial"
)

// ParseError is fatal to a single import attempt: the input could not be
// recognized or decoded at all. Row-level problems are reported separately
// in Result.RowErrors.
type ParseError struct {
	Format Format
	Reason string
	Cause  error
}

func (e *ParseError) Error() string {
	if e.Format != "" {
		return fmt.Sprintf("parse error (%s): %s", e.Format, e.Reason)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// Result is the outcome of parsing and normalizing one input file.
type Result struct {
	Format    Format                `json:"format"`
	LineItems []models.LineItem     `json:"line_items"`
	Statement *models.StatementData `json:"statement,omitempty"`

	// RowErrors collects per-row normalization failures. Sibling rows
	// still proceed; callers report these in aggregate.
	RowErrors []string `json:"row_errors,omitempty"`
}

// rowParser converts raw input into raw rows plus, for custodial sources, a
// statement structure. Implementations are pure with respect to storage.
type rowParser func(data []byte) ([]normalizer.RawRow, *models.StatementData, error)

var byFormat = map[Format]rowParser{
	FormatDelimited: delimited.Parse,
	FormatQFX:       qfx.Parse,
	FormatHistory:   history.Parse,
	FormatAIExtract: aiextract.Parse,
	FormatCustodial: custodial.Parse,
}

// DetectFormat sniffs the source format from the filename and content shape.
// Callers must not assume which parser will run.
func DetectFormat(filename string, data []byte) (Format, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return "", &ParseError{Reason: "empty input"}
	}

	lowerName := strings.ToLower(filename)

	// JSON envelope: AI extraction output or the history screen export.
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if trimmed[0] == '{' {
			var probe struct {
				Transactions json.RawMessage `json:"transactions"`
			}
			if err := json.Unmarshal(trimmed, &probe); err == nil && probe.Transactions != nil {
				return FormatAIExtract, nil
			}
		}
		return FormatHistory, nil
	}

	upper := strings.ToUpper(string(trimmed[:min(len(trimmed), 2048)]))
	if strings.Contains(upper, "<STMTTRN>") || strings.HasPrefix(upper, "OFXHEADER") ||
		strings.HasSuffix(lowerName, ".qfx") || strings.HasSuffix(lowerName, ".ofx") {
		return FormatQFX, nil
	}

	firstLine := string(trimmed)
	if idx := strings.IndexAny(firstLine, "\r\n"); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	firstCell := strings.Trim(strings.SplitN(firstLine, ",", 2)[0], "\" ")
	if firstCell == "Statement" || firstCell == "Net Asset Value" {
		return FormatCustodial, nil
	}

	if delimited.RecognizesHeader(firstLine) {
		return FormatDelimited, nil
	}

	return "", &ParseError{Reason: fmt.Sprintf("unrecognized format (header %q)", firstLine)}
}

// Parse sniffs the format, runs the matching parser and normalizes every raw
// row. Rows that fail normalization are reported in Result.RowErrors rather
// than aborting the whole input.
func Parse(data []byte, filename string) (*Result, error) {
	format, err := DetectFormat(filename, data)
	if err != nil {
		return nil, err
	}

	parse, ok := byFormat[format]
	if !ok {
		return nil, &ParseError{Format: format, Reason: "no parser registered"}
	}

	rows, statement, err := parse(data)
	if err != nil {
		return nil, &ParseError{Format: format, Reason: err.Error(), Cause: err}
	}

	result := &Result{Format: format, Statement: statement}
	var rowErrs *multierror.Error
	for _, row := range rows {
		item, err := normalizer.Normalize(row)
		if err != nil {
			rowErrs = multierror.Append(rowErrs, err)
			continue
		}
		result.LineItems = append(result.LineItems, item)
	}
	if rowErrs != nil {
		for _, e := range rowErrs.Errors {
			result.RowErrors = append(result.RowErrors, e.Error())
		}
	}
	return result, nil
}
