package entity

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
)

// Format tags the two record shapes a document can carry. Consumers must
// switch exhaustively on it so a third shape becomes a compile-surface
// change rather than a silent fallthrough.
type Format string

const (
	FormatTest  Format = "test"
	FormatStudy Format = "study"
)

// ParseFormat maps the wire data_format value onto the closed tag set.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatTest:
		return FormatTest, true
	case FormatStudy:
		return FormatStudy, true
	default:
		return "", false
	}
}

// TestEntry is one analyte row of a test-panel document. IsNormal is
// derived from Value and Range at construction; nil means unknown.
type TestEntry struct {
	Name       string
	Value      string
	Unit       string
	Range      string
	Commentary string
	IsNormal   *bool
}

// StudyEntry is one finding row of a study-report document.
type StudyEntry struct {
	Device         string
	Result         string
	Report         string
	Recommendation string
}

// Document is the canonical in-memory representation of a normalized
// medical record. Exactly one of TestEntries/StudyEntries is populated,
// consistent with Format.
type Document struct {
	Format          Format
	InstitutionName string
	DocumentType    string
	DocumentDate    time.Time
	// DateDefaulted marks the ingestion-date fallback taken when the
	// transformer supplied an unparsable document_date.
	DateDefaulted bool
	TestEntries   []TestEntry
	StudyEntries  []StudyEntry
}

// EntryCount returns the number of data rows regardless of format.
func (d *Document) EntryCount() int {
	switch d.Format {
	case FormatTest:
		return len(d.TestEntries)
	case FormatStudy:
		return len(d.StudyEntries)
	default:
		return 0
	}
}

const dateLayout = "2006-01-02"

// ParseDocumentDate accepts ISO-8601 YYYY-MM-DD only. Any other input
// yields the calendar date of now and defaulted=true so callers can
// observe (and log) the fallback.
func ParseDocumentDate(s string, now time.Time) (d time.Time, defaulted bool) {
	if t, err := time.Parse(dateLayout, strings.TrimSpace(s)); err == nil {
		return t, false
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
}

// Wire contract for the transformer's JSON output.
type wireDocument struct {
	DataFormat      string          `json:"data_format"`
	InstitutionName string          `json:"institution_name"`
	DocumentType    string          `json:"document_type"`
	DocumentDate    string          `json:"document_date"`
	Data            json.RawMessage `json:"data"`
}

type wireTestEntry struct {
	Name       string `json:"name"`
	Value      string `json:"value"`
	Unit       string `json:"unit"`
	Range      string `json:"range"`
	Commentary string `json:"commentary"`
}

type wireStudyEntry struct {
	Device         string `json:"device"`
	Result         string `json:"result"`
	Report         string `json:"report"`
	Recommendation string `json:"recommendation"`
}

// FromExtracted parses the transformer's JSON into a Document. The parse is
// strict: malformed JSON or a data_format outside {test, study} fails with
// ErrInvalidShape, never a partial salvage. Entry fields and document_type
// are lower-cased for stable later comparison; the institution name is a
// natural key and the date is a date, so both keep their original form.
func FromExtracted(raw []byte, now time.Time) (*Document, error) {
	var w wireDocument
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, common.NewAppError("PARSE_ERROR", "response is not valid JSON", fmt.Errorf("%w: %w", common.ErrInvalidShape, err))
	}

	format, ok := ParseFormat(w.DataFormat)
	if !ok {
		return nil, common.NewAppError("PARSE_ERROR",
			fmt.Sprintf("unknown data_format %q", w.DataFormat), common.ErrInvalidShape)
	}

	date, defaulted := ParseDocumentDate(w.DocumentDate, now)
	doc := &Document{
		Format:          format,
		InstitutionName: strings.TrimSpace(w.InstitutionName),
		DocumentType:    strings.ToLower(strings.TrimSpace(w.DocumentType)),
		DocumentDate:    date,
		DateDefaulted:   defaulted,
	}

	if len(w.Data) == 0 {
		w.Data = json.RawMessage("[]")
	}

	switch format {
	case FormatTest:
		var rows []wireTestEntry
		if err := json.Unmarshal(w.Data, &rows); err != nil {
			return nil, common.NewAppError("PARSE_ERROR", "data rows do not match test shape", fmt.Errorf("%w: %w", common.ErrInvalidShape, err))
		}
		for _, r := range rows {
			doc.TestEntries = append(doc.TestEntries, NewTestEntry(r.Name, r.Value, r.Unit, r.Range, r.Commentary))
		}
	case FormatStudy:
		var rows []wireStudyEntry
		if err := json.Unmarshal(w.Data, &rows); err != nil {
			return nil, common.NewAppError("PARSE_ERROR", "data rows do not match study shape", fmt.Errorf("%w: %w", common.ErrInvalidShape, err))
		}
		for _, r := range rows {
			doc.StudyEntries = append(doc.StudyEntries, StudyEntry{
				Device:         strings.ToLower(r.Device),
				Result:         strings.ToLower(r.Result),
				Report:         strings.ToLower(r.Report),
				Recommendation: strings.ToLower(r.Recommendation),
			})
		}
	}

	return doc, nil
}

// NewTestEntry normalizes one analyte row and derives its normality flag.
func NewTestEntry(name, value, unit, refRange, commentary string) TestEntry {
	e := TestEntry{
		Name:       strings.ToLower(name),
		Value:      strings.ToLower(value),
		Unit:       strings.ToLower(unit),
		Range:      strings.ToLower(refRange),
		Commentary: strings.ToLower(commentary),
	}
	e.IsNormal = ComputeIsNormal(e.Value, e.Range)
	return e
}

// ToWire serializes the document back into the transformer wire contract.
// FromExtracted(doc.ToWire()) reconstructs an equal document.
func (d *Document) ToWire() ([]byte, error) {
	w := wireDocument{
		DataFormat:      string(d.Format),
		InstitutionName: d.InstitutionName,
		DocumentType:    d.DocumentType,
		DocumentDate:    d.DocumentDate.Format(dateLayout),
	}

	var rows any
	switch d.Format {
	case FormatTest:
		out := make([]wireTestEntry, 0, len(d.TestEntries))
		for _, e := range d.TestEntries {
			out = append(out, wireTestEntry{Name: e.Name, Value: e.Value, Unit: e.Unit, Range: e.Range, Commentary: e.Commentary})
		}
		rows = out
	case FormatStudy:
		out := make([]wireStudyEntry, 0, len(d.StudyEntries))
		for _, e := range d.StudyEntries {
			out = append(out, wireStudyEntry{Device: e.Device, Result: e.Result, Report: e.Report, Recommendation: e.Recommendation})
		}
		rows = out
	default:
		return nil, common.NewAppError("SERIALIZE_ERROR", fmt.Sprintf("unknown format %q", d.Format), common.ErrInvalidShape)
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	w.Data = data
	return json.Marshal(w)
}
