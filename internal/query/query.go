// Package query extracts the restricted /query_* command grammar that the
// conversational model embeds in its free-text replies. The parser is
// deliberately decoupled from the model call: its correctness is testable
// without any model in the loop.
package query

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mikhailstasyuk/medtesthelper-bot/internal/common"
	"github.com/mikhailstasyuk/medtesthelper-bot/internal/entity"
)

// Filter is the structured form of a matched query command.
type Filter struct {
	Format entity.Format
	Name   string
	Start  time.Time
	End    time.Time
}

const marker = "/query_"

// Tokens must appear in this literal order; nothing is matched
// order-independently.
var reQuery = regexp.MustCompile(
	`/query_(test|study)\s+--name\s+'([^']*)'\s+--start\s+(\d{4}-\d{2}-\d{2})\s+--end\s+(\d{4}-\d{2}-\d{2})`)

const dateLayout = "2006-01-02"

// Parse scans text for the command grammar
//
//	/query_(test|study) --name '<name>' --start <YYYY-MM-DD> --end <YYYY-MM-DD>
//
// anywhere in the input. Absence of the /query_ token is ErrNotAQuery and
// routes the text back to plain conversation; a token with a remainder
// that does not match the full grammar is ErrMalformedQuery and is never
// partially executed.
func Parse(text string) (Filter, error) {
	idx := strings.Index(text, marker)
	if idx < 0 {
		return Filter{}, common.ErrNotAQuery
	}

	m := reQuery.FindStringSubmatch(text)
	if m == nil {
		return Filter{}, malformed(fragment(text, idx))
	}

	// The pattern restricts group 1 to the two format literals.
	format := entity.Format(m[1])

	start, err := time.Parse(dateLayout, m[3])
	if err != nil {
		return Filter{}, malformed(m[3])
	}
	end, err := time.Parse(dateLayout, m[4])
	if err != nil {
		return Filter{}, malformed(m[4])
	}
	if start.After(end) {
		return Filter{}, malformed(fmt.Sprintf("start %s after end %s", m[3], m[4]))
	}

	return Filter{
		Format: format,
		Name:   strings.ToLower(strings.TrimSpace(m[2])),
		Start:  start,
		End:    end,
	}, nil
}

func malformed(frag string) error {
	return common.NewAppError("QUERY_ERROR", fmt.Sprintf("offending fragment: %q", frag), common.ErrMalformedQuery)
}

// fragment clips the text around the marker for error reporting.
func fragment(text string, idx int) string {
	frag := text[idx:]
	if len(frag) > 120 {
		frag = frag[:120] + "..."
	}
	return frag
}
