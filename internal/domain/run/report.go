package run

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxReportLength is the chat platform's message ceiling in characters.
const MaxReportLength = 2000

const (
	columnSpacing = 4
	codeFence     = "```"
)

// Report renders the announcement: a header followed by a column-aligned
// split table in a code block. Split rows that would push the text past
// MaxReportLength are left out; the code block is always closed.
func (r *Run) Report() string {
	platform := "Console"
	if r.Emulator {
		platform = "Emulador"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Runner: %s**\nCategoria: %s\nPlataforma: %s\nPB: %s\nBPT: %s\nSOB: %s\nTentativa: %d\n%s\n",
		r.Runner, r.Category, platform, FormatClock(r.PB), FormatClock(r.BPT), FormatClock(r.SOB), r.Attempts, r.URL)
	header := b.String()

	if utf8.RuneCountInString(header) > MaxReportLength {
		return truncateRunes(header, MaxReportLength)
	}
	if len(r.Splits) == 0 {
		return header
	}

	rows := r.splitRows()
	budget := MaxReportLength - utf8.RuneCountInString(header) - 2*len(codeFence)
	if budget < 0 {
		return header
	}

	b.WriteString(codeFence)
	for _, row := range rows {
		n := utf8.RuneCountInString(row)
		if n > budget {
			break
		}
		b.WriteString(row)
		budget -= n
	}
	b.WriteString(codeFence)
	return b.String()
}

// splitRows lays out name, [delta] and time columns. Names are left-aligned,
// deltas right-aligned inside their column, times right-aligned after it.
func (r *Run) splitRows() []string {
	type cells struct{ name, delta, time string }
	all := make([]cells, len(r.Splits))
	var nameW, deltaW, timeW int
	for i, s := range r.Splits {
		c := cells{name: s.Name, delta: FormatDelta(s.Delta), time: FormatClock(s.Time)}
		nameW = max(nameW, utf8.RuneCountInString(c.name))
		deltaW = max(deltaW, utf8.RuneCountInString(c.delta))
		timeW = max(timeW, utf8.RuneCountInString(c.time))
		all[i] = c
	}

	rows := make([]string, len(all))
	for i, c := range all {
		var row strings.Builder
		row.WriteString(c.name)
		row.WriteString(pad(nameW - utf8.RuneCountInString(c.name) + columnSpacing))
		row.WriteString(pad(deltaW - utf8.RuneCountInString(c.delta)))
		row.WriteString("[" + c.delta + "]")
		row.WriteString(pad(timeW - utf8.RuneCountInString(c.time) + columnSpacing))
		row.WriteString(c.time)
		row.WriteString("\n")
		rows[i] = row.String()
	}
	return rows
}

func pad(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(" ", n)
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
