package analysis

import (
	"sort"
	"strings"
)

// Section headings emitted by the summarizer, in prompt order.
const (
	LabelSummary          = "SUMMARY"
	LabelDirection        = "DIRECTION"
	LabelCompliance       = "COMPLIANCE"
	LabelNewLaunches      = "NEW LAUNCHES"
	LabelFlagshipProduct  = "FLAGSHIP PRODUCT"
	LabelUniqueFindings   = "UNIQUE FINDINGS"
	LabelSentimentSummary = "SENTIMENT SUMMARY"
)

// Labels returns the seven section headings in the order the prompt requests them.
func Labels() []string {
	return []string{
		LabelSummary,
		LabelDirection,
		LabelCompliance,
		LabelNewLaunches,
		LabelFlagshipProduct,
		LabelUniqueFindings,
		LabelSentimentSummary,
	}
}

type headingMatch struct {
	label        string
	lineStart    int
	contentStart int
}

// ExtractSections locates each "LABEL:" heading at the start of a line and
// returns the text up to the next known heading or the end of the input.
// Labels are matched case-sensitively. Indentation, a list or heading marker
// and markdown emphasis around the heading are ignored.
// Every requested label is present in the result; a missing heading yields "".
// When a heading repeats, the first occurrence wins.
func ExtractSections(text string, labels []string) map[string]string {
	out := make(map[string]string, len(labels))
	for _, label := range labels {
		out[label] = ""
	}
	if len(labels) == 0 {
		return out
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	// Longest first so "SENTIMENT SUMMARY" never matches as a shorter label.
	ordered := append([]string(nil), labels...)
	sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i]) > len(ordered[j]) })

	matches := findHeadings(text, ordered)
	seen := make(map[string]bool, len(labels))
	for i, m := range matches {
		if seen[m.label] {
			continue
		}
		seen[m.label] = true
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1].lineStart
		}
		out[m.label] = strings.TrimSpace(text[m.contentStart:end])
	}
	return out
}

func findHeadings(text string, labels []string) []headingMatch {
	var matches []headingMatch
	lineStart := 0
	for lineStart <= len(text) {
		lineEnd := strings.IndexByte(text[lineStart:], '\n')
		if lineEnd < 0 {
			lineEnd = len(text)
		} else {
			lineEnd += lineStart
		}
		line := text[lineStart:lineEnd]
		offset := headingStart(line)
		for _, label := range labels {
			if end, ok := matchHeading(line[offset:], label); ok {
				matches = append(matches, headingMatch{
					label:        label,
					lineStart:    lineStart,
					contentStart: lineStart + offset + end,
				})
				break
			}
		}
		lineStart = lineEnd + 1
	}
	return matches
}

// headingStart skips indentation, a markdown heading or list marker
// ("## ", "1. ", "2) ", "- ", "* ", "+ ") and opening emphasis, returning the
// offset where a label may begin.
func headingStart(line string) int {
	i := skipBlank(line, 0)
	switch {
	case i < len(line) && line[i] == '#':
		j := i
		for j < len(line) && line[j] == '#' {
			j++
		}
		if j < len(line) && isBlank(line[j]) {
			i = skipBlank(line, j)
		}
	case i < len(line) && line[i] >= '0' && line[i] <= '9':
		j := i
		for j < len(line) && line[j] >= '0' && line[j] <= '9' {
			j++
		}
		if j+1 < len(line) && (line[j] == '.' || line[j] == ')') && isBlank(line[j+1]) {
			i = skipBlank(line, j+1)
		}
	case i+1 < len(line) && strings.IndexByte("-*+", line[i]) >= 0 && isBlank(line[i+1]):
		i = skipBlank(line, i+1)
	}
	return skipEmphasis(line, i)
}

// matchHeading reports whether s opens with label and a colon, allowing
// emphasis around the colon ("LABEL:", "LABEL**:", "LABEL:**"). It returns the
// offset just past the heading.
func matchHeading(s, label string) (int, bool) {
	if !strings.HasPrefix(s, label) {
		return 0, false
	}
	i := skipEmphasis(s, len(label))
	if i >= len(s) || s[i] != ':' {
		return 0, false
	}
	return skipEmphasis(s, i+1), true
}

func skipBlank(s string, i int) int {
	for i < len(s) && isBlank(s[i]) {
		i++
	}
	return i
}

func skipEmphasis(s string, i int) int {
	for i < len(s) && (s[i] == '*' || s[i] == '_') {
		i++
	}
	return i
}

func isBlank(c byte) bool { return c == ' ' || c == '\t' }

// RenderSections writes fields in the canonical template the summarizer is
// asked to follow: one "LABEL: value" block per label, separated by a blank line.
func RenderSections(fields map[string]string, labels []string) string {
	blocks := make([]string, 0, len(labels))
	for _, label := range labels {
		blocks = append(blocks, label+": "+strings.TrimSpace(fields[label]))
	}
	return strings.Join(blocks, "\n\n")
}

// SectionsFromMap maps extracted label values onto Sections.
func SectionsFromMap(m map[string]string) Sections {
	return Sections{
		Summary:          m[LabelSummary],
		Direction:        m[LabelDirection],
		Compliance:       m[LabelCompliance],
		NewLaunches:      m[LabelNewLaunches],
		FlagshipProduct:  m[LabelFlagshipProduct],
		UniqueFindings:   m[LabelUniqueFindings],
		SentimentSummary: m[LabelSentimentSummary],
	}
}

// Map returns the sections keyed by heading label.
func (s Sections) Map() map[string]string {
	return map[string]string{
		LabelSummary:          s.Summary,
		LabelDirection:        s.Direction,
		LabelCompliance:       s.Compliance,
		LabelNewLaunches:      s.NewLaunches,
		LabelFlagshipProduct:  s.FlagshipProduct,
		LabelUniqueFindings:   s.UniqueFindings,
		LabelSentimentSummary: s.SentimentSummary,
	}
}
