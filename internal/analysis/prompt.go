package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// CrawlInstructions tells the crawling provider which content to prioritize.
const CrawlInstructions = "Company overview and about pages, products and pricing, " +
	"news, press releases and latest product launches, compliance documents, " +
	"security and privacy policies, terms of service, and customer reviews or " +
	"testimonials that signal sentiment."

// CapResults returns a copy of result holding at most limit pages, keeping
// the original order. A non-positive limit disables the cap.
func CapResults(result CrawlResult, limit int) CrawlResult {
	capped := result
	if limit > 0 && len(result.Results) > limit {
		capped.Results = append([]CrawlPage(nil), result.Results[:limit]...)
		return capped
	}
	capped.Results = append([]CrawlPage(nil), result.Results...)
	return capped
}

// TruncateContent cuts s to at most maxBytes bytes without splitting a
// UTF-8 sequence. A non-positive maxBytes returns s unchanged.
func TruncateContent(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// BuildPrompt embeds the serialized crawl payload and the fixed formatting
// instructions for the seven sections.
func BuildPrompt(payload CrawlResult) (string, error) {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crawl payload: %w", err)
	}
	var b strings.Builder
	b.WriteString("You are a competitive intelligence analyst. Analyze the following crawl of a company website:\n\n")
	b.Write(data)
	b.WriteString("\n\nWrite exactly seven sections, in this order, each introduced by its heading in uppercase followed by a colon:\n\n")
	b.WriteString(LabelSummary + ": what the company does.\n")
	b.WriteString(LabelDirection + ": its current strategic direction and focus.\n")
	b.WriteString(LabelCompliance + ": compliance posture and notable legal or regulatory details.\n")
	b.WriteString(LabelNewLaunches + ": recent product launches or announcements.\n")
	b.WriteString(LabelFlagshipProduct + ": the flagship product or service.\n")
	b.WriteString(LabelUniqueFindings + ": other interesting or unique findings.\n")
	b.WriteString(LabelSentimentSummary + ": customer and market sentiment signals.\n\n")
	b.WriteString("Rules: start each section on a new line with the exact heading text and a colon " +
		"(for example \"" + LabelSummary + ": ...\"), separate sections with one blank line, " +
		"write plain paragraphs, do not add any other headings, do not number the headings " +
		"and do not use bullet points or markdown.")
	return b.String(), nil
}
