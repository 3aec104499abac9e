package themes

import (
	"regexp"
	"strings"

	"github.com/brettboylen/tweet-listener/models"
)

var (
	ordinalRe = regexp.MustCompile(`^(\d{1,2})\s*[.)]\s*`)
	fieldRe   = regexp.MustCompile(`(?i)^(theme|topic|name|tema|nombre|explanation|explicaci[oó]n|example|ejemplo)(?:\s*\d+)?\s*[*_]*\s*[:\-–]\s*[*_]*\s*(.*)$`)
	// `"quote" - @handle`, `“quote” — @handle`, `quote (@handle)`
	attributionRe = regexp.MustCompile(`^(.*?)\s*[-–—(,]*\s*@([A-Za-z0-9_]{1,30})\)?\s*\.?$`)
)

type fieldKind int

const (
	fieldNone fieldKind = iota
	fieldName
	fieldExplanation
	fieldExample
)

func classifyField(key string) fieldKind {
	switch strings.ToLower(key) {
	case "theme", "topic", "name", "tema", "nombre":
		return fieldName
	case "explanation", "explicación", "explicacion":
		return fieldExplanation
	case "example", "ejemplo":
		return fieldExample
	}
	return fieldNone
}

// parseThemes extracts themes laid out as an ordinal, a name line, an
// explanation line and an example line with a quote and an @handle. Markdown
// decoration and Spanish field labels are tolerated. Blocks without a name are
// dropped, and so are blocks opened by a bare numbered line that never get an
// explanation or example: a plain numbered list is not a theme layout.
func parseThemes(response string) []models.Theme {
	var (
		themes   []models.Theme
		current  *models.Theme
		labelled bool
	)

	flush := func() {
		if current != nil && current.Name != "" &&
			(labelled || current.Explanation != "" || current.ExampleQuote != "") {
			themes = append(themes, *current)
		}
		current = nil
	}

	for _, raw := range strings.Split(response, "\n") {
		line := stripDecoration(raw)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}

		hasOrdinal := false
		if loc := ordinalRe.FindStringIndex(line); loc != nil {
			hasOrdinal = true
			line = stripDecoration(line[loc[1]:])
		}

		kind, value := fieldNone, line
		if m := fieldRe.FindStringSubmatch(line); m != nil {
			kind, value = classifyField(m[1]), cleanValue(m[2])
		}

		switch {
		case kind == fieldName || (hasOrdinal && kind == fieldNone):
			flush()
			current = &models.Theme{Name: cleanValue(value)}
			labelled = kind == fieldName
		case current == nil:
			// preamble before the first theme
		case kind == fieldExplanation:
			current.Explanation = value
		case kind == fieldExample:
			current.ExampleQuote, current.ExampleAuthor = splitAttribution(value)
		case current.Explanation != "" && current.ExampleQuote == "":
			// wrapped explanation
			current.Explanation += " " + cleanValue(value)
		}
	}
	flush()

	return themes
}

// stripDecoration removes markdown headings, bullets and emphasis around a line
func stripDecoration(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimLeft(s, "#>-•* \t")
	return strings.TrimSpace(s)
}

// splitAttribution separates a quoted excerpt from its trailing @handle
func splitAttribution(value string) (quote, author string) {
	if m := attributionRe.FindStringSubmatch(value); m != nil {
		return trimQuotes(m[1]), m[2]
	}
	return trimQuotes(value), ""
}

func trimQuotes(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), " -–—,")
	return strings.TrimSpace(strings.Trim(s, `"'“”«»`))
}

func cleanValue(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "*_"))
}
