package sentiment

import (
	"regexp"
	"strconv"

	"github.com/brettboylen/tweet-listener/models"
)

const labelPattern = `POSITIVE|NEGATIVE|NEUTRAL|POSITIV[OA]|NEGATIV[OA]|NEUTR[OA]`

var (
	// "1: POSITIVE", "**2.** negative", `"3": "NEUTRAL"`, "4 - Positivo", "5) NEUTRO"
	ordinalLabelRe = regexp.MustCompile(`(?i)(?:^|[^\w.])[*"\s]*(\d{1,4})[*"\s]*(?:=>|[:.)=–-])[*"\s]*(` + labelPattern + `)\b`)
	bareLabelRe    = regexp.MustCompile(`(?i)\b(` + labelPattern + `)\b`)
)

// parseMode reports how labels were recovered from a response
type parseMode int

const (
	parseNone parseMode = iota
	parseOrdinal
	parseSequential
)

func (m parseMode) String() string {
	switch m {
	case parseOrdinal:
		return "ordinal"
	case parseSequential:
		return "sequential"
	}
	return "none"
}

// parseLabels recovers exactly n labels from a free-text response.
//
// Ordinal pairs are placed at their ordinal: the first occurrence of an ordinal
// wins and ordinals outside 1..n are dropped. When the response carries no
// ordinals at all, bare label tokens are taken in order of appearance. Either
// way, unfilled slots become NEUTRAL and surplus labels are discarded.
// recovered is the number of slots filled from the response.
func parseLabels(response string, n int) (labels []models.SentimentLabel, recovered int, mode parseMode) {
	labels = make([]models.SentimentLabel, n)
	filled := make([]bool, n)

	for _, m := range ordinalLabelRe.FindAllStringSubmatch(response, -1) {
		mode = parseOrdinal
		ordinal, err := strconv.Atoi(m[1])
		if err != nil || ordinal < 1 || ordinal > n {
			continue
		}
		if filled[ordinal-1] {
			continue
		}
		label, _ := models.ParseSentimentLabel(m[2])
		labels[ordinal-1] = label
		filled[ordinal-1] = true
		recovered++
	}

	if mode == parseNone {
		for _, m := range bareLabelRe.FindAllStringSubmatch(response, -1) {
			if recovered == n {
				break
			}
			label, _ := models.ParseSentimentLabel(m[1])
			labels[recovered] = label
			filled[recovered] = true
			recovered++
			mode = parseSequential
		}
	}

	for i := range labels {
		if !filled[i] {
			labels[i] = models.Neutral
		}
	}

	return labels, recovered, mode
}

// countLabels counts every label token in a response, used to detect surplus output
func countLabels(response string) int {
	return len(bareLabelRe.FindAllStringIndex(response, -1))
}
