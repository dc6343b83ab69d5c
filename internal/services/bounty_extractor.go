package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Patterns run against lower-cased text. Every match of every pattern is a candidate.
var bountyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\$([0-9,]+(?:\.[0-9]{2})?)`),
	regexp.MustCompile(`(\d+)\s*(?:usd|dollars?)`),
	regexp.MustCompile(`bounty:?\s*\$?([0-9,]+)`),
	regexp.MustCompile(`reward:?\s*\$?([0-9,]+)`),
	regexp.MustCompile(`prize:?\s*\$?([0-9,]+)`),
}

type bountySource struct {
	tag      string
	keywords []string
}

// Checked in order; the first tag with a matching keyword wins.
var bountySources = []bountySource{
	{tag: "bountysource", keywords: []string{"bountysource", "bounty source"}},
	{tag: "gitcoin", keywords: []string{"gitcoin"}},
	{tag: "algora", keywords: []string{"algora"}},
	{tag: "console", keywords: []string{"console.dev"}},
	{tag: "devcash", keywords: []string{"devcash"}},
	{tag: "github_sponsors", keywords: []string{"github sponsors", "sponsor"}},
	{tag: "custom", keywords: []string{"bounty", "reward", "prize"}},
}

// ExtractBountyAmount returns the largest dollar figure mentioned in text, in cents.
// The heuristic over-reports on text quoting unrelated amounts; that is accepted.
func ExtractBountyAmount(text string) int64 {
	lowered := strings.ToLower(text)

	var best int64
	for _, pattern := range bountyPatterns {
		for _, match := range pattern.FindAllStringSubmatch(lowered, -1) {
			cents, ok := parseCents(match[1])
			if ok && cents > best {
				best = cents
			}
		}
	}
	return best
}

// DetermineBountySource returns the platform tag suggested by keywords in text
func DetermineBountySource(text string) (string, bool) {
	lowered := strings.ToLower(text)
	for _, source := range bountySources {
		for _, keyword := range source.keywords {
			if strings.Contains(lowered, keyword) {
				return source.tag, true
			}
		}
	}
	return "", false
}

func parseCents(raw string) (int64, bool) {
	cleaned := strings.NewReplacer(",", "", " ", "").Replace(raw)
	if cleaned == "" {
		return 0, false
	}
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	cents := math.Round(amount * 100)
	if math.IsInf(cents, 0) || math.IsNaN(cents) || cents >= math.MaxInt64 {
		return 0, false
	}
	return int64(cents), true
}

// bountyText is the text the extractor sees for an issue
func bountyText(title, body string) string {
	return title + " " + body
}
