// Package severity sorts the lines of a free-text review into critical,
// warning and suggestion findings.
package severity

import (
	"strings"
	"unicode/utf8"
)

// Input limits enforced before any classification work.
const (
	MaxChars = 10000
	MaxLines = 1000
)

// Tier identifies a severity bucket.
type Tier string

const (
	TierCritical   Tier = "critical"
	TierWarning    Tier = "warning"
	TierSuggestion Tier = "suggestion"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierCritical, TierWarning, TierSuggestion:
		return true
	}
	return false
}

// Findings holds the deduplicated review lines for each tier.
type Findings struct {
	Critical    []string `json:"critical"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// Total returns the number of findings across all tiers.
func (f Findings) Total() int {
	return len(f.Critical) + len(f.Warnings) + len(f.Suggestions)
}

// Lines returns the findings recorded for t, or nil for an unknown tier.
func (f Findings) Lines(t Tier) []string {
	switch t {
	case TierCritical:
		return f.Critical
	case TierWarning:
		return f.Warnings
	case TierSuggestion:
		return f.Suggestions
	}
	return nil
}

// Only returns a copy of f with every tier other than t emptied.
func (f Findings) Only(t Tier) Findings {
	out := Findings{Critical: []string{}, Warnings: []string{}, Suggestions: []string{}}
	switch t {
	case TierCritical:
		out.Critical = f.Critical
	case TierWarning:
		out.Warnings = f.Warnings
	case TierSuggestion:
		out.Suggestions = f.Suggestions
	}
	return out
}

type tierRule struct {
	tier     Tier
	keywords []string
}

// rules are evaluated top to bottom; the first tier with a matching keyword wins.
// Matching is plain substring containment so hostile input cannot cause
// regex backtracking.
var rules = []tierRule{
	{TierCritical, []string{"security", "vulnerability", "sql injection", "xss", "critical bug", "data loss"}},
	{TierWarning, []string{"warning", "potential issue", "might fail", "edge case", "race condition"}},
	{TierSuggestion, []string{"consider", "suggest", "recommend", "could be", "better to"}},
}

// Classify validates text and returns its findings. Lines that match no tier
// are dropped.
func Classify(text string) (Findings, error) {
	if err := Validate(text); err != nil {
		return Findings{}, err
	}

	var critical, warnings, suggestions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		switch classifyLine(line) {
		case TierCritical:
			critical = append(critical, line)
		case TierWarning:
			warnings = append(warnings, line)
		case TierSuggestion:
			suggestions = append(suggestions, line)
		}
	}

	return Findings{
		Critical:    dedupe(critical),
		Warnings:    dedupe(warnings),
		Suggestions: dedupe(suggestions),
	}, nil
}

// classifyLine returns the tier of a single line, or "" if none matches.
func classifyLine(line string) Tier {
	lower := strings.ToLower(line)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.tier
			}
		}
	}
	return ""
}

// Validate checks text against the input constraints without classifying it.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return &InputError{Constraint: ConstraintEmpty}
	}
	// A rune is at most 4 bytes, so anything past this cannot fit.
	if len(text) > MaxChars*utf8.UTFMax || utf8.RuneCountInString(text) > MaxChars {
		return &InputError{Constraint: ConstraintTooLong}
	}
	if exceedsLines(text, MaxLines) {
		return &InputError{Constraint: ConstraintTooManyLines}
	}
	return nil
}

// exceedsLines reports whether text has more than max newline-delimited lines,
// stopping as soon as the limit is crossed.
func exceedsLines(text string, max int) bool {
	lines := 1
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		lines++
		if lines > max {
			return true
		}
	}
	return false
}

// TextFrom accepts review text from untyped input such as decoded JSON.
func TextFrom(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", &InputError{Constraint: ConstraintNotString}
	}
	return s, nil
}

// normalize builds the dedupe key for a line.
func normalize(line string) string {
	return strings.Join(strings.Fields(strings.ToLower(line)), " ")
}

// dedupe collapses lines with the same normalized form, keeping the longest
// variant in the position of the first occurrence.
func dedupe(lines []string) []string {
	if len(lines) == 0 {
		return []string{}
	}
	index := make(map[string]int, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		key := normalize(line)
		if i, ok := index[key]; ok {
			if len(line) > len(out[i]) {
				out[i] = line
			}
			continue
		}
		index[key] = len(out)
		out = append(out, line)
	}
	return out
}
