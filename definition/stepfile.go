package definition

import (
	"regexp"
	"sort"
	"strings"
)

// Section markers recognized in step files. Matching is case-insensitive and
// tolerant of surrounding whitespace on the marker line.
var sectionMarkers = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"guidance", regexp.MustCompile(`(?mi)^[ \t]*# Orchestrator Guidance[ \t]*$`)},
	{"instructions", regexp.MustCompile(`(?mi)^[ \t]*# Client Instructions[ \t]*$`)},
}

type sectionMark struct {
	start int
	end   int
	kind  string
}

// parseStepSections extracts the orchestrator guidance and client
// instructions blocks from resolved step text. All marker occurrences are
// sorted by position; the text between one marker and the next (or end of
// file) belongs to that marker. If a marker kind appears more than once, the
// last occurrence wins, so a file can override earlier draft sections without
// deleting them.
func parseStepSections(stepText, stepFile string) (guidance, instructions string, err error) {
	var marks []sectionMark
	for _, marker := range sectionMarkers {
		for _, loc := range marker.pattern.FindAllStringIndex(stepText, -1) {
			marks = append(marks, sectionMark{start: loc[0], end: loc[1], kind: marker.kind})
		}
	}

	sort.Slice(marks, func(i, j int) bool { return marks[i].start < marks[j].start })

	sections := make(map[string]string)
	for i, mark := range marks {
		contentEnd := len(stepText)
		if i+1 < len(marks) {
			contentEnd = marks[i+1].start
		}
		sections[mark.kind] = strings.TrimSpace(stepText[mark.end:contentEnd])
	}

	guidance = sections["guidance"]
	instructions = sections["instructions"]

	if guidance == "" {
		return "", "", newParseError(stepFile, ErrMissingGuidance)
	}
	if instructions == "" {
		return "", "", newParseError(stepFile, ErrMissingInstructions)
	}

	return guidance, instructions, nil
}
