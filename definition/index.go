package definition

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// stepLinkPattern matches one index list item: an ordered ("1.") or unordered
// ("-", "*", "+") marker followed by a Markdown link to a step file.
var stepLinkPattern = regexp.MustCompile(`^[ \t]*(\d+\.|[-*+]) [ \t]*\[([^\]]+)\]\(([^)]+\.md)\)`)

// parseIndex extracts the ordered step list from resolved index text. Order
// of appearance is the canonical step order. Step paths are resolved relative
// to the workflow directory and returned as absolute paths.
func parseIndex(indexText, workflowDir, indexFile string) ([]string, map[string]string, error) {
	var stepOrder []string
	stepFiles := make(map[string]string)

	for _, line := range strings.Split(indexText, "\n") {
		match := stepLinkPattern.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		stepName := strings.TrimSpace(match[2])
		relPath := strings.TrimSpace(match[3])
		if stepName == "" || relPath == "" {
			continue
		}

		if _, exists := stepFiles[stepName]; exists {
			return nil, nil, newParseError(indexFile,
				fmt.Errorf("%w: %q", ErrDuplicateStep, stepName))
		}

		absPath, err := filepath.Abs(filepath.Join(workflowDir, relPath))
		if err != nil {
			return nil, nil, newParseError(indexFile, fmt.Errorf("resolving step path %q: %w", relPath, err))
		}

		stepOrder = append(stepOrder, stepName)
		stepFiles[stepName] = absPath
	}

	if len(stepOrder) == 0 {
		return nil, nil, newParseError(indexFile,
			fmt.Errorf("%w: ensure steps are listed as Markdown links", ErrNoSteps))
	}

	return stepOrder, stepFiles, nil
}
