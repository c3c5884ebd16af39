package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// maxIncludeDepth bounds include nesting. Long non-repeating chains that
// evade cycle detection fail here instead of recursing without bound.
const maxIncludeDepth = 10

var includePattern = regexp.MustCompile(`\{\{file:([^}]+)\}\}`)

// includeFrame is one file being expanded on the explicit resolution stack
type includeFrame struct {
	text    string
	baseDir string
	depth   int
	chain   []string // absolute paths already visited on this branch
	matches [][]int  // include token locations, processed right to left
	next    int      // index into matches of the token being processed
}

func newIncludeFrame(text, baseDir string, depth int, chain []string) *includeFrame {
	matches := includePattern.FindAllStringSubmatchIndex(text, -1)
	return &includeFrame{
		text:    text,
		baseDir: baseDir,
		depth:   depth,
		chain:   chain,
		matches: matches,
		next:    len(matches) - 1,
	}
}

// resolveIncludes expands every {{file:relative/path}} token in text with the
// referenced file's own recursively-resolved content. Tokens are processed
// right to left so earlier match offsets stay valid after each splice. The
// resolution stack is explicit, which keeps the depth and cycle checks in one
// place and bounds stack growth.
func resolveIncludes(text, baseDir, origin string) (string, error) {
	stack := []*includeFrame{newIncludeFrame(text, baseDir, 0, []string{origin})}

	for {
		frame := stack[len(stack)-1]

		if frame.next < 0 {
			// Frame fully expanded: splice into its parent, or finish.
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return frame.text, nil
			}
			parent := stack[len(stack)-1]
			m := parent.matches[parent.next]
			parent.text = parent.text[:m[0]] + frame.text + parent.text[m[1]:]
			parent.next--
			continue
		}

		m := frame.matches[frame.next]
		rel := strings.TrimSpace(frame.text[m[2]:m[3]])
		if rel == "" {
			// Empty include path, leave the token in place
			frame.next--
			continue
		}

		includePath, err := filepath.Abs(filepath.Join(frame.baseDir, rel))
		if err != nil {
			return "", newParseError(rel, fmt.Errorf("resolving include path: %w", err))
		}

		for _, visited := range frame.chain {
			if visited == includePath {
				return "", newParseError(includePath,
					fmt.Errorf("%w: %s already visited in chain %v", ErrCircularInclude, includePath, frame.chain))
			}
		}

		if frame.depth+1 > maxIncludeDepth {
			return "", newParseError(includePath, fmt.Errorf("%w (%d)", ErrMaxIncludeDepth, maxIncludeDepth))
		}

		content, err := os.ReadFile(includePath)
		if err != nil {
			if os.IsNotExist(err) {
				return "", newParseError(includePath,
					fmt.Errorf("%w: %s (referenced in %s)", ErrIncludeNotFound, includePath, frame.chain[len(frame.chain)-1]))
			}
			return "", newParseError(includePath, fmt.Errorf("reading included file: %w", err))
		}

		chain := append(append([]string(nil), frame.chain...), includePath)
		stack = append(stack, newIncludeFrame(string(content), filepath.Dir(includePath), frame.depth+1, chain))
	}
}
