package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResolveIncludes_NoTokens(t *testing.T) {
	resolved, err := resolveIncludes("plain text, nothing to expand", t.TempDir(), "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "plain text, nothing to expand", resolved)
}

func TestResolveIncludes_SingleToken(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.md", "shared content")

	resolved, err := resolveIncludes("before {{file:shared.md}} after", dir, "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "before shared content after", resolved)
}

func TestResolveIncludes_MultipleTokens(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "AAA")
	writeFile(t, dir, "b.md", "BBB")

	resolved, err := resolveIncludes("{{file:a.md}} then {{file:b.md}}", dir, "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "AAA then BBB", resolved)
}

func TestResolveIncludes_Nested(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))

	// Nested includes resolve relative to the file that contains them
	writeFile(t, dir, "outer.md", "outer({{file:sub/inner.md}})")
	writeFile(t, filepath.Join(dir, "sub"), "inner.md", "inner({{file:leaf.md}})")
	writeFile(t, filepath.Join(dir, "sub"), "leaf.md", "leaf")

	resolved, err := resolveIncludes("{{file:outer.md}}", dir, "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "outer(inner(leaf))", resolved)
}

func TestResolveIncludes_EmptyPathLeftInPlace(t *testing.T) {
	resolved, err := resolveIncludes("keep {{file: }} token", t.TempDir(), "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "keep {{file: }} token", resolved)
}

func TestResolveIncludes_MissingFile(t *testing.T) {
	_, err := resolveIncludes("{{file:absent.md}}", t.TempDir(), "origin.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIncludeNotFound)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.File, "absent.md")
}

func TestResolveIncludes_Cycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.md", "a -> {{file:b.md}}")
	writeFile(t, dir, "b.md", "b -> {{file:a.md}}")

	_, err := resolveIncludes("{{file:a.md}}", dir, "origin.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularInclude)
}

func TestResolveIncludes_SelfInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "self.md", "{{file:self.md}}")

	_, err := resolveIncludes("{{file:self.md}}", dir, "origin.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircularInclude)
}

func TestResolveIncludes_RepeatedSiblingsAllowed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "shared.md", "S")

	// The same file twice on one level is transclusion, not a cycle
	resolved, err := resolveIncludes("{{file:shared.md}}-{{file:shared.md}}", dir, "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "S-S", resolved)
}

func TestResolveIncludes_DepthLimit(t *testing.T) {
	dir := t.TempDir()

	// chain0 -> chain1 -> ... -> chain10; the link into depth 11 fails
	for i := 0; i <= maxIncludeDepth; i++ {
		writeFile(t, dir, fmt.Sprintf("chain%d.md", i), fmt.Sprintf("{{file:chain%d.md}}", i+1))
	}
	writeFile(t, dir, fmt.Sprintf("chain%d.md", maxIncludeDepth+1), "bottom")

	_, err := resolveIncludes("{{file:chain0.md}}", dir, "origin.md")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxIncludeDepth)
}

func TestResolveIncludes_DepthLimitBoundary(t *testing.T) {
	dir := t.TempDir()

	// Exactly maxIncludeDepth nested files resolve fine
	for i := 0; i < maxIncludeDepth-1; i++ {
		writeFile(t, dir, fmt.Sprintf("chain%d.md", i), fmt.Sprintf("{{file:chain%d.md}}", i+1))
	}
	writeFile(t, dir, fmt.Sprintf("chain%d.md", maxIncludeDepth-1), "bottom")

	resolved, err := resolveIncludes("{{file:chain0.md}}", dir, "origin.md")
	require.NoError(t, err)
	assert.Equal(t, "bottom", resolved)
}
