package definition

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"

	"github.com/caldermoor/maestro"
)

// directoryChecksum computes a deterministic digest over a workflow
// directory: every file's relative path and raw bytes, in sorted relative
// path order so the result is independent of directory listing order.
//
// A file that cannot be read is logged and its content omitted from the hash;
// the digest still completes. Its relative path is already hashed at that
// point, so adding or removing an unreadable file still changes the digest.
// Returns "" if the directory does not exist.
func directoryChecksum(dir string, logger zerolog.Logger, workflowName string) string {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return ""
	}

	var relPaths []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			return nil
		}
		relPaths = append(relPaths, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(relPaths)

	hasher := sha256.New()
	for _, rel := range relPaths {
		hasher.Write([]byte(rel))

		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			maestro.LogChecksumReadError(logger, workflowName, rel, err)
			continue
		}
		hasher.Write(content)
	}

	return hex.EncodeToString(hasher.Sum(nil))
}
