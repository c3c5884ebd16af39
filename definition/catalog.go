// Package definition loads, validates, caches, and assembles workflow
// definitions from a directory of linked Markdown files.
//
// A workflow is a directory containing an index.md file and a steps/
// subdirectory. The index lists steps as Markdown links; each step file
// carries an "# Orchestrator Guidance" and a "# Client Instructions" section.
// Any file may transclude another with a {{file:relative/path}} token.
//
// The catalog caches assembled definitions keyed by workflow name and
// invalidates entries by comparing a content+path digest of the workflow's
// file tree, so a load immediately following a file change sees the change.
package definition

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/caldermoor/maestro"
)

const (
	indexFileName = "index.md"
	stepsDirName  = "steps"

	blobSeparator = "\n\n---\n\n"
)

// Catalog serves validated, assembled workflow definitions. It implements
// maestro.DefinitionSource.
type Catalog struct {
	definitionsDir string
	logger         zerolog.Logger

	mu    sync.RWMutex
	cache map[string]*maestro.Definition
}

var _ maestro.DefinitionSource = (*Catalog)(nil)

// CatalogOption configures the catalog
type CatalogOption func(*Catalog)

// WithLogger sets a custom logger for the catalog
func WithLogger(logger zerolog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// NewCatalog creates a catalog rooted at definitionsDir and eagerly attempts
// to load every immediate subdirectory as a workflow. A workflow that fails
// validation is logged and excluded from the cache; explicit Load or Validate
// calls will attempt it again on demand.
func NewCatalog(definitionsDir string, opts ...CatalogOption) *Catalog {
	defaultLogger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Logger().
		Level(zerolog.InfoLevel)

	c := &Catalog{
		definitionsDir: definitionsDir,
		logger:         defaultLogger,
		cache:          make(map[string]*maestro.Definition),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.scanAll()
	return c
}

// scanAll attempts to load every workflow found under the definitions root
func (c *Catalog) scanAll() {
	entries, err := os.ReadDir(c.definitionsDir)
	if err != nil {
		c.logger.Warn().
			Str("definitions_dir", c.definitionsDir).
			Err(err).
			Msg("Definitions directory not found")
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := c.Load(entry.Name()); err != nil {
			maestro.LogDefinitionSkipped(c.logger, entry.Name(), err)
		}
	}
}

// ListWorkflows returns the names of all workflows currently cached as valid,
// in sorted order
func (c *Catalog) ListWorkflows() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.cache))
	for name := range c.cache {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load returns the assembled definition for the named workflow. A cached
// entry whose stored checksum still matches the live directory checksum is
// returned directly; otherwise the definition is rebuilt from the files and
// the cache entry replaced wholesale.
func (c *Catalog) Load(workflowName string) (*maestro.Definition, error) {
	workflowDir := filepath.Join(c.definitionsDir, workflowName)

	c.mu.RLock()
	cached := c.cache[workflowName]
	c.mu.RUnlock()

	if cached != nil && directoryChecksum(workflowDir, c.logger, workflowName) == cached.Checksum {
		return cached, nil
	}

	def, err := c.build(workflowName, workflowDir)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[workflowName] = def
	c.mu.Unlock()

	maestro.LogDefinitionRebuilt(c.logger, workflowName, def.Checksum)
	maestro.LogDefinitionLoaded(c.logger, workflowName, def.StepOrder)
	return def, nil
}

// Validate loads the named workflow and discards the result
func (c *Catalog) Validate(workflowName string) error {
	_, err := c.Load(workflowName)
	return err
}

// build parses and assembles a workflow definition from its files
func (c *Catalog) build(workflowName, workflowDir string) (*maestro.Definition, error) {
	indexFile, err := c.validatePaths(workflowName, workflowDir)
	if err != nil {
		return nil, err
	}

	indexRaw, err := os.ReadFile(indexFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading index file %s: %v", ErrNotFound, indexFile, err)
	}
	indexText, err := resolveIncludes(string(indexRaw), workflowDir, indexFile)
	if err != nil {
		return nil, err
	}

	stepOrder, stepFiles, err := parseIndex(indexText, workflowDir, indexFile)
	if err != nil {
		return nil, err
	}

	blobParts := []string{indexText}
	steps := make(map[string]maestro.Step, len(stepOrder))

	for _, stepName := range stepOrder {
		step, err := c.parseStepFile(stepName, stepFiles[stepName])
		if err != nil {
			return nil, err
		}
		steps[stepName] = step
		blobParts = append(blobParts, fmt.Sprintf("## Step: %s\n\n%s", stepName, step.FullText))
	}

	return &maestro.Definition{
		Name:      workflowName,
		StepOrder: stepOrder,
		Steps:     steps,
		Blob:      strings.Join(blobParts, blobSeparator),
		Checksum:  directoryChecksum(workflowDir, c.logger, workflowName),
	}, nil
}

// validatePaths checks the required workflow structure: the workflow
// directory itself, its index file, and its steps subdirectory
func (c *Catalog) validatePaths(workflowName, workflowDir string) (string, error) {
	info, err := os.Stat(workflowDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: workflow directory %s", ErrNotFound, workflowDir)
	}

	indexFile := filepath.Join(workflowDir, indexFileName)
	if info, err := os.Stat(indexFile); err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: workflow index file %s", ErrNotFound, indexFile)
	}

	stepsDir := filepath.Join(workflowDir, stepsDirName)
	if info, err := os.Stat(stepsDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: workflow steps directory %s", ErrNotFound, stepsDir)
	}

	return indexFile, nil
}

// parseStepFile reads a step file, resolves its includes, and extracts the
// mandatory sections
func (c *Catalog) parseStepFile(stepName, stepFile string) (maestro.Step, error) {
	raw, err := os.ReadFile(stepFile)
	if err != nil {
		return maestro.Step{}, fmt.Errorf("%w: step file %s", ErrNotFound, stepFile)
	}

	fullText, err := resolveIncludes(string(raw), filepath.Dir(stepFile), stepFile)
	if err != nil {
		return maestro.Step{}, err
	}

	guidance, instructions, err := parseStepSections(fullText, stepFile)
	if err != nil {
		return maestro.Step{}, err
	}

	return maestro.Step{
		Name:         stepName,
		Guidance:     guidance,
		Instructions: instructions,
		FullText:     fullText,
	}, nil
}
