// Package yaml provides a YAML file-based workflow repository.
//
// Definitions are loaded from .yaml/.yml files on disk, validated, and
// cached. Primarily for development and single-binary deployments where
// workflows ship alongside the service.
package yaml

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/HarborLabs/playbook/definition"
	"github.com/HarborLabs/playbook/logger"
	"github.com/HarborLabs/playbook/persistence"
)

// Compile-time interface check
var _ persistence.WorkflowRepository = (*Repository)(nil)

// Repository loads workflow definitions from YAML files on disk.
type Repository struct {
	basePath string
	idToFile map[string]string // Explicit mappings

	mu    sync.RWMutex
	cache map[string]*definition.Workflow
}

// NewRepository creates a YAML file-based workflow repository. If idToFile
// mappings are provided they are used for lookups; otherwise the basePath
// directory is searched for a file named after the workflow ID.
func NewRepository(basePath string, idToFile map[string]string) *Repository {
	if idToFile == nil {
		idToFile = make(map[string]string)
	}
	return &Repository{
		basePath: basePath,
		idToFile: idToFile,
		cache:    make(map[string]*definition.Workflow),
	}
}

// LoadWorkflow loads and validates a workflow definition by ID.
func (r *Repository) LoadWorkflow(id string) (*definition.Workflow, error) {
	r.mu.RLock()
	cached, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return cached, nil
	}

	filePath, err := r.resolveFilePath(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var wf definition.Workflow
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	result := definition.Validate(&wf)
	if result.HasErrors() {
		logger.DefinitionRejected(wf.ID, len(result.Errors), "file", filePath)
		return nil, fmt.Errorf("%w: %s", persistence.ErrWorkflowInvalid, result.Errors[0])
	}

	r.mu.Lock()
	r.cache[id] = &wf
	r.mu.Unlock()
	return &wf, nil
}

// ListWorkflows returns the IDs of all definitions found under basePath.
func (r *Repository) ListWorkflows() ([]string, error) {
	seen := make(map[string]bool)
	ids := []string{}

	err := filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isYAMLFile(path) {
			return nil
		}

		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		var wf definition.Workflow
		if yaml.Unmarshal(data, &wf) != nil || wf.ID == "" {
			return nil
		}
		if !seen[wf.ID] {
			seen[wf.ID] = true
			ids = append(ids, wf.ID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", r.basePath, err)
	}

	return ids, nil
}

// resolveFilePath finds the file path for a workflow ID.
func (r *Repository) resolveFilePath(id string) (string, error) {
	if filePath, ok := r.idToFile[id]; ok {
		if !filepath.IsAbs(filePath) {
			return filepath.Join(r.basePath, filePath), nil
		}
		return filePath, nil
	}
	return r.searchForWorkflow(id)
}

// searchForWorkflow looks for a file named after the workflow ID.
func (r *Repository) searchForWorkflow(id string) (string, error) {
	patterns := []string{
		fmt.Sprintf("%s.yaml", id),
		fmt.Sprintf("%s.yml", id),
	}

	var foundFile string
	_ = filepath.WalkDir(r.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		for _, pattern := range patterns {
			if matched, _ := filepath.Match(pattern, filepath.Base(path)); matched {
				foundFile = path
				return filepath.SkipAll
			}
		}
		return nil
	})

	if foundFile == "" {
		return "", fmt.Errorf("%w: %s", persistence.ErrWorkflowNotFound, id)
	}
	return foundFile, nil
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
