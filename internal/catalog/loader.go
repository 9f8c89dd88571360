package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/progress-engine/internal/models"
)

//go:embed data/*.yaml
var defaultFS embed.FS

// Loader holds the static learning catalog, one path per tool
type Loader struct {
	mu    sync.RWMutex
	tools map[string]*models.OptimizationPath
	steps map[string]map[string]struct{} // toolID -> stepID set
}

// NewLoader creates an empty catalog loader
func NewLoader() *Loader {
	return &Loader{
		tools: make(map[string]*models.OptimizationPath),
		steps: make(map[string]map[string]struct{}),
	}
}

// Default returns a loader populated with the embedded catalog
func Default() (*Loader, error) {
	l := NewLoader()
	if err := l.LoadFromFS(defaultFS, "data"); err != nil {
		return nil, err
	}
	return l, nil
}

// LoadFromDir loads every YAML path file in a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading catalog from directory", "dir", dir)
	return l.LoadFromFS(os.DirFS(dir), ".")
}

// LoadFromFS loads every YAML path file under dir of fsys
func (l *Loader) LoadFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to read catalog directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(path.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		if err := l.load(data, entry.Name()); err != nil {
			return fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		loaded++
	}

	slog.Info("catalog loaded", "tools", loaded)
	return nil
}

// LoadFromFile loads a single path from a YAML file
func (l *Loader) LoadFromFile(filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	return l.load(data, filePath)
}

func (l *Loader) load(data []byte, source string) error {
	var p models.OptimizationPath
	if err := yaml.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Use id from YAML, fall back to file name without extension
	if p.ID == "" {
		base := path.Base(source)
		p.ID = strings.TrimSuffix(base, path.Ext(base))
	}
	if p.ID == "" {
		return fmt.Errorf("tool id is required")
	}

	return l.Add(&p)
}

// Add validates and registers a path. A path with an existing ID replaces it.
func (l *Loader) Add(p *models.OptimizationPath) error {
	if p.ID == "" {
		return fmt.Errorf("tool id is required")
	}

	steps := make(map[string]struct{}, p.StepCount())
	for _, section := range p.Sections {
		for _, step := range section.Steps {
			if step.ID == "" {
				return fmt.Errorf("tool %s: step id is required (section %q)", p.ID, section.ID)
			}
			if _, dup := steps[step.ID]; dup {
				return fmt.Errorf("tool %s: duplicate step id %q", p.ID, step.ID)
			}
			steps[step.ID] = struct{}{}
		}
	}

	l.mu.Lock()
	if _, exists := l.tools[p.ID]; exists {
		slog.Warn("catalog tool redefined", "tool", p.ID)
	}
	l.tools[p.ID] = p
	l.steps[p.ID] = steps
	l.mu.Unlock()

	slog.Debug("catalog tool loaded", "tool", p.ID, "sections", len(p.Sections), "steps", len(steps))
	return nil
}

// Tools returns every path ordered by Order, then ID
func (l *Loader) Tools() []*models.OptimizationPath {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*models.OptimizationPath, 0, len(l.tools))
	for _, p := range l.tools {
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Get returns the path of a tool, or nil
func (l *Loader) Get(toolID string) *models.OptimizationPath {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tools[toolID]
}

// Has reports whether the step exists in the tool's path
func (l *Loader) Has(toolID, stepID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.steps[toolID][stepID]
	return ok
}

// Total returns the flattened step count of a tool (0 if unknown)
func (l *Loader) Total(toolID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.steps[toolID])
}

// Len returns the number of tools
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tools)
}
