// Package skills discovers skill definitions on disk and renders the
// available-skills listing appended to agent system prompts.
//
// A skill is a directory containing a SKILL.md file whose YAML frontmatter
// declares at least a name and description. The registry holds an immutable
// snapshot that reloads replace atomically, so readers never observe a
// half-built map.
package skills

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Skill is one discovered skill.
type Skill struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`

	// Location is the path to the skill's directory, rendered so the model
	// can read the full instructions on demand. Optional.
	Location string `yaml:"-" json:"location,omitempty"`
}

// Registry holds the current skill snapshot.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
	logger *slog.Logger
}

// NewRegistry returns an empty registry. A nil logger falls back to
// slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{skills: map[string]Skill{}, logger: logger}
}

// Add inserts or replaces a skill by name.
func (r *Registry) Add(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.Name] = s
}

// Len returns the number of registered skills.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// List returns all skills sorted by name.
func (r *Registry) List() []Skill {
	r.mu.RLock()
	out := make([]Skill, 0, len(r.skills))
	for _, s := range r.skills {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadDir scans root for skill directories and replaces the registry
// contents with the result. Unreadable or malformed skills are logged and
// skipped.
func (r *Registry) LoadDir(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("read skills dir: %w", err)
	}

	next := map[string]Skill{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		skill, err := ParseSkillFile(filepath.Join(dir, "SKILL.md"))
		if err != nil {
			if !os.IsNotExist(err) {
				r.logger.Warn("skipping malformed skill", "dir", dir, "error", err)
			}
			continue
		}
		skill.Location = dir
		next[skill.Name] = skill
	}

	r.mu.Lock()
	r.skills = next
	r.mu.Unlock()
	r.logger.Debug("skills loaded", "root", root, "count", len(next))
	return nil
}

// ParseSkillFile reads a SKILL.md file and decodes its YAML frontmatter.
func ParseSkillFile(path string) (Skill, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the configured skills root
	if err != nil {
		return Skill{}, err
	}
	return parseFrontmatter(string(data))
}

func parseFrontmatter(content string) (Skill, error) {
	const fence = "---"
	trimmed := strings.TrimLeft(content, "\uFEFF\n\r ")
	if !strings.HasPrefix(trimmed, fence) {
		return Skill{}, fmt.Errorf("missing frontmatter fence")
	}
	rest := trimmed[len(fence):]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return Skill{}, fmt.Errorf("unterminated frontmatter")
	}

	var skill Skill
	if err := yaml.Unmarshal([]byte(rest[:end]), &skill); err != nil {
		return Skill{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	if skill.Name == "" {
		return Skill{}, fmt.Errorf("skill has no name")
	}
	if skill.Description == "" {
		return Skill{}, fmt.Errorf("skill %q has no description", skill.Name)
	}
	return skill, nil
}
