// Package prompt renders the instruction templates sent to the model.
package prompt

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template names.
const (
	Extract  = "extract"
	Digest   = "digest"
	Reminder = "reminder"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Registry parses templates by name on first use and caches them.
type Registry struct {
	sources map[string]string

	mu     sync.Mutex
	parsed map[string]*template.Template
}

// NewRegistry loads the embedded templates.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromYAML(defaultTemplates)
}

// NewRegistryFromYAML loads templates from a YAML mapping of name to body.
func NewRegistryFromYAML(data []byte) (*Registry, error) {
	sources := make(map[string]string)
	if err := yaml.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("failed to parse prompt templates: %w", err)
	}
	return &Registry{
		sources: sources,
		parsed:  make(map[string]*template.Template),
	}, nil
}

// Render executes the named template with data.
func (r *Registry) Render(name string, data any) (string, error) {
	tmpl, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %q: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}

func (r *Registry) lookup(name string) (*template.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tmpl, ok := r.parsed[name]; ok {
		return tmpl, nil
	}
	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("unknown prompt %q", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %q: %w", name, err)
	}
	r.parsed[name] = tmpl
	return tmpl, nil
}

// TaskLine is a task as shown inside a prompt.
type TaskLine struct {
	Name        string
	Description string
	Deadline    string
	Time        string
}

// ExtractData feeds the extract template.
type ExtractData struct {
	Now   string
	Tasks []TaskLine
}

// PersonData feeds the digest and reminder templates.
type PersonData struct {
	Name  string
	Tasks []TaskLine
}
