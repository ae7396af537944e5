package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// IsYAML reports whether path names a YAML document
func IsYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadProject reads, validates and decodes a project file
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}
	p, err := ParseProject(data, IsYAML(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProject decodes a project document
func ParseProject(data []byte, isYAML bool) (*Project, error) {
	doc, err := normalize(data, isYAML)
	if err != nil {
		return nil, err
	}
	if err := Validate(doc, ProjectSchema); err != nil {
		return nil, err
	}

	var p Project
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("failed to decode project: %w", err)
	}
	EnsureKeys(&p)
	return &p, nil
}

// LoadEnvironment reads a standalone environment file
func LoadEnvironment(path string) (*Environment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	doc, err := normalize(data, IsYAML(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(doc, EnvironmentSchema); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var e Environment
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}
	if e.Key == "" {
		e.Key = uuid.NewString()
	}
	return &e, nil
}

// SaveProject writes p as JSON, or YAML when path has a YAML extension
func SaveProject(path string, p *Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if IsYAML(path) {
		var doc any
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if data, err = yaml.Marshal(doc); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// normalize turns a YAML or JSON document into JSON bytes
func normalize(data []byte, isYAML bool) ([]byte, error) {
	if !isYAML {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("unsupported YAML document: %w", err)
	}
	return out, nil
}

// EnsureKeys assigns a random key to every document of p missing one
func EnsureKeys(p *Project) {
	if p.Key == "" {
		p.Key = uuid.NewString()
	}
	ensureEnvironmentKeys(p.Environments)
	for _, c := range p.Certificates {
		if c.Key == "" {
			c.Key = uuid.NewString()
		}
	}
	ensureItemKeys(p.Items)
}

func ensureItemKeys(items []*Item) {
	for _, item := range items {
		switch {
		case item.Folder != nil:
			if item.Folder.Key == "" {
				item.Folder.Key = uuid.NewString()
			}
			ensureEnvironmentKeys(item.Folder.Environments)
			ensureItemKeys(item.Folder.Items)
		case item.Request != nil:
			if item.Request.Key == "" {
				item.Request.Key = uuid.NewString()
			}
		}
	}
}

func ensureEnvironmentKeys(envs []*Environment) {
	for _, e := range envs {
		if e.Key == "" {
			e.Key = uuid.NewString()
		}
	}
}
