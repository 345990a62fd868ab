package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk routes file. Routes may be written either as a mapping
// (prefix: owner/repo, kept in document order) or as a list of
// {prefix, repo} entries.
type File struct {
	Routes      []RouteSpec
	TargetRepos []string
}

type fileDoc struct {
	Routes      yaml.Node `yaml:"routes"`
	TargetRepos []string  `yaml:"target_repos"`
}

// LoadFile reads a routes file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routes file %s: %w", path, err)
	}
	return ParseFile(data)
}

// ParseFile parses routes file content.
func ParseFile(data []byte) (*File, error) {
	var doc fileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse routes file: %w", err)
	}

	f := &File{TargetRepos: doc.TargetRepos}
	switch doc.Routes.Kind {
	case 0:
		// no routes key
	case yaml.MappingNode:
		// Content alternates key, value.
		for i := 0; i+1 < len(doc.Routes.Content); i += 2 {
			k, v := doc.Routes.Content[i], doc.Routes.Content[i+1]
			if v.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("routes file line %d: route %q must map to owner/repo", v.Line, k.Value)
			}
			f.Routes = append(f.Routes, RouteSpec{Prefix: k.Value, Repo: v.Value})
		}
	case yaml.SequenceNode:
		var specs []RouteSpec
		if err := doc.Routes.Decode(&specs); err != nil {
			return nil, fmt.Errorf("failed to parse routes list: %w", err)
		}
		f.Routes = specs
	default:
		return nil, fmt.Errorf("routes file line %d: routes must be a mapping or a list", doc.Routes.Line)
	}
	return f, nil
}
