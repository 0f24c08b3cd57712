package graph

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the serializable form of a graph, suitable for JSON and
// YAML import/export. It carries the same information as Graph minus the
// derived adjacency indexes.
type Definition struct {
	ID       string         `json:"id" yaml:"id"`
	Name     string         `json:"name" yaml:"name"`
	Version  int            `json:"version" yaml:"version"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Nodes    []Node         `json:"nodes" yaml:"nodes"`
	Edges    []Edge         `json:"edges" yaml:"edges"`
}

// ToDefinition converts a graph to its serializable definition.
func (g *Graph) ToDefinition() *Definition {
	def := &Definition{
		ID:       g.ID,
		Name:     g.Name,
		Version:  g.Version,
		Metadata: cloneMap(g.Metadata),
	}
	for _, n := range g.Nodes() {
		def.Nodes = append(def.Nodes, *n.Clone())
	}
	for _, e := range g.Edges() {
		def.Edges = append(def.Edges, *e.Clone())
	}
	return def
}

// FromDefinition reconstructs a validated graph from a definition.
func FromDefinition(def *Definition) (*Graph, error) {
	g := New(def.ID, def.Name)
	if def.Version > 0 {
		g.Version = def.Version
	}
	for k, v := range def.Metadata {
		g.Metadata[k] = v
	}
	for i := range def.Nodes {
		n := def.Nodes[i]
		if _, exists := g.nodes[n.ID]; exists {
			return nil, fmt.Errorf("definition %s: duplicate node id %s", def.ID, n.ID)
		}
		c := n.Clone()
		c.GraphID = g.ID
		g.nodes[c.ID] = c
	}
	for i := range def.Edges {
		e := def.Edges[i]
		if _, exists := g.edges[e.ID]; exists {
			return nil, fmt.Errorf("definition %s: duplicate edge id %s", def.ID, e.ID)
		}
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("definition %s: edge %s references missing node %s", def.ID, e.ID, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("definition %s: edge %s references missing node %s", def.ID, e.ID, e.To)
		}
		c := e.Clone()
		c.GraphID = g.ID
		g.edges[c.ID] = c
	}
	g.reindex()
	return g, nil
}

// ToJSON converts a Definition to an indented JSON string.
func (d *Definition) ToJSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return string(data), nil
}

// ToYAML converts a Definition to a YAML string.
func (d *Definition) ToYAML() (string, error) {
	data, err := yaml.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return string(data), nil
}

// DefinitionFromJSON parses a Definition from a JSON string.
func DefinitionFromJSON(jsonStr string) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal([]byte(jsonStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from JSON: %w", err)
	}
	return &def, nil
}

// DefinitionFromYAML parses a Definition from a YAML string.
func DefinitionFromYAML(yamlStr string) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal([]byte(yamlStr), &def); err != nil {
		return nil, fmt.Errorf("failed to unmarshal from YAML: %w", err)
	}
	return &def, nil
}

// LoadDefinition loads a Definition from a JSON or YAML file based on the
// file extension.
func LoadDefinition(filename string) (*Definition, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if isYAMLFile(filename) {
		return DefinitionFromYAML(string(data))
	}
	return DefinitionFromJSON(string(data))
}

func isYAMLFile(filename string) bool {
	for _, ext := range []string{".yaml", ".yml"} {
		if len(filename) > len(ext) && filename[len(filename)-len(ext):] == ext {
			return true
		}
	}
	return false
}
