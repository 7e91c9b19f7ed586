package plc

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "embed"

	"github.com/deepmodeling/coincell-station/internal/codec"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema/node-table-v1.json
var nodeTableSchemaJSON string

// NodeTable is the on-disk node definition format.
type NodeTable struct {
	Nodes []NodeDefinition `yaml:"nodes" json:"nodes"`
}

type NodeDefinition struct {
	Name        string `yaml:"name" json:"name"`
	Address     uint16 `yaml:"address" json:"address"`
	Kind        Kind   `yaml:"kind" json:"kind"`
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	WordOrder   string `yaml:"word_order,omitempty" json:"word_order,omitempty"`
	Unit        uint8  `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Registry maps symbolic node names to their nodes. It is built once at
// startup; unknown names are rejected at load time, not at first use.
type Registry struct {
	nodes map[string]*Node
}

// LoadRegistry reads a YAML node table, validates it against the embedded
// schema, and binds every node to the given transport.
func LoadRegistry(path string, transport Transport) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read node table: %w", err)
	}
	return ParseRegistry(data, transport)
}

// ParseRegistry builds a registry from raw YAML node table content.
func ParseRegistry(data []byte, transport Transport) (*Registry, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	if err := validateNodeTable(raw); err != nil {
		return nil, err
	}

	var table NodeTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node table: %w", err)
	}

	nodes := make(map[string]*Node, len(table.Nodes))
	for _, def := range table.Nodes {
		if _, exists := nodes[def.Name]; exists {
			return nil, fmt.Errorf("duplicate node name: %s", def.Name)
		}

		nodes[def.Name] = &Node{
			Name:      def.Name,
			Address:   def.Address,
			Kind:      def.Kind,
			DataType:  codec.ScalarType(def.Type),
			Order:     codec.WordOrder(def.WordOrder),
			Unit:      def.Unit,
			transport: transport,
		}
	}

	return &Registry{nodes: nodes}, nil
}

func validateNodeTable(doc any) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("node-table-v1.json",
		strings.NewReader(nodeTableSchemaJSON)); err != nil {
		return fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("node-table-v1.json")
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	// Round-trip through JSON so the validator sees canonical types.
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal node table: %w", err)
	}
	var canonical any
	if err := json.Unmarshal(jsonData, &canonical); err != nil {
		return fmt.Errorf("failed to canonicalize node table: %w", err)
	}

	if err := schema.Validate(canonical); err != nil {
		return fmt.Errorf("node table validation failed: %w", err)
	}

	return nil
}

// Node returns the node registered under name.
func (r *Registry) Node(name string) (*Node, error) {
	node, ok := r.nodes[name]
	if !ok {
		return nil, fmt.Errorf("plc: unknown node %q", name)
	}
	return node, nil
}

// MustNode is for names already validated against the registry.
func (r *Registry) MustNode(name string) *Node {
	node, err := r.Node(name)
	if err != nil {
		panic(err)
	}
	return node
}

// Names returns every registered node name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.nodes))
	for name := range r.nodes {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered nodes.
func (r *Registry) Len() int {
	return len(r.nodes)
}
