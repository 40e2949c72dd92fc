package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a schema document from path. JSON and YAML are both accepted.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("os.ReadFile: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a schema document of the form
//
//	{"publications_count": 3, "subscriptions_count": 2,
//	 "schema": {"city": {"type": "string", "values": ["a", "b"]},
//	            "temp": {"type": "double", "interval": [-10, 40]}}}
//
// Only the shape is checked here. Field specs that cannot produce values are
// reported by Validate or when a publication is built.
func Parse(data []byte) (*Schema, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Msg: err.Error()}
	}
	root := &doc
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return nil, &SchemaError{Msg: "empty document"}
		}
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, &SchemaError{Msg: "document is not a mapping"}
	}

	s := &Schema{}
	var hasPub, hasSub bool
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i].Value, root.Content[i+1]
		switch key {
		case "publications_count":
			n, err := decodeCount(key, val)
			if err != nil {
				return nil, err
			}
			s.PublicationsCount, hasPub = n, true
		case "subscriptions_count":
			n, err := decodeCount(key, val)
			if err != nil {
				return nil, err
			}
			s.SubscriptionsCount, hasSub = n, true
		case "schema":
			fields, err := decodeFields(val)
			if err != nil {
				return nil, err
			}
			s.Fields = fields
		}
	}
	if !hasPub {
		return nil, &SchemaError{Msg: "publications_count is required"}
	}
	if !hasSub {
		return nil, &SchemaError{Msg: "subscriptions_count is required"}
	}
	return s, nil
}

func decodeCount(key string, n *yaml.Node) (uint64, error) {
	var v int64
	if err := n.Decode(&v); err != nil {
		return 0, &SchemaError{Msg: fmt.Sprintf("%s: %v", key, err)}
	}
	if v < 0 {
		return 0, &SchemaError{Msg: fmt.Sprintf("%s must not be negative: %d", key, v)}
	}
	return uint64(v), nil
}

func decodeFields(n *yaml.Node) ([]FieldSpec, error) {
	if n.Kind != yaml.MappingNode {
		return nil, &SchemaError{Msg: "schema is not a mapping"}
	}
	fields := make([]FieldSpec, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		f, err := decodeField(n.Content[i].Value, n.Content[i+1])
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

type rawField struct {
	Type     string    `yaml:"type"`
	Values   []any     `yaml:"values"`
	Interval []float64 `yaml:"interval"`
}

func decodeField(name string, n *yaml.Node) (FieldSpec, error) {
	if n.Kind != yaml.MappingNode {
		return FieldSpec{}, fieldErrorf(name, "spec is not a mapping")
	}
	var raw rawField
	if err := n.Decode(&raw); err != nil {
		return FieldSpec{}, fieldErrorf(name, "%v", err)
	}

	f := FieldSpec{Name: name, Type: raw.Type, Kind: kindOf(raw.Type)}
	switch f.Kind {
	case KindCategorical:
		f.Values = raw.Values
	case KindNumericRange:
		if len(raw.Interval) != 2 {
			return FieldSpec{}, fieldErrorf(name, "interval must have 2 numbers, got %d", len(raw.Interval))
		}
		f.Low, f.High = raw.Interval[0], raw.Interval[1]
	}
	return f, nil
}
