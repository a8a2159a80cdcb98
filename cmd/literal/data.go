package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/gnituy18/literal"
)

// script is a data file. data preloads element data before activation;
// elements lists, for each element id, the writes to apply in order.
//
//	data:
//	  greeting:
//	    name: Ada
//	elements:
//	  greeting:
//	    - name: Grace
type script struct {
	Data     map[string]map[string]any   `yaml:"data"`
	Elements map[string][]map[string]any `yaml:"elements"`
	Order    []string                    `yaml:"-"`
}

func readScript(r io.Reader) (*script, error) {
	var node yaml.Node
	if err := yaml.NewDecoder(r).Decode(&node); err != nil {
		if err == io.EOF {
			return &script{}, nil
		}
		return nil, fmt.Errorf("decode data: %w", err)
	}

	s := &script{}
	if err := node.Decode(s); err != nil {
		return nil, fmt.Errorf("decode data: %w", err)
	}
	s.Order = elementOrder(&node)
	return s, nil
}

// elementOrder returns the element ids in file order; map decoding loses it.
func elementOrder(doc *yaml.Node) []string {
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "elements" || doc.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		var ids []string
		els := doc.Content[i+1]
		for j := 0; j+1 < len(els.Content); j += 2 {
			ids = append(ids, els.Content[j].Value)
		}
		return ids
	}
	return nil
}

// preload installs the initial data objects. It must run before the
// observer starts.
func (s *script) preload(doc *literal.Document, obs *literal.Observer) error {
	for id, initial := range s.Data {
		el := doc.ElementByID(id)
		if el == nil {
			return fmt.Errorf("no element with id %q", id)
		}

		store, err := literal.NewStore(initial)
		if err != nil {
			return fmt.Errorf("element %q: %w", id, err)
		}
		if err := obs.SetData(el, store); err != nil {
			return fmt.Errorf("element %q: %w", id, err)
		}
	}
	return nil
}

// apply performs every write of s against doc through obs.
func (s *script) apply(doc *literal.Document, obs *literal.Observer) error {
	for _, id := range s.Order {
		el := doc.ElementByID(id)
		if el == nil {
			return fmt.Errorf("no element with id %q", id)
		}

		store := obs.Data(el)
		for _, writes := range s.Elements[id] {
			if err := store.SetMany(writes); err != nil {
				return fmt.Errorf("element %q: %w", id, err)
			}
			doc.Flush()
		}
	}
	return nil
}
