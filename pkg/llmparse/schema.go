package llmparse

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

var schemaCache sync.Map // name -> *Schema

// Schema is a compiled JSON Schema applied to decoded documents.
type Schema struct {
	name     string
	compiled *jsonschema.Schema
}

// CompileSchema compiles definition once per name.
func CompileSchema(name, definition string) (*Schema, error) {
	if cached, ok := schemaCache.Load(name); ok {
		return cached.(*Schema), nil
	}
	var doc any
	if err := json.Unmarshal([]byte(definition), &doc); err != nil {
		return nil, fmt.Errorf("op=llmparse.CompileSchema: parse %q: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	url := fmt.Sprintf("schema://%s.json", name)
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("op=llmparse.CompileSchema: add %q: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("op=llmparse.CompileSchema: compile %q: %w", name, err)
	}
	s := &Schema{name: name, compiled: compiled}
	actual, _ := schemaCache.LoadOrStore(name, s)
	return actual.(*Schema), nil
}

// MustCompileSchema is CompileSchema for package-level schemas.
func MustCompileSchema(name, definition string) *Schema {
	s, err := CompileSchema(name, definition)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Name() string { return s.name }

// Validate checks a document produced by json.Unmarshal into any.
func (s *Schema) Validate(doc any) error {
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("schema %s: %w", s.name, err)
	}
	return nil
}
