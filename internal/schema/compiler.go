// Package schema validates untrusted inbound payloads before they
// reach the core.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var consultRequestSchema []byte

const consultSchemaKey = "consult-request"

// Validator compiles schemas on demand and keeps them in a bounded
// cache. The embedded consult schema shares the same path as any
// caller-supplied schema.
type Validator struct {
	compiler *js.Compiler
	cache    *expirable.LRU[string, *js.Schema]
}

func NewValidator(maxSize int) *Validator {
	c := js.NewCompiler()
	c.ExtractAnnotations = true

	return &Validator{
		compiler: c,
		cache:    expirable.NewLRU[string, *js.Schema](maxSize, nil, time.Hour),
	}
}

// ValidateConsultRequest validates a consult creation payload against
// the embedded schema.
func (v *Validator) ValidateConsultRequest(payload map[string]interface{}) error {
	compiled, err := v.compileRaw(consultSchemaKey, consultRequestSchema)
	if err != nil {
		return err
	}
	return v.validate(compiled, payload)
}

// ValidateAgainst validates a value against an arbitrary schema
// document, compiling and caching it keyed by its serialized form.
func (v *Validator) ValidateAgainst(schema, value map[string]interface{}) error {
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	compiled, err := v.compileRaw(string(raw), raw)
	if err != nil {
		return err
	}
	return v.validate(compiled, value)
}

func (v *Validator) compileRaw(key string, raw []byte) (*js.Schema, error) {
	if compiled, ok := v.cache.Get(key); ok {
		return compiled, nil
	}

	// A synthetic hash-based URL avoids URL parsing issues with JSON
	// content.
	hash := fmt.Sprintf("%x", raw)
	if len(hash) > 16 {
		hash = hash[:16]
	}
	resourceURL := fmt.Sprintf("mem://schema/%s.json", hash)
	if err := v.compiler.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := v.compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	v.cache.Add(key, compiled)
	return compiled, nil
}

func (v *Validator) validate(compiled *js.Schema, value map[string]interface{}) error {
	// Round-trip so nested types match what the validator expects.
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	var plain interface{}
	if err := json.Unmarshal(raw, &plain); err != nil {
		return fmt.Errorf("failed to unmarshal value: %w", err)
	}
	if err := compiled.Validate(plain); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}
