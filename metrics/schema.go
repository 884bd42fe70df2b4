package metrics

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrSchemaMismatch is returned when a metric is recorded with a dimension
	// name set different from the one it was first recorded with.
	ErrSchemaMismatch = errors.New("dimension schema mismatch")
	// ErrInvalidValue is returned for NaN and infinite observations.
	ErrInvalidValue = errors.New("invalid metric value")
)

// SchemaMismatchError describes a dimension schema violation for one metric.
type SchemaMismatchError struct {
	Metric   string
	Expected []string
	Got      []string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("dimension definition for %s doesn't match previously used dimensions [%s - %s]",
		e.Metric, strings.Join(e.Got, ","), strings.Join(e.Expected, ","))
}

// Unwrap lets errors.Is match ErrSchemaMismatch.
func (e *SchemaMismatchError) Unwrap() error {
	return ErrSchemaMismatch
}

// schemaRegistry fixes the sorted dimension name list of each metric on first use.
// It is not safe for concurrent use; the Aggregator serializes access.
type schemaRegistry struct {
	schemas map[string][]string
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{schemas: make(map[string][]string)}
}

// signature validates dims against the schema of name, registering it when
// name is new, and returns the canonical signature with the values in schema order.
func (r *schemaRegistry) signature(name string, dims Dimension) (string, []string, error) {
	keys := sortedKeys(dims)
	if schema, ok := r.schemas[name]; ok {
		if !equalStrings(schema, keys) {
			return "", nil, &SchemaMismatchError{Metric: name, Expected: schema, Got: keys}
		}
	} else {
		r.schemas[name] = keys
	}
	return encodeSignature(keys, dims)
}

// lookup computes the signature without registering a new schema.
func (r *schemaRegistry) lookup(name string, dims Dimension) (string, bool) {
	schema, ok := r.schemas[name]
	if !ok || !equalStrings(schema, sortedKeys(dims)) {
		return "", false
	}
	sig, _, err := encodeSignature(schema, dims)
	return sig, err == nil
}

// schema returns the registered dimension names of name.
func (r *schemaRegistry) schema(name string) []string {
	return r.schemas[name]
}

func encodeSignature(keys []string, dims Dimension) (string, []string, error) {
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = dims[k]
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", nil, err
	}
	return string(b), values, nil
}

func sortedKeys(dims Dimension) []string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func checkValue(name string, v Value) error {
	if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
		return fmt.Errorf("%w: %s=%v", ErrInvalidValue, name, float64(v))
	}
	return nil
}
