package generate

import (
	"fmt"

	"github.com/tckz/go-datagen/internal/schema"
)

// Record is one generated object, keyed by field name.
type Record map[string]any

// Subscription records carry a single constant marker.
const (
	SubscriptionField  = schema.ReservedField
	SubscriptionMarker = "this"
)

// Builder assembles records for one worker.
type Builder struct {
	schema *schema.Schema
	gen    *Generator
}

// NewBuilder returns a Builder over a read-only schema.
func NewBuilder(s *schema.Schema, gen *Generator) *Builder {
	return &Builder{schema: s, gen: gen}
}

// Publication draws one value per schema field.
func (b *Builder) Publication() (Record, error) {
	rec := make(Record, len(b.schema.Fields))
	for _, f := range b.schema.Fields {
		v, err := b.gen.Value(f)
		if err != nil {
			return nil, fmt.Errorf("build publication: %w", err)
		}
		rec[f.Name] = v
	}
	return rec, nil
}

// Subscription returns the fixed subscription record. Subscriptions do not
// depend on the schema fields.
func (b *Builder) Subscription() Record {
	return Record{SubscriptionField: SubscriptionMarker}
}
