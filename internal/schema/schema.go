// Package schema describes the declarative input of a generation run: how many
// records of each kind to produce and how to synthesize publication fields.
package schema

import (
	"errors"
	"fmt"
	"math"
)

// ErrSchema is the kind of every error reported for a malformed schema.
var ErrSchema = errors.New("schema error")

// SchemaError reports a malformed schema or field spec.
type SchemaError struct {
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrSchema.Error(), e.Msg)
	}
	return fmt.Sprintf("%s: field %q: %s", ErrSchema.Error(), e.Field, e.Msg)
}

func (e *SchemaError) Unwrap() error { return ErrSchema }

func fieldErrorf(field, format string, args ...any) error {
	return &SchemaError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// Kind tells how the value of a field is synthesized.
type Kind int

const (
	KindUnknown Kind = iota
	KindCategorical
	KindNumericRange
)

func (k Kind) String() string {
	switch k {
	case KindCategorical:
		return "categorical"
	case KindNumericRange:
		return "numericRange"
	default:
		return "unknown"
	}
}

// Declared field types understood by the loader.
const (
	TypeString = "string"
	TypeDate   = "date"
	TypeDouble = "double"
)

func kindOf(typ string) Kind {
	switch typ {
	case TypeString, TypeDate:
		return KindCategorical
	case TypeDouble:
		return KindNumericRange
	default:
		return KindUnknown
	}
}

// FieldSpec is the rule for one publication field.
type FieldSpec struct {
	Name string
	// Type is the type declared in the schema document ("string", "date", "double").
	Type string
	Kind Kind

	// Values are the candidates of a categorical field.
	Values []any

	// Low and High bound a numeric range field.
	Low  float64
	High float64
}

// Categorical returns a categorical string field.
func Categorical(name string, values ...any) FieldSpec {
	return FieldSpec{Name: name, Type: TypeString, Kind: KindCategorical, Values: values}
}

// NumericRange returns a double field drawn from [low, high].
func NumericRange(name string, low, high float64) FieldSpec {
	return FieldSpec{Name: name, Type: TypeDouble, Kind: KindNumericRange, Low: low, High: high}
}

// Check reports whether the spec can produce values.
func (f FieldSpec) Check() error {
	switch f.Kind {
	case KindCategorical:
		if len(f.Values) == 0 {
			return fieldErrorf(f.Name, "categorical field has no values")
		}
	case KindNumericRange:
		if math.IsNaN(f.Low) || math.IsNaN(f.High) || math.IsInf(f.Low, 0) || math.IsInf(f.High, 0) {
			return fieldErrorf(f.Name, "interval [%v, %v] is not finite", f.Low, f.High)
		}
		if f.Low > f.High {
			return fieldErrorf(f.Name, "interval low %v is greater than high %v", f.Low, f.High)
		}
	default:
		return fieldErrorf(f.Name, "unknown type %q", f.Type)
	}
	return nil
}

// ReservedField is the field name of subscription records. A publication
// using it could be mistaken for a subscription.
const ReservedField = "subscription"

// Schema is read-only once handed to a pool.
type Schema struct {
	PublicationsCount  uint64
	SubscriptionsCount uint64

	// Fields keep document order.
	Fields []FieldSpec
}

// TotalTasks is the size of the task space shared by all workers.
func (s *Schema) TotalTasks() uint64 {
	return s.PublicationsCount + s.SubscriptionsCount
}

// Validate checks every field spec up front so generation cannot fail later.
func (s *Schema) Validate() error {
	if s.TotalTasks() > math.MaxInt64 {
		return &SchemaError{Msg: fmt.Sprintf("total task count %d overflows", s.TotalTasks())}
	}
	if s.PublicationsCount > 0 && len(s.Fields) == 0 {
		return &SchemaError{Msg: "publications requested but no fields declared"}
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if f.Name == "" {
			return &SchemaError{Msg: "field with empty name"}
		}
		if f.Name == ReservedField {
			return fieldErrorf(f.Name, "name is reserved for subscriptions")
		}
		if _, ok := seen[f.Name]; ok {
			return fieldErrorf(f.Name, "duplicated")
		}
		seen[f.Name] = struct{}{}
		if err := f.Check(); err != nil {
			return err
		}
	}
	return nil
}
