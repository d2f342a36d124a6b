// Package catalog defines the fixed registry of cost-analysis tools.
//
// Every tool carries a declared parameter schema. Validation is pure: it
// inspects an argument map against the schema and reports the first
// violation without touching any upstream service. Canonicalization applies
// defaults so that two calls differing only in an omitted versus explicitly
// defaulted argument produce the same argument set, which is what the result
// cache keys on.
package catalog

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/costlens/costlens/pkg/billing"
	"github.com/costlens/costlens/pkg/types"
)

// ValidationKind identifies which schema rule a tool call violated.
type ValidationKind string

const (
	// MissingParam marks an absent required parameter.
	MissingParam ValidationKind = "missing_param"

	// WrongType marks a value whose type does not match the declaration,
	// including malformed dates.
	WrongType ValidationKind = "wrong_type"

	// DisallowedValue marks a value outside the declared range or enum,
	// an unknown parameter name, or a violated cross-parameter constraint.
	DisallowedValue ValidationKind = "disallowed_value"
)

// ValidationError describes why a tool call was rejected. It never wraps an
// upstream failure; by the time one of these exists, no upstream request has
// been made.
type ValidationError struct {
	// Tool is the tool the call referenced.
	Tool string

	// Kind is the violated rule.
	Kind ValidationKind

	// Param is the offending parameter, empty for tool-level violations.
	Param string

	// Message is a human-readable description, written so the model can
	// correct the call.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("catalog: %s: %s %q: %s", e.Tool, e.Kind, e.Param, e.Message)
	}
	return fmt.Sprintf("catalog: %s: %s: %s", e.Tool, e.Kind, e.Message)
}

// NotFoundError is returned by Lookup for a tool name outside the catalog.
type NotFoundError struct {
	Tool string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("catalog: unknown tool %q", e.Tool)
}

// ParamType is the declared type of a tool parameter.
type ParamType int

const (
	// TypeString is a free-form or enum-constrained string.
	TypeString ParamType = iota

	// TypeInt is an integer, optionally range-constrained.
	TypeInt

	// TypeDate is a YYYY-MM-DD string. A string that does not parse as a
	// date is a WrongType violation.
	TypeDate
)

// Parameter declares one named input of a tool.
type Parameter struct {
	Name        string
	Type        ParamType
	Description string
	Required    bool

	// Default is the static default applied during canonicalization when
	// the argument is absent. Nil means no static default.
	Default any

	// DefaultFn computes a clock-dependent default, e.g. "last two
	// months". Takes precedence over Default when set.
	DefaultFn func(now time.Time) any

	// Enum restricts string values to this set when non-empty.
	Enum []string

	// Min and Max bound integer values inclusively. Both zero means
	// unbounded.
	Min, Max int
}

// Tool is one catalog entry: schema plus semantic constraints. Immutable
// after construction.
type Tool struct {
	Name        string
	Description string

	// Cacheable reports whether results may be memoized for the current
	// epoch. False for tools whose output depends on the wall clock at
	// finer than day resolution.
	Cacheable bool

	Params []Parameter

	// Check runs after per-parameter validation and default application,
	// enforcing cross-parameter constraints such as period ordering and
	// non-overlap. Nil means no extra constraint.
	Check func(args map[string]any) *ValidationError
}

// Catalog is the fixed set of tools. Safe for concurrent use; never mutated
// after New.
type Catalog struct {
	tools map[string]*Tool
	order []string
	now   func() time.Time
}

// New builds the catalog. now supplies the reference clock for
// clock-dependent defaults; pass nil for time.Now.
func New(now func() time.Time) *Catalog {
	if now == nil {
		now = time.Now
	}
	c := &Catalog{tools: map[string]*Tool{}, now: now}
	for _, t := range definitions() {
		c.tools[t.Name] = t
		c.order = append(c.order, t.Name)
	}
	return c
}

// Lookup returns the definition for name, or a [*NotFoundError].
func (c *Catalog) Lookup(name string) (*Tool, error) {
	t, ok := c.tools[name]
	if !ok {
		return nil, &NotFoundError{Tool: name}
	}
	return t, nil
}

// Names returns the tool names in catalog order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Definitions returns the LLM-facing tool schemas in catalog order.
func (c *Catalog) Definitions() []types.ToolDefinition {
	defs := make([]types.ToolDefinition, 0, len(c.order))
	for _, name := range c.order {
		defs = append(defs, c.tools[name].Definition())
	}
	return defs
}

// Validate checks args against the tool's schema. It is pure: no defaults
// are applied and no state is touched. A nil return means the call may be
// dispatched.
func (c *Catalog) Validate(name string, args map[string]any) error {
	t, err := c.Lookup(name)
	if err != nil {
		return err
	}
	if verr := t.validate(args); verr != nil {
		return verr
	}
	// Cross-parameter checks need the defaulted view.
	if t.Check != nil {
		canon, verr := t.canonicalize(args, c.now())
		if verr != nil {
			return verr
		}
		if verr := t.Check(canon); verr != nil {
			verr.Tool = t.Name
			return verr
		}
	}
	return nil
}

// Canonicalize validates args and returns the defaults-applied argument set
// used for dispatch and cache keying. The returned map contains every
// declared parameter that has a value, with integers as int and dates as
// YYYY-MM-DD strings.
func (c *Catalog) Canonicalize(name string, args map[string]any) (map[string]any, error) {
	t, err := c.Lookup(name)
	if err != nil {
		return nil, err
	}
	if verr := t.validate(args); verr != nil {
		return nil, verr
	}
	canon, verr := t.canonicalize(args, c.now())
	if verr != nil {
		return nil, verr
	}
	if t.Check != nil {
		if verr := t.Check(canon); verr != nil {
			verr.Tool = t.Name
			return nil, verr
		}
	}
	return canon, nil
}

// CanonicalKey serializes a canonical argument set deterministically for use
// as a cache key component. Argument order never matters because keys are
// emitted sorted.
func CanonicalKey(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf := []byte("{")
	for i, k := range keys {
		if i > 0 {
			buf = append(buf, ',')
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(args[k])
		buf = append(buf, kb...)
		buf = append(buf, ':')
		buf = append(buf, vb...)
	}
	buf = append(buf, '}')
	return string(buf)
}

// Definition renders the tool as an LLM-facing schema.
func (t *Tool) Definition() types.ToolDefinition {
	props := map[string]any{}
	var required []string
	for _, p := range t.Params {
		prop := map[string]any{
			"description": p.Description,
		}
		switch p.Type {
		case TypeInt:
			prop["type"] = "integer"
		default:
			prop["type"] = "string"
		}
		if len(p.Enum) > 0 {
			prop["enum"] = append([]string(nil), p.Enum...)
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return types.ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  schema,
		Cacheable:   t.Cacheable,
	}
}

// validate applies the per-parameter rules.
func (t *Tool) validate(args map[string]any) *ValidationError {
	declared := map[string]*Parameter{}
	for i := range t.Params {
		declared[t.Params[i].Name] = &t.Params[i]
	}

	// Unknown arguments are rejected before anything else so the model
	// learns the declared surface.
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := declared[name]; !ok {
			return &ValidationError{
				Tool:    t.Name,
				Kind:    DisallowedValue,
				Param:   name,
				Message: "not a declared parameter",
			}
		}
	}

	for _, p := range t.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			if p.Required {
				return &ValidationError{
					Tool:    t.Name,
					Kind:    MissingParam,
					Param:   p.Name,
					Message: "required parameter is missing",
				}
			}
			continue
		}
		if verr := p.check(raw); verr != nil {
			verr.Tool = t.Name
			return verr
		}
	}
	return nil
}

// canonicalize assumes validate passed and fills in defaults.
func (t *Tool) canonicalize(args map[string]any, now time.Time) (map[string]any, *ValidationError) {
	canon := make(map[string]any, len(t.Params))
	for _, p := range t.Params {
		raw, present := args[p.Name]
		if !present || raw == nil {
			switch {
			case p.DefaultFn != nil:
				canon[p.Name] = p.DefaultFn(now)
			case p.Default != nil:
				canon[p.Name] = p.Default
			}
			continue
		}
		v, verr := p.normalize(raw)
		if verr != nil {
			verr.Tool = t.Name
			return nil, verr
		}
		canon[p.Name] = v
	}
	return canon, nil
}

// check validates a single present value against the parameter declaration.
func (p *Parameter) check(raw any) *ValidationError {
	_, verr := p.normalize(raw)
	return verr
}

// normalize type-checks raw and converts it to the canonical representation.
func (p *Parameter) normalize(raw any) (any, *ValidationError) {
	switch p.Type {
	case TypeInt:
		n, ok := asInt(raw)
		if !ok {
			return nil, &ValidationError{
				Kind:    WrongType,
				Param:   p.Name,
				Message: fmt.Sprintf("expected an integer, got %T", raw),
			}
		}
		if p.Min != 0 || p.Max != 0 {
			if n < p.Min || n > p.Max {
				return nil, &ValidationError{
					Kind:    DisallowedValue,
					Param:   p.Name,
					Message: fmt.Sprintf("must be between %d and %d, got %d", p.Min, p.Max, n),
				}
			}
		}
		return n, nil

	case TypeDate:
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{
				Kind:    WrongType,
				Param:   p.Name,
				Message: fmt.Sprintf("expected a YYYY-MM-DD string, got %T", raw),
			}
		}
		if _, err := time.Parse(billing.DateLayout, s); err != nil {
			return nil, &ValidationError{
				Kind:    WrongType,
				Param:   p.Name,
				Message: fmt.Sprintf("%q is not a YYYY-MM-DD date", s),
			}
		}
		return s, nil

	default: // TypeString
		s, ok := raw.(string)
		if !ok {
			return nil, &ValidationError{
				Kind:    WrongType,
				Param:   p.Name,
				Message: fmt.Sprintf("expected a string, got %T", raw),
			}
		}
		if len(p.Enum) > 0 {
			for _, allowed := range p.Enum {
				if s == allowed {
					return s, nil
				}
			}
			return nil, &ValidationError{
				Kind:    DisallowedValue,
				Param:   p.Name,
				Message: fmt.Sprintf("%q is not one of %v", s, p.Enum),
			}
		}
		return s, nil
	}
}

// asInt converts the integer encodings that arrive from JSON decoding and
// from native callers.
func asInt(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v != float64(int(v)) {
			return 0, false
		}
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
