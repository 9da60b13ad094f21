package modify

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/modplan/internal/dataset"
)

// Params is a request parameter map. Every parameter is a list; a scalar is
// a list of length one.
type Params map[string][]any

// ParamsFrom converts decoded YAML or JSON values to request params. A list
// is kept as is; any other value, null included, becomes a one-element list.
func ParamsFrom(in map[string]any) Params {
	out := make(Params, len(in))
	for name, v := range in {
		if list, ok := v.([]any); ok {
			out[name] = list
			continue
		}
		out[name] = []any{v}
	}
	return out
}

// Clone returns a deep copy of the map and its lists.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = slices.Clone(v)
	}
	return out
}

// First returns the first value of a parameter, or nil when absent or empty.
func (p Params) First(name string) any {
	if v := p[name]; len(v) > 0 {
		return v[0]
	}
	return nil
}

// Present reports whether a parameter exists, is non-empty and has a
// non-nil first element.
func (p Params) Present(name string) bool {
	return p.First(name) != nil
}

// truncated returns a copy with every list collapsed to its first element.
func (p Params) truncated() Params {
	out := make(Params, len(p))
	for k, v := range p {
		if len(v) > 1 {
			out[k] = []any{v[0]}
			continue
		}
		out[k] = slices.Clone(v)
	}
	return out
}

// balanced returns a copy where every multi-valued list is truncated or
// padded with nil to n elements, along with the control list itself.
// Scalars stay scalars and are broadcast to every row at dispatch.
func (p Params) balanced(control string, n int) Params {
	out := make(Params, len(p))
	for k, v := range p {
		if len(v) > 1 || k == control {
			resized := make([]any, n)
			copy(resized, v)
			out[k] = resized
			continue
		}
		out[k] = slices.Clone(v)
	}
	return out
}

// onlyMultiValued reports whether name is the single parameter holding more
// than one value.
func (p Params) onlyMultiValued(name string) bool {
	if name == "" || len(p[name]) < 2 {
		return false
	}
	for k, v := range p {
		if k != name && len(v) > 1 {
			return false
		}
	}
	return true
}

// ParamNames are the request parameters the compiled plans read for keys and
// control values.
type ParamNames struct {
	ContentID     string `yaml:"content_id" json:"content_id"`
	Revision      string `yaml:"revision" json:"revision"`
	ChildID       string `yaml:"child_id" json:"child_id"`
	ParentID      string `yaml:"parent_id" json:"parent_id"`
	Discriminator string `yaml:"discriminator" json:"discriminator"`
	// Document marks the document payload parameter. Its being the only
	// multi-valued parameter never makes a request multi-row.
	Document string `yaml:"document" json:"document"`
}

// DefaultParamNames returns the parameter names used when no configuration
// overrides them.
func DefaultParamNames() ParamNames {
	return ParamNames{
		ContentID:     "contentId",
		Revision:      "revision",
		ChildID:       "childId",
		ParentID:      "parentId",
		Discriminator: "mode",
		Document:      "document",
	}
}

// Discriminators are the values of the discriminator parameter that select
// the backend operation.
type Discriminators struct {
	Insert string `yaml:"insert" json:"insert"`
	Update string `yaml:"update" json:"update"`
	Delete string `yaml:"delete" json:"delete"`
}

// DefaultDiscriminators returns the discriminator values used when no
// configuration overrides them.
func DefaultDiscriminators() Discriminators {
	return Discriminators{Insert: "insert", Update: "update", Delete: "delete"}
}

// Mode maps a discriminator value to the dataset mode it selects.
func (d Discriminators) Mode(value string) (dataset.Mode, bool) {
	switch value {
	case d.Insert:
		return dataset.ModeInsert, true
	case d.Update:
		return dataset.ModeUpdate, true
	case d.Delete:
		return dataset.ModeDelete, true
	default:
		return "", false
	}
}

// ParamInt64 converts a request value to an integer. nil converts to 0.
// Strings must hold a base-10 integer and floats must be integral.
func ParamInt64(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("integer %d out of range", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integral number %v", n)
		}
		if n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, fmt.Errorf("number %v out of range", n)
		}
		return int64(n), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %q", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported integer value of type %T", v)
	}
}
