package modify

import (
	"fmt"

	"github.com/roach88/modplan/internal/ir"
)

// Registry holds the compiled plan sets of one or more content types, keyed
// by display mapping id. It is built once and read concurrently afterwards.
type Registry struct {
	sets      map[string]*PlanSet
	fieldSets map[string]*ir.FieldSet
	types     map[string]*ir.ContentType
	order     []string
}

// kindsFor lists the builders compiled for each shape.
func kindsFor(shape ir.Shape) []BuilderKind {
	switch shape {
	case ir.ShapeParent:
		return []BuilderKind{ParentInsert, ItemDelete}
	case ir.ShapeSimpleChild:
		return []BuilderKind{SimpleInsert, SimpleDelete}
	case ir.ShapeComplexChild:
		return []BuilderKind{ComplexInsert, ComplexDelete}
	default:
		return nil
	}
}

// NewRegistry compiles every field set of the content types and registers
// the resulting plans. Mapping ids must be unique across content types.
func NewRegistry(c *PlanCompiler, types ...*ir.ContentType) (*Registry, error) {
	r := &Registry{
		sets:      make(map[string]*PlanSet),
		fieldSets: make(map[string]*ir.FieldSet),
		types:     make(map[string]*ir.ContentType),
	}
	for _, ct := range types {
		if err := r.compile(c, ct); err != nil {
			return nil, fmt.Errorf("content type %s: %w", ct.Name, err)
		}
	}
	return r, nil
}

func (r *Registry) compile(c *PlanCompiler, ct *ir.ContentType) error {
	if ct == nil || ct.Root == nil {
		return fmt.Errorf("%w: content type has no root field set", ErrInvalidArgument)
	}
	for _, fs := range ct.FieldSets() {
		mapping, ok := ct.MappingFor(fs)
		if !ok {
			return fmt.Errorf("%w: field set %s has no display mapping %q", ErrInvalidArgument, fs.Name, fs.Mapping)
		}
		id := mapping.GetID()
		if _, dup := r.sets[id]; dup {
			return fmt.Errorf("%w: mapping id %q used twice", ErrInvalidArgument, id)
		}

		set := NewPlanSet(id)
		for _, kind := range kindsFor(fs.Shape) {
			plan, err := c.Builder(kind).CreateModifyPlan(mapping, fs)
			if err != nil {
				return err
			}
			if err := set.AddPlan(plan); err != nil {
				return err
			}
		}

		r.sets[id] = set
		r.fieldSets[id] = fs
		r.types[id] = ct
		r.order = append(r.order, id)
	}
	return nil
}

// PlanSet returns the plan set of a mapping.
func (r *Registry) PlanSet(mappingID string) (*PlanSet, bool) {
	s, ok := r.sets[mappingID]
	return s, ok
}

// FieldSet returns the field set a mapping was compiled from.
func (r *Registry) FieldSet(mappingID string) (*ir.FieldSet, bool) {
	fs, ok := r.fieldSets[mappingID]
	return fs, ok
}

// ContentType returns the content type owning a mapping.
func (r *Registry) ContentType(mappingID string) (*ir.ContentType, bool) {
	ct, ok := r.types[mappingID]
	return ct, ok
}

// MappingIDs returns every mapping id in compile order.
func (r *Registry) MappingIDs() []string {
	return append([]string(nil), r.order...)
}
