package modify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/modplan/internal/dataset"
	"github.com/roach88/modplan/internal/ir"
	"github.com/roach88/modplan/internal/queryir"
)

// BuilderKind selects one (shape, operation) compilation arm.
type BuilderKind int

const (
	ParentInsert BuilderKind = iota
	ItemDelete
	SimpleInsert
	SimpleDelete
	ComplexInsert
	ComplexDelete
)

func (k BuilderKind) String() string {
	switch k {
	case ParentInsert:
		return "parent-insert"
	case ItemDelete:
		return "item-delete"
	case SimpleInsert:
		return "simple-insert"
	case SimpleDelete:
		return "simple-delete"
	case ComplexInsert:
		return "complex-insert"
	case ComplexDelete:
		return "complex-delete"
	default:
		return fmt.Sprintf("BuilderKind(%d)", int(k))
	}
}

// requiredShape returns the shape a kind compiles; ok is false for kinds
// that accept any shape.
func (k BuilderKind) requiredShape() (shape ir.Shape, ok bool) {
	switch k {
	case ParentInsert:
		return ir.ShapeParent, true
	case SimpleInsert, SimpleDelete:
		return ir.ShapeSimpleChild, true
	case ComplexInsert, ComplexDelete:
		return ir.ShapeComplexChild, true
	default:
		return 0, false
	}
}

// Operation is the definition-time mutation a builder compiles.
type Operation int

const (
	OperationInsert Operation = iota
	OperationDelete
)

// KindFor selects the builder for a shape and operation.
func KindFor(shape ir.Shape, op Operation) (BuilderKind, error) {
	switch {
	case shape == ir.ShapeParent && op == OperationInsert:
		return ParentInsert, nil
	case shape == ir.ShapeParent && op == OperationDelete:
		return ItemDelete, nil
	case shape == ir.ShapeSimpleChild && op == OperationInsert:
		return SimpleInsert, nil
	case shape == ir.ShapeSimpleChild && op == OperationDelete:
		return SimpleDelete, nil
	case shape == ir.ShapeComplexChild && op == OperationInsert:
		return ComplexInsert, nil
	case shape == ir.ShapeComplexChild && op == OperationDelete:
		return ComplexDelete, nil
	default:
		return 0, fmt.Errorf("%w: no builder for %s operation %d", ErrInvalidArgument, shape, op)
	}
}

// DatasetCreator materializes a named backend resource from mutation IR.
type DatasetCreator interface {
	CreateDataset(name string, mode dataset.Mode, stmts []queryir.Statement) error
}

// PlanCompiler compiles field sets into plans. It holds the deployment-wide
// names every plan shares: system columns, key and control parameters, and
// discriminator values.
type PlanCompiler struct {
	datasets DatasetCreator
	cols     ir.SystemColumns
	params   ParamNames
	modes    Discriminators
	logger   *zap.Logger
}

// Option configures a PlanCompiler.
type Option func(*PlanCompiler)

// WithSystemColumns overrides the system column names.
func WithSystemColumns(cols ir.SystemColumns) Option {
	return func(c *PlanCompiler) { c.cols = cols }
}

// WithParamNames overrides the key and control parameter names.
func WithParamNames(p ParamNames) Option {
	return func(c *PlanCompiler) { c.params = p }
}

// WithDiscriminators overrides the discriminator values.
func WithDiscriminators(d Discriminators) Option {
	return func(c *PlanCompiler) { c.modes = d }
}

// WithLogger sets the compile logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *PlanCompiler) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewPlanCompiler creates a PlanCompiler that materializes datasets through
// datasets.
func NewPlanCompiler(datasets DatasetCreator, opts ...Option) *PlanCompiler {
	c := &PlanCompiler{
		datasets: datasets,
		cols:     ir.DefaultSystemColumns(),
		params:   DefaultParamNames(),
		modes:    DefaultDiscriminators(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Params returns the parameter names plans are compiled against.
func (c *PlanCompiler) Params() ParamNames { return c.params }

// Discriminators returns the discriminator values plans force.
func (c *PlanCompiler) Discriminators() Discriminators { return c.modes }

// Builder is the compilation entry point for one (shape, operation) arm.
type Builder struct {
	kind     BuilderKind
	compiler *PlanCompiler
}

// Builder returns the builder for kind.
func (c *PlanCompiler) Builder(kind BuilderKind) *Builder {
	return &Builder{kind: kind, compiler: c}
}

// Kind returns the builder's arm.
func (b *Builder) Kind() BuilderKind { return b.kind }

// CreateModifyPlan compiles a plan for the field set.
func (b *Builder) CreateModifyPlan(mapping *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	return b.compiler.BuildPlan(b.kind, mapping, fs)
}

// BuildPlan compiles a plan with the arm selected by kind. A missing
// mapping or field set, or a field set of the wrong shape, is an invalid
// argument.
func (c *PlanCompiler) BuildPlan(kind BuilderKind, mapping *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	if mapping == nil {
		return nil, fmt.Errorf("%w: %s: nil display mapping", ErrInvalidArgument, kind)
	}
	if fs == nil {
		return nil, fmt.Errorf("%w: %s: nil field set", ErrInvalidArgument, kind)
	}
	if want, ok := kind.requiredShape(); ok && fs.Shape != want {
		return nil, fmt.Errorf("%w: %s builder requires a %s field set, %q is %s",
			ErrInvalidArgument, kind, want, fs.Name, fs.Shape)
	}

	var (
		plan *Plan
		err  error
	)
	switch kind {
	case ParentInsert:
		plan, err = c.buildParentInsert(mapping, fs)
	case ItemDelete:
		plan, err = c.buildItemDelete(mapping, fs)
	case SimpleInsert:
		plan, err = c.buildSimpleInsert(mapping, fs)
	case SimpleDelete:
		plan, err = c.buildSimpleDelete(mapping, fs)
	case ComplexInsert:
		plan, err = c.buildComplexInsert(mapping, fs)
	case ComplexDelete:
		plan, err = c.buildComplexDelete(mapping, fs)
	default:
		return nil, fmt.Errorf("%w: unknown builder kind %v", ErrInvalidArgument, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", kind, fs.Name, err)
	}

	c.logger.Debug("plan compiled",
		zap.String("builder", kind.String()),
		zap.String("mapping", plan.mappingID),
		zap.Stringer("type", plan.planType),
		zap.Strings("resources", plan.Resources()))
	return plan, nil
}

func (c *PlanCompiler) buildParentInsert(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	plan := newPlan(InsertPlan, m.GetID(), fs.Shape)
	if err := c.addRevisionValidation(plan, fs); err != nil {
		return nil, err
	}

	cols := columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeInsert, c.systemInsertMappings(fs)))
	cols = append(cols, fieldColumns(m, m.MappedFields(fs))...)
	insert := &queryir.Insert{Table: fs.Table, Columns: cols, ConflictKeys: []string{c.cols.ContentID}}

	name := dataset.Name(dataset.OpInsert, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeInsert, []queryir.Statement{insert}); err != nil {
		return nil, err
	}
	plan.addStep(NewUpdateStep(name, c.params.Discriminator, c.modes.Insert, false, ""))

	for _, f := range fs.BinaryFields() {
		plan.binary[f.Name] = m.ParamFor(f.Name)
	}
	return plan, nil
}

func (c *PlanCompiler) buildItemDelete(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	plan := newPlan(DeleteItemPlan, m.GetID(), fs.Shape)
	if err := c.addRevisionValidation(plan, fs); err != nil {
		return nil, err
	}

	stmts := c.descendantDeletes(fs)
	stmts = append(stmts, &queryir.Delete{
		Table: fs.Table,
		Where: columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeDelete, c.systemDeleteMappings(fs))),
	})

	name := dataset.Name(dataset.OpDelete, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeDelete, stmts); err != nil {
		return nil, err
	}
	plan.addStep(NewUpdateStep(name, c.params.Discriminator, c.modes.Delete, false, ""))
	return plan, nil
}

func (c *PlanCompiler) buildSimpleInsert(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	value, ok := fs.Value()
	if !ok {
		return nil, fmt.Errorf("%w: simple child must own exactly one field", ErrInvalidArgument)
	}
	param := m.ParamFor(value.Name)

	plan := newPlan(InsertPlan, m.GetID(), fs.Shape)
	cols := columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeInsert, nil))
	cols = append(cols, fieldColumns(m, []ir.Field{value})...)

	name := dataset.Name(dataset.OpSimpleInsert, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeInsert,
		[]queryir.Statement{&queryir.Insert{Table: fs.Table, Columns: cols}}); err != nil {
		return nil, err
	}

	step, err := NewConditionalStep(
		NewUpdateStep(name, c.params.Discriminator, c.modes.Insert, true, param),
		[]Condition{ParamPresent{Param: param}},
	)
	if err != nil {
		return nil, err
	}
	plan.addStep(step)
	return plan, nil
}

func (c *PlanCompiler) buildSimpleDelete(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	if _, ok := fs.Value(); !ok {
		return nil, fmt.Errorf("%w: simple child must own exactly one field", ErrInvalidArgument)
	}

	plan := newPlan(UpdatePlan, m.GetID(), fs.Shape)
	del := &queryir.Delete{
		Table: fs.Table,
		Where: columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeDelete, c.systemDeleteMappings(fs))),
	}

	name := dataset.Name(dataset.OpSimpleDelete, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeDelete, []queryir.Statement{del}); err != nil {
		return nil, err
	}
	plan.addStep(NewUpdateStep(name, c.params.Discriminator, c.modes.Delete, false, ""))
	return plan, nil
}

func (c *PlanCompiler) buildComplexInsert(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	plan := newPlan(InsertPlan, m.GetID(), fs.Shape)
	if err := c.addRevisionValidation(plan, fs); err != nil {
		return nil, err
	}

	fields := m.MappedFields(fs)
	multi := !fs.HasNestedSimpleChild()
	control := ""
	if len(fields) > 0 {
		control = m.ParamFor(fields[0].Name)
	}

	cols := columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeInsert, nil))
	cols = append(cols, fieldColumns(m, fields)...)
	insert := &queryir.Insert{Table: fs.Table, Columns: cols, ConflictKeys: []string{c.cols.ChildID}}

	name := dataset.Name(dataset.OpComplexInsert, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeInsert, []queryir.Statement{insert}); err != nil {
		return nil, err
	}
	plan.addStep(NewUpdateStep(name, c.params.Discriminator, c.modes.Insert, multi, control))

	touch, err := c.sysUpdateStep(dataset.OpComplexInsert, m.GetID(), fs)
	if err != nil {
		return nil, err
	}
	plan.addStep(touch)
	return plan, nil
}

func (c *PlanCompiler) buildComplexDelete(m *ir.DisplayMapping, fs *ir.FieldSet) (*Plan, error) {
	plan := newPlan(DeleteComplexChildPlan, m.GetID(), fs.Shape)
	if err := c.addRevisionValidation(plan, fs); err != nil {
		return nil, err
	}

	stmts := c.descendantDeletes(fs)
	stmts = append(stmts, &queryir.Delete{
		Table: fs.Table,
		Where: columnMapper(fs.Table, c.addTableKeys(fs, dataset.ModeDelete, c.systemDeleteMappings(fs))),
	})

	name := dataset.Name(dataset.OpComplexDelete, m.GetID(), false)
	if err := c.datasets.CreateDataset(name, dataset.ModeDelete, stmts); err != nil {
		return nil, err
	}
	plan.addStep(NewUpdateStep(name, c.params.Discriminator, c.modes.Delete, true, c.params.ChildID))

	touch, err := c.sysUpdateStep(dataset.OpComplexDelete, m.GetID(), fs)
	if err != nil {
		return nil, err
	}
	plan.addStep(touch)
	return plan, nil
}

// addRevisionValidation compiles the revision lookup against the root table
// and installs it as the plan's validation step.
func (c *PlanCompiler) addRevisionValidation(plan *Plan, fs *ir.FieldSet) error {
	root := fs.Root()
	lookup := &queryir.SelectRevision{
		Table:    root.Table,
		Revision: c.cols.Revision,
		Where:    []queryir.Column{{Name: c.cols.ContentID, Source: queryir.Param{Name: c.params.ContentID}}},
	}
	name := dataset.Name(dataset.OpRevision, plan.mappingID, false)
	if err := c.datasets.CreateDataset(name, dataset.ModeQuery, []queryir.Statement{lookup}); err != nil {
		return err
	}
	plan.validation = NewRevisionStep(name, c.params.Revision)
	return nil
}

// sysUpdateStep compiles the step that touches the root record's
// last-modified columns after a child mutation.
func (c *PlanCompiler) sysUpdateStep(op dataset.Operation, mappingID string, fs *ir.FieldSet) (Step, error) {
	root := fs.Root()
	update := &queryir.Update{
		Table: root.Table,
		Set:   columnMapper(root.Table, c.systemUpdateMappings(root)),
		Where: []queryir.Column{{Name: c.cols.ContentID, Source: queryir.Param{Name: c.params.ContentID}}},
	}
	name := dataset.Name(op, mappingID, true)
	if err := c.datasets.CreateDataset(name, dataset.ModeUpdate, []queryir.Statement{update}); err != nil {
		return nil, err
	}
	return NewUpdateStep(name, c.params.Discriminator, c.modes.Update, false, ""), nil
}

// descendantDeletes returns one delete per nested table of fs, deepest
// first. Rows nested directly under a complex child are matched by its
// child id.
func (c *PlanCompiler) descendantDeletes(fs *ir.FieldSet) []queryir.Statement {
	var stmts []queryir.Statement
	for _, d := range fs.Descendants() {
		mappings := []SystemMapping{
			NewSystemMapping(d.Table, c.cols.ContentID, queryir.Param{Name: c.params.ContentID}),
		}
		if fs.Shape == ir.ShapeComplexChild && d.Parent == fs {
			mappings = append(mappings,
				NewSystemMapping(d.Table, c.cols.ParentID, queryir.Param{Name: c.params.ChildID}))
		}
		stmts = append(stmts, &queryir.Delete{Table: d.Table, Where: columnMapper(d.Table, mappings)})
	}
	return stmts
}

func fieldColumns(m *ir.DisplayMapping, fields []ir.Field) []queryir.Column {
	cols := make([]queryir.Column, len(fields))
	for i, f := range fields {
		cols[i] = queryir.Column{Name: f.Column, Source: queryir.Param{Name: m.ParamFor(f.Name)}}
	}
	return cols
}
