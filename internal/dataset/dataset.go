// Package dataset holds named backend resources: compiled statement lists
// that the engine runs when a plan step dispatches by name.
//
// Resource names follow "<Operation><MappingID>", with a "SysUpdate" suffix
// for steps that synchronise the owning parent's bookkeeping columns.
package dataset

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/roach88/modplan/internal/queryir"
	"github.com/roach88/modplan/internal/querysql"
)

// Mode is the kind of work a dataset performs.
type Mode string

const (
	ModeInsert Mode = "insert"
	ModeUpdate Mode = "update"
	ModeDelete Mode = "delete"
	// ModeQuery datasets return a single revision value instead of
	// affecting rows.
	ModeQuery Mode = "query"
)

// Operation is the resource-name prefix of a dataset.
type Operation string

const (
	OpInsert        Operation = "Insert"
	OpDelete        Operation = "Delete"
	OpSimpleInsert  Operation = "SimpleInsert"
	OpSimpleDelete  Operation = "SimpleDelete"
	OpComplexInsert Operation = "ComplexInsert"
	OpComplexDelete Operation = "ComplexDelete"
	OpRevision      Operation = "Revision"
)

// SysUpdateSuffix marks parent-synchronisation datasets.
const SysUpdateSuffix = "SysUpdate"

// Name derives a resource name from an operation and a mapping id.
func Name(op Operation, mappingID string, sysUpdate bool) string {
	name := string(op) + mappingID
	if sysUpdate {
		name += SysUpdateSuffix
	}
	return name
}

// Dataset is one named, backend-executable resource.
type Dataset struct {
	Name       string
	Mode       Mode
	Statements []querysql.Compiled
}

// SQL returns the statement texts in execution order.
func (d *Dataset) SQL() []string {
	out := make([]string, len(d.Statements))
	for i, s := range d.Statements {
		out[i] = s.SQL
	}
	return out
}

// Registry maps resource names to datasets. It is written while plans are
// compiled and read concurrently by requests afterwards.
type Registry struct {
	mu       sync.RWMutex
	datasets map[string]*Dataset
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{datasets: make(map[string]*Dataset)}
}

// Register adds a dataset. Registering an identical dataset under the same
// name again is a no-op; a different dataset under a used name is an error.
func (r *Registry) Register(ds *Dataset) error {
	if ds == nil || ds.Name == "" {
		return fmt.Errorf("register dataset: missing name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.datasets[ds.Name]; ok {
		if existing.Mode == ds.Mode && slices.Equal(existing.SQL(), ds.SQL()) {
			return nil
		}
		return fmt.Errorf("register dataset: %q already registered with different statements", ds.Name)
	}
	r.datasets[ds.Name] = ds
	return nil
}

// Get returns the dataset registered under name.
func (r *Registry) Get(name string) (*Dataset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ds, ok := r.datasets[name]
	return ds, ok
}

// Names returns all registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.datasets))
	for n := range r.datasets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SQL returns the statement texts of the named datasets, for warming a
// statement cache. Unknown names are skipped.
func (r *Registry) SQL(names ...string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, n := range names {
		if ds, ok := r.datasets[n]; ok {
			out = append(out, ds.SQL()...)
		}
	}
	return out
}

// Creator compiles mutation IR statements into datasets and registers them.
type Creator struct {
	compiler *querysql.SQLCompiler
	registry *Registry
}

// NewCreator creates a Creator that registers into registry.
func NewCreator(compiler *querysql.SQLCompiler, registry *Registry) *Creator {
	return &Creator{compiler: compiler, registry: registry}
}

// CreateDataset compiles stmts and registers them under name.
func (c *Creator) CreateDataset(name string, mode Mode, stmts []queryir.Statement) error {
	if len(stmts) == 0 {
		return fmt.Errorf("create dataset %s: no statements", name)
	}
	if mode == ModeQuery && len(stmts) != 1 {
		return fmt.Errorf("create dataset %s: query datasets hold exactly one statement", name)
	}

	ds := &Dataset{Name: name, Mode: mode, Statements: make([]querysql.Compiled, 0, len(stmts))}
	for i, stmt := range stmts {
		compiled, err := c.compiler.Compile(stmt)
		if err != nil {
			return fmt.Errorf("create dataset %s: statement %d: %w", name, i, err)
		}
		if compiled.Query != (mode == ModeQuery) {
			return fmt.Errorf("create dataset %s: statement %d does not match mode %s", name, i, mode)
		}
		ds.Statements = append(ds.Statements, compiled)
	}
	return c.registry.Register(ds)
}

// Registry returns the registry the creator writes to.
func (c *Creator) Registry() *Registry {
	return c.registry
}
