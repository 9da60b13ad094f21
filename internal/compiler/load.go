package compiler

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/modplan/internal/ir"
)

// DefinitionsPath is the top-level CUE field holding content types.
const DefinitionsPath = "contentType"

// LoadDir builds the CUE package in dir.
func LoadDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}

	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// CompileString builds inline CUE source, as embedded in test scenarios.
func CompileString(src string) (cue.Value, error) {
	v := cuecontext.New().CompileString(src)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError(err)
	}
	return v, nil
}

// CompileAll compiles every content type under DefinitionsPath in
// declaration order. A type that fails to compile is reported and skipped;
// the remaining types are still returned.
func CompileAll(v cue.Value) ([]*ir.ContentType, []error) {
	root := v.LookupPath(cue.ParsePath(DefinitionsPath))
	if !root.Exists() {
		return nil, []error{fmt.Errorf("no %s definitions found", DefinitionsPath)}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var out []*ir.ContentType
	var errs []error
	for iter.Next() {
		ct, err := CompileContentType(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("%s.%s: %w", DefinitionsPath, iter.Label(), err))
			continue
		}
		out = append(out, ct)
	}
	return out, errs
}

// Definitions compiles and validates every content type in v. Any compile
// or validation error fails the whole set.
func Definitions(v cue.Value, cols ir.SystemColumns) ([]*ir.ContentType, error) {
	types, errs := CompileAll(v)
	for _, ct := range types {
		for _, ve := range Validate(ct, cols) {
			errs = append(errs, fmt.Errorf("%s: %w", ct.Name, ve))
		}
	}
	for _, ve := range ValidateSet(types) {
		errs = append(errs, ve)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return types, nil
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
