package modify

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/roach88/modplan/internal/ir"
)

// SQLSource resolves resource names to their statement texts.
type SQLSource interface {
	SQL(names ...string) []string
}

// FormatPlanSet writes a human-readable listing of every plan in the set,
// in plan type order. When sql is non-nil each resource is followed by its
// statements.
func FormatPlanSet(w io.Writer, set *PlanSet, sql SQLSource) error {
	first := true
	for _, t := range PlanTypes {
		p, ok := set.GetPlan(t)
		if !ok {
			continue
		}
		if !first {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		first = false
		if err := FormatPlan(w, p, sql); err != nil {
			return err
		}
	}
	return nil
}

// FormatPlan writes a human-readable listing of one plan.
func FormatPlan(w io.Writer, p *Plan, sql SQLSource) error {
	var b strings.Builder
	fmt.Fprintf(&b, "plan %s mapping=%s shape=%s\n", p.planType, p.mappingID, p.shape)

	if p.validation != nil {
		d := p.validation.Describe()
		fmt.Fprintf(&b, "  validate %s\n", formatStep(d))
		writeSQL(&b, sql, d.Resource)
	}
	for i, s := range p.steps {
		d := s.Describe()
		fmt.Fprintf(&b, "  step %d %s\n", i+1, formatStep(d))
		writeSQL(&b, sql, d.Resource)
	}
	if len(p.binary) > 0 {
		names := make([]string, 0, len(p.binary))
		for f := range p.binary {
			names = append(names, f)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, f := range names {
			parts[i] = f + "=" + p.binary[f]
		}
		fmt.Fprintf(&b, "  binary %s\n", strings.Join(parts, " "))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func formatStep(d StepDescription) string {
	switch d.Kind {
	case "conditional":
		inner := ""
		if d.Inner != nil {
			inner = formatStep(*d.Inner)
		}
		return fmt.Sprintf("when %s: %s", strings.Join(d.Conditions, " && "), inner)
	case "revision":
		return fmt.Sprintf("revision %s param=%s", d.Resource, d.Control)
	default:
		s := fmt.Sprintf("%s %s %s=%s", d.Kind, d.Resource, d.DiscriminatorParam, d.Discriminator)
		if d.AllowMultiple {
			s += " multi"
			if d.Control != "" {
				s += " control=" + d.Control
			}
		}
		return s
	}
}

func writeSQL(b *strings.Builder, sql SQLSource, resource string) {
	if sql == nil {
		return
	}
	for _, q := range sql.SQL(resource) {
		fmt.Fprintf(b, "    %s\n", q)
	}
}

// Describe returns the plan as a canonical-JSON-ready map.
func (p *Plan) Describe() map[string]any {
	steps := make([]any, len(p.steps))
	for i, s := range p.steps {
		steps[i] = describeStep(s.Describe())
	}
	binary := make(map[string]any, len(p.binary))
	for f, param := range p.binary {
		binary[f] = param
	}
	out := map[string]any{
		"type":    p.planType.String(),
		"mapping": p.mappingID,
		"shape":   p.shape.String(),
		"steps":   steps,
		"binary":  binary,
	}
	if p.validation != nil {
		out["validation"] = describeStep(p.validation.Describe())
	}
	return out
}

func describeStep(d StepDescription) map[string]any {
	out := map[string]any{
		"kind":     d.Kind,
		"resource": d.Resource,
	}
	if d.DiscriminatorParam != "" {
		out["discriminator_param"] = d.DiscriminatorParam
		out["discriminator"] = d.Discriminator
	}
	if d.Kind == "update" {
		out["allow_multiple"] = d.AllowMultiple
	}
	if d.Control != "" {
		out["control"] = d.Control
	}
	if len(d.Conditions) > 0 {
		conds := make([]any, len(d.Conditions))
		for i, c := range d.Conditions {
			conds[i] = c
		}
		out["conditions"] = conds
	}
	if d.Inner != nil {
		out["inner"] = describeStep(*d.Inner)
	}
	return out
}

// Fingerprint returns a stable hash of the plan's description. Plans
// compiled from the same definition always share a fingerprint.
func (p *Plan) Fingerprint() (string, error) {
	return ir.Fingerprint(ir.DomainPlan, p.Describe())
}
