package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/heimdalr/dag"
)

// processConstBlocks evaluates every attribute of every const block into
// Constants. Constants may refer to each other in any order; they are
// evaluated in dependency order.
func (c *Config) processConstBlocks(blocks hcl.Blocks) hcl.Diagnostics {
	var diags hcl.Diagnostics
	consts := make(hcl.Attributes)

	for _, block := range blocks {
		attrs, attrDiags := block.Body.JustAttributes()
		diags = diags.Extend(attrDiags)

		for name, attr := range attrs {
			if existing, exists := consts[name]; exists {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate constant",
					Detail:   fmt.Sprintf("Constant %s is already defined at %v", name, existing.NameRange),
					Subject:  &attr.NameRange,
				})
				continue
			}
			if _, reserved := c.Constants[name]; reserved {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Reserved name",
					Detail:   fmt.Sprintf("%s is reserved and can't be used as a constant name", name),
					Subject:  &attr.NameRange,
				})
				continue
			}
			consts[name] = attr
		}
	}

	if diags.HasErrors() {
		return diags
	}

	ordered, sortDiags := SortAttributesByDependencies(consts)
	diags = diags.Extend(sortDiags)
	if diags.HasErrors() {
		return diags
	}

	for _, attr := range ordered {
		value, evalDiags := attr.Expr.Value(c.evalCtx)
		diags = diags.Extend(evalDiags)
		c.Constants[attr.Name] = value
	}

	return diags
}

// SortAttributesByDependencies orders attrs so that every attribute comes
// after the attributes its expression refers to. References to names outside
// attrs are left to the evaluation context.
func SortAttributesByDependencies(attrs hcl.Attributes) ([]*hcl.Attribute, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	graph := dag.NewDAG()

	for name, attr := range attrs {
		if err := graph.AddVertexByID(name, attr); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid constant",
				Detail:   fmt.Sprintf("Cannot order constant %s: %s", name, err),
				Subject:  &attr.NameRange,
			})
		}
	}

	for name, attr := range attrs {
		seen := make(map[string]bool)
		for _, traversal := range attr.Expr.Variables() {
			ref := traversal.RootName()
			if _, exists := attrs[ref]; !exists || seen[ref] {
				continue
			}
			seen[ref] = true

			if ref == name {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Constant %s refers to itself", name),
					Subject:  &attr.Range,
				})
				continue
			}

			if err := graph.AddEdge(ref, name); err != nil {
				diags = diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Circular dependency detected",
					Detail:   fmt.Sprintf("Constant %s depends on %s, which depends on it: %s", name, ref, err),
					Subject:  &attr.Range,
				})
			}
		}
	}

	if diags.HasErrors() {
		return nil, diags
	}

	var order evaluationOrder
	graph.OrderedWalk(&order)

	return order, diags
}

// evaluationOrder collects attributes as the graph walk reaches them.
type evaluationOrder []*hcl.Attribute

func (o *evaluationOrder) Visit(vertex dag.Vertexer) {
	_, value := vertex.Vertex()
	*o = append(*o, value.(*hcl.Attribute))
}
