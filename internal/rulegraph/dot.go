package rulegraph

import (
	"fmt"
	"io"
	"sort"
)

// WriteDot renders the frozen graph in Graphviz dot format: one node per
// validated edge labeled with the chosen rule, connected to the edges of the
// rule's own requirements. Output is deterministic for golden testing.
func (g *Graph) WriteDot(w io.Writer) error {
	type row struct {
		key  edgeKey
		name string
	}
	var all []row
	for k, r := range g.edges {
		all = append(all, row{key: k, name: r.Name})
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.name != b.name {
			return a.name < b.name
		}
		if a.key.output.String() != b.key.output.String() {
			return a.key.output.String() < b.key.output.String()
		}
		return a.key.subject.String() < b.key.subject.String()
	})

	if _, err := fmt.Fprintln(w, "digraph rules {"); err != nil {
		return err
	}
	fmt.Fprintln(w, "  rankdir=LR;")
	fmt.Fprintln(w, "  node [shape=box];")

	id := func(k edgeKey) string {
		return fmt.Sprintf("%q", fmt.Sprintf("%s for %s", k.output, k.subject))
	}

	for _, r := range all {
		fmt.Fprintf(w, "  %s [label=%q];\n", id(r.key), fmt.Sprintf("%s\n%s for %s", r.name, r.key.output, r.key.subject))
	}
	for _, r := range all {
		rule := g.edges[r.key]
		for _, in := range rule.Inputs {
			dep := edgeKey{in, r.key.subject}
			if _, ok := g.edges[dep]; ok {
				fmt.Fprintf(w, "  %s -> %s;\n", id(r.key), id(dep))
			}
		}
		for _, get := range rule.Gets {
			dep := edgeKey{get.Output, get.Subject}
			if _, ok := g.edges[dep]; ok {
				fmt.Fprintf(w, "  %s -> %s [style=dashed];\n", id(r.key), id(dep))
			}
		}
	}

	_, err := fmt.Fprintln(w, "}")
	return err
}
