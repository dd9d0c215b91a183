// Package wordcount provides rules that count words, lines and distinct
// vocabulary in text files, per file and aggregated across a directory.
package wordcount

import (
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/vk/forgegrid/internal/rules"
)

// Counts is the per-file product.
type Counts struct {
	Path  string
	Words int
	Lines int
	Bytes int
}

// DirTotals aggregates Counts across the files directly under a directory.
type DirTotals struct {
	Dir   string
	Files int
	Words int
	Lines int
}

// Module registers the wordcount rules.
type Module struct{}

// Register wires the rules and their root queries into the registry.
func (m *Module) Register(r *rules.Registry) {
	r.Register(&rules.Rule{
		Name:   "word_count",
		Output: rules.TypeOf[Counts](),
		Inputs: []reflect.Type{rules.TypeOf[string]()},
		Body:   wordCount,
	})
	r.RegisterQuery(rules.Query{
		Output:  rules.TypeOf[Counts](),
		Subject: rules.TypeOf[string](),
	})

	r.Register(&rules.Rule{
		Name:   "dir_totals",
		Output: rules.TypeOf[DirTotals](),
		Inputs: []reflect.Type{rules.TypeOf[string]()},
		Gets: []rules.GetSpec{
			{Output: rules.TypeOf[Counts](), Subject: rules.TypeOf[string]()},
		},
		Body: dirTotals,
	})
	r.RegisterQuery(rules.Query{
		Output:  rules.TypeOf[DirTotals](),
		Subject: rules.TypeOf[string](),
	})
}

func wordCount(tc rules.TaskContext, inputs []any) (any, error) {
	p := inputs[0].(string)
	content, err := tc.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("read '%s': %w", p, err)
	}

	text := string(content.Bytes)
	counts := Counts{
		Path:  p,
		Words: len(strings.Fields(text)),
		Bytes: len(content.Bytes),
	}
	if len(text) > 0 {
		counts.Lines = strings.Count(text, "\n")
		if !strings.HasSuffix(text, "\n") {
			counts.Lines++
		}
	}
	return counts, nil
}

func dirTotals(tc rules.TaskContext, inputs []any) (any, error) {
	dir := inputs[0].(string)
	listing, err := tc.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list '%s': %w", dir, err)
	}

	reqs := make([]rules.Request, 0, len(listing.Names))
	for _, name := range listing.Names {
		stat, err := tc.Stat(path.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if stat.IsDir {
			continue
		}
		reqs = append(reqs, rules.Request{
			Output:  rules.TypeOf[Counts](),
			Subject: path.Join(dir, name),
		})
	}
	products, err := tc.GetAll(reqs)
	if err != nil {
		return nil, err
	}

	totals := DirTotals{Dir: dir, Files: len(products)}
	for _, product := range products {
		c := product.(Counts)
		totals.Words += c.Words
		totals.Lines += c.Lines
	}
	return totals, nil
}
