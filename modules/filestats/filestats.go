// Package filestats provides rules that summarize files and directories:
// per-file metadata with content digests, and aggregated directory reports
// computed by fanning out over a listing.
package filestats

import (
	"fmt"
	"path"
	"reflect"

	"github.com/vk/forgegrid/internal/rules"
)

// Summary is the product of inspecting one file.
type Summary struct {
	Path   string
	Size   int64
	Digest string
	IsDir  bool
}

// Report aggregates the Summaries of every file directly under a directory.
type Report struct {
	Dir        string
	Files      int
	TotalBytes int64
	Largest    string
}

// Module registers the filestats rules.
type Module struct{}

// Register wires the rules and their root queries into the registry.
func (m *Module) Register(r *rules.Registry) {
	r.Register(&rules.Rule{
		Name:   "file_summary",
		Output: rules.TypeOf[Summary](),
		Inputs: []reflect.Type{rules.TypeOf[string]()},
		Body:   fileSummary,
	})
	r.RegisterQuery(rules.Query{
		Output:  rules.TypeOf[Summary](),
		Subject: rules.TypeOf[string](),
	})

	r.Register(&rules.Rule{
		Name:   "dir_report",
		Output: rules.TypeOf[Report](),
		Inputs: []reflect.Type{rules.TypeOf[string]()},
		Gets: []rules.GetSpec{
			{Output: rules.TypeOf[Summary](), Subject: rules.TypeOf[string]()},
		},
		Body: dirReport,
	})
	r.RegisterQuery(rules.Query{
		Output:  rules.TypeOf[Report](),
		Subject: rules.TypeOf[string](),
	})
}

func fileSummary(tc rules.TaskContext, inputs []any) (any, error) {
	p := inputs[0].(string)
	stat, err := tc.Stat(p)
	if err != nil {
		return nil, fmt.Errorf("stat '%s': %w", p, err)
	}
	sum := Summary{Path: p, Size: stat.Size, IsDir: stat.IsDir}
	if !stat.IsDir {
		content, err := tc.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read '%s': %w", p, err)
		}
		sum.Digest = content.Digest.Short()
	}
	return sum, nil
}

func dirReport(tc rules.TaskContext, inputs []any) (any, error) {
	dir := inputs[0].(string)
	listing, err := tc.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list '%s': %w", dir, err)
	}

	reqs := make([]rules.Request, 0, len(listing.Names))
	for _, name := range listing.Names {
		reqs = append(reqs, rules.Request{
			Output:  rules.TypeOf[Summary](),
			Subject: path.Join(dir, name),
		})
	}
	products, err := tc.GetAll(reqs)
	if err != nil {
		return nil, err
	}

	report := Report{Dir: dir}
	var largest int64 = -1
	for _, product := range products {
		sum := product.(Summary)
		if sum.IsDir {
			continue
		}
		report.Files++
		report.TotalBytes += sum.Size
		if sum.Size > largest {
			largest = sum.Size
			report.Largest = sum.Path
		}
	}
	return report, nil
}
