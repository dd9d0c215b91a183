package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/forgegrid/internal/ctxlog"
)

// fileRoot mirrors the top-level structure of a workspace HCL file.
type fileRoot struct {
	Engine  *engineBlock `hcl:"engine,block"`
	Watch   *watchBlock  `hcl:"watch,block"`
	Queries []queryBlock `hcl:"query,block"`
}

type engineBlock struct {
	Workers     *int    `hcl:"workers,optional"`
	LogLevel    *string `hcl:"log_level,optional"`
	LogFormat   *string `hcl:"log_format,optional"`
	MetricsPort *int    `hcl:"metrics_port,optional"`
	CacheDir    *string `hcl:"cache_dir,optional"`
}

type watchBlock struct {
	Paths      []string `hcl:"paths"`
	DebounceMS *int     `hcl:"debounce_ms,optional"`
}

type queryBlock struct {
	Name    string    `hcl:"name,label"`
	Rule    string    `hcl:"rule"`
	Subject cty.Value `hcl:"subject,optional"`
}

// Load parses a workspace HCL file into a Model, applying defaults for
// anything the file does not set.
func Load(ctx context.Context, path string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading workspace configuration.", "path", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", path, diags)
	}
	return decode(file.Body, path)
}

// LoadBytes parses workspace HCL from memory; the name is used in
// diagnostics only.
func LoadBytes(ctx context.Context, src []byte, name string) (*Model, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, name)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parsing %s: %w", name, diags)
	}
	return decode(file.Body, name)
}

func decode(body hcl.Body, name string) (*Model, error) {
	var root fileRoot
	if diags := gohcl.DecodeBody(body, nil, &root); diags.HasErrors() {
		return nil, fmt.Errorf("decoding %s: %w", name, diags)
	}

	model := Defaults()

	if eb := root.Engine; eb != nil {
		if eb.Workers != nil {
			model.Engine.Workers = *eb.Workers
		}
		if eb.LogLevel != nil {
			model.Engine.LogLevel = *eb.LogLevel
		}
		if eb.LogFormat != nil {
			model.Engine.LogFormat = *eb.LogFormat
		}
		if eb.MetricsPort != nil {
			model.Engine.MetricsPort = *eb.MetricsPort
		}
		if eb.CacheDir != nil {
			model.Engine.CacheDir = *eb.CacheDir
		}
	}

	if wb := root.Watch; wb != nil {
		model.Watch.Enabled = true
		model.Watch.Paths = wb.Paths
		if wb.DebounceMS != nil {
			model.Watch.Debounce = time.Duration(*wb.DebounceMS) * time.Millisecond
		}
	}

	for _, qb := range root.Queries {
		model.Queries = append(model.Queries, Query{
			Name:    qb.Name,
			Rule:    qb.Rule,
			Subject: qb.Subject,
		})
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", name, err)
	}
	return &model, nil
}
