package rulegraph

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/rules"
)

// Product types for a miniature compile pipeline.
type (
	srcPath    string
	parseTree  struct{ path string }
	objectCode struct{ path string }
	binary     struct{ path string }
)

func noopBody(tc rules.TaskContext, inputs []any) (any, error) { return nil, nil }

func pipelineRegistry() *rules.Registry {
	reg := rules.New()
	reg.Register(&rules.Rule{
		Name:   "parse",
		Output: rules.TypeOf[parseTree](),
		Inputs: []reflect.Type{rules.TypeOf[srcPath]()},
		Body:   noopBody,
	})
	reg.Register(&rules.Rule{
		Name:   "compile",
		Output: rules.TypeOf[objectCode](),
		Inputs: []reflect.Type{rules.TypeOf[parseTree]()},
		Body:   noopBody,
	})
	reg.Register(&rules.Rule{
		Name:   "link",
		Output: rules.TypeOf[binary](),
		Inputs: []reflect.Type{rules.TypeOf[objectCode]()},
		Gets: []rules.GetSpec{
			{Output: rules.TypeOf[parseTree](), Subject: rules.TypeOf[srcPath]()},
		},
		Body: noopBody,
	})
	reg.RegisterQuery(rules.Query{Output: rules.TypeOf[binary](), Subject: rules.TypeOf[srcPath]()})
	return reg
}

func TestBuildResolvesReachableEdges(t *testing.T) {
	g, err := Build(context.Background(), pipelineRegistry())
	require.NoError(t, err)
	assert.Equal(t, 3, g.Len())

	rule, err := g.RuleFor(rules.TypeOf[binary](), rules.TypeOf[srcPath]())
	require.NoError(t, err)
	assert.Equal(t, "link", rule.Name)

	rule, err = g.RuleFor(rules.TypeOf[parseTree](), rules.TypeOf[srcPath]())
	require.NoError(t, err)
	assert.Equal(t, "parse", rule.Name)

	assert.True(t, g.HasEdge(rules.TypeOf[objectCode](), rules.TypeOf[srcPath]()))
	assert.False(t, g.HasEdge(rules.TypeOf[srcPath](), rules.TypeOf[binary]()), "edges are directional")
}

func TestBuildMissingRule(t *testing.T) {
	reg := rules.New()
	reg.Register(&rules.Rule{
		Name:   "link",
		Output: rules.TypeOf[binary](),
		Inputs: []reflect.Type{rules.TypeOf[objectCode]()}, // nothing produces objectCode
		Body:   noopBody,
	})
	reg.RegisterQuery(rules.Query{Output: rules.TypeOf[binary](), Subject: rules.TypeOf[srcPath]()})

	_, err := Build(context.Background(), reg)
	require.Error(t, err)

	var missing *NoApplicableRuleError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "link", missing.Requester)
	assert.Equal(t, rules.TypeOf[objectCode](), missing.Output)
}

func TestBuildAmbiguousRules(t *testing.T) {
	reg := rules.New()
	reg.Register(&rules.Rule{
		Name:   "parse_fast",
		Output: rules.TypeOf[parseTree](),
		Inputs: []reflect.Type{rules.TypeOf[srcPath]()},
		Body:   noopBody,
	})
	reg.Register(&rules.Rule{
		Name:   "parse_slow",
		Output: rules.TypeOf[parseTree](),
		Inputs: []reflect.Type{rules.TypeOf[srcPath]()},
		Body:   noopBody,
	})
	reg.RegisterQuery(rules.Query{Output: rules.TypeOf[parseTree](), Subject: rules.TypeOf[srcPath]()})

	_, err := Build(context.Background(), reg)
	require.Error(t, err)

	var ambiguous *AmbiguousRuleError
	require.True(t, errors.As(err, &ambiguous))
	assert.ElementsMatch(t, []string{"parse_fast", "parse_slow"}, ambiguous.Rules)
}

func TestRuleForUnvalidatedEdge(t *testing.T) {
	g, err := Build(context.Background(), pipelineRegistry())
	require.NoError(t, err)

	_, err = g.RuleFor(rules.TypeOf[binary](), rules.TypeOf[rules.Unit]())
	var unvalidated *UnvalidatedEdgeError
	require.True(t, errors.As(err, &unvalidated))
}

func TestBuildReportsAllErrorsAtOnce(t *testing.T) {
	reg := rules.New()
	reg.Register(&rules.Rule{
		Name:   "dup_a",
		Output: rules.TypeOf[parseTree](),
		Body:   noopBody,
	})
	reg.Register(&rules.Rule{
		Name:   "dup_b",
		Output: rules.TypeOf[parseTree](),
		Body:   noopBody,
	})
	reg.RegisterQuery(rules.Query{Output: rules.TypeOf[parseTree](), Subject: rules.TypeOf[srcPath]()})
	reg.RegisterQuery(rules.Query{Output: rules.TypeOf[binary](), Subject: rules.TypeOf[srcPath]()})

	_, err := Build(context.Background(), reg)
	require.Error(t, err)

	var ambiguous *AmbiguousRuleError
	assert.True(t, errors.As(err, &ambiguous))
	var missing *NoApplicableRuleError
	assert.True(t, errors.As(err, &missing))
}
