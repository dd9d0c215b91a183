package system

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/forgegrid/internal/rules"
	"github.com/vk/forgegrid/internal/testutil"
)

type widget struct{ ID int }
type gadget struct{ ID int }

// mockAmbiguousModule registers two rules producing the same product so
// graph validation must reject the registry at startup.
type mockAmbiguousModule struct{}

func (m *mockAmbiguousModule) Register(r *rules.Registry) {
	body := func(tc rules.TaskContext, inputs []any) (any, error) {
		return widget{ID: 1}, nil
	}
	r.Register(&rules.Rule{Name: "make_widget_a", Output: rules.TypeOf[widget](), Body: body})
	r.Register(&rules.Rule{Name: "make_widget_b", Output: rules.TypeOf[widget](), Body: body})
	r.RegisterQuery(rules.Query{Output: rules.TypeOf[widget](), Subject: rules.TypeOf[rules.Unit]()})
}

// mockDanglingModule declares a dependency no rule can produce.
type mockDanglingModule struct{}

func (m *mockDanglingModule) Register(r *rules.Registry) {
	r.Register(&rules.Rule{
		Name:   "needs_gadget",
		Output: rules.TypeOf[widget](),
		Inputs: []reflect.Type{rules.TypeOf[gadget]()},
		Body: func(tc rules.TaskContext, inputs []any) (any, error) {
			return widget{}, nil
		},
	})
	r.RegisterQuery(rules.Query{Output: rules.TypeOf[widget](), Subject: rules.TypeOf[rules.Unit]()})
}

// Ambiguous rule sets are rejected before any execution starts.
func TestSystem_AmbiguousRulesFailStartup(t *testing.T) {
	res := testutil.RunEngineTest(t, nil, "", &mockAmbiguousModule{})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "application startup panicked")
	assert.Contains(t, res.Err.Error(), "ambiguous rules")
	assert.Contains(t, res.Err.Error(), "make_widget_a")
	assert.Contains(t, res.Err.Error(), "make_widget_b")
}

// A dependency with no producing rule is rejected before any execution
// starts, naming the requester.
func TestSystem_MissingRuleFailsStartup(t *testing.T) {
	res := testutil.RunEngineTest(t, nil, "", &mockDanglingModule{})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "no rule produces")
	assert.Contains(t, res.Err.Error(), "needs_gadget")
}

// A workspace query naming a rule that does not exist fails the run, not
// the startup.
func TestSystem_UnknownQueryRuleFailsRun(t *testing.T) {
	workspace := `
query "broken" {
  rule = "does_not_exist"
}
`
	res := testutil.RunEngineTest(t, nil, workspace)

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "unknown rule 'does_not_exist'")
	assert.NotContains(t, res.Err.Error(), "panicked")
}
