package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name     string
	priority int
	order    *[]string
}

func (m *fakeModule) Name() string  { return m.name }
func (m *fakeModule) Priority() int { return m.priority }
func (m *fakeModule) Init(*ModuleContext) error {
	*m.order = append(*m.order, m.name)
	return nil
}

func TestInitModulesByPriority(t *testing.T) {
	saved := moduleRegistry
	moduleRegistry = make(map[string]Module)
	defer func() { moduleRegistry = saved }()

	var order []string
	Register(&fakeModule{name: "settlement", priority: 10, order: &order})
	Register(&fakeModule{name: "user", priority: 1, order: &order})
	Register(&fakeModule{name: "common", priority: 100, order: &order})
	Register(&fakeModule{name: "coupon", priority: 10, order: &order})

	require.NoError(t, InitModules(&ModuleContext{}))
	assert.Equal(t, []string{"user", "coupon", "settlement", "common"}, order)
}

func TestEventsFallsBackToNop(t *testing.T) {
	ctx := &ModuleContext{}
	assert.NotNil(t, ctx.Events())
}
