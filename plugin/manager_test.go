package plugin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockConfig is the decoded configuration of a MockFactory instance.
type MockConfig struct {
	Tag     string        `mapstructure:"tag"`
	Region  string        `mapstructure:"region"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// MockFactory records what the manager hands it.
type MockFactory struct {
	PType    Type
	PName    string
	SetupErr error

	SetupCount   int
	DestroyCount int
	LastCfg      *MockConfig
}

func (m *MockFactory) Type() Type      { return m.PType }
func (m *MockFactory) Name() string    { return m.PName }
func (m *MockFactory) ConfigType() any { return &MockConfig{} }

func (m *MockFactory) Setup(cfg any) (Plugin, error) {
	if m.SetupErr != nil {
		return nil, m.SetupErr
	}
	m.SetupCount++
	m.LastCfg = cfg.(*MockConfig)
	return &MockPlugin{FName: m.PName}, nil
}

func (m *MockFactory) Destroy(Plugin) {
	m.DestroyCount++
}

// MockPlugin is a plugin instance built by MockFactory.
type MockPlugin struct {
	FName string
}

func (mp *MockPlugin) FactoryName() string {
	return mp.FName
}

func TestManager(t *testing.T) {
	t.Run("RegisterFactory", func(t *testing.T) {
		factory := &MockFactory{PType: Sender, PName: "cloudwatch"}
		manager := NewManager()
		manager.RegisterFactory(factory)
		assert.Equal(t, factory, manager.factories[Sender]["cloudwatch"])
	})

	t.Run("SetupAndGetPlugins", func(t *testing.T) {
		cw := &MockFactory{PType: Sender, PName: "cloudwatch"}
		prom := &MockFactory{PType: Sender, PName: "prometheus"}
		manager := NewManager()
		manager.RegisterFactory(cw)
		manager.RegisterFactory(prom)

		err := manager.SetupPlugins(map[string]any{
			"sender": map[string]any{
				"cloudwatch": map[string]any{
					"tag":     "default",
					"region":  "eu-west-1",
					"timeout": "3s",
				},
				"prometheus": nil,
			},
		})
		require.NoError(t, err)

		require.NotNil(t, cw.LastCfg)
		assert.Equal(t, "eu-west-1", cw.LastCfg.Region)
		assert.Equal(t, 3*time.Second, cw.LastCfg.Timeout)
		assert.Equal(t, 1, prom.SetupCount)

		p, err := manager.GetPlugin(Sender, "default")
		require.NoError(t, err)
		assert.Equal(t, "cloudwatch", p.FactoryName())

		dp, err := manager.GetDefaultPlugin(Sender)
		require.NoError(t, err)
		assert.Equal(t, p, dp)

		np, err := manager.GetPlugin(Sender, "prometheus")
		require.NoError(t, err)
		assert.Equal(t, "prometheus", np.FactoryName())

		assert.Equal(t, []string{"default", "prometheus"}, manager.Names(Sender))
	})

	t.Run("UnknownTypeIgnored", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Sender, PName: "cloudwatch"})

		err := manager.SetupPlugins(map[string]any{
			"tracer": map[string]any{"zipkin": map[string]any{}},
		})
		require.NoError(t, err)
		assert.Empty(t, manager.Names(Sender))
	})

	t.Run("ErrorOnDuplicateTag", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Sender, PName: "cloudwatch"})
		manager.RegisterFactory(&MockFactory{PType: Sender, PName: "prometheus"})

		err := manager.SetupPlugins(map[string]any{
			"sender": map[string]any{
				"cloudwatch": map[string]any{"tag": "default"},
				"prometheus": map[string]any{"tag": "default"},
			},
		})
		assert.ErrorIs(t, err, ErrDuplicatePlugin)
	})

	t.Run("ErrorOnMissingFactory", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Sender, PName: "cloudwatch"})

		err := manager.SetupPlugins(map[string]any{
			"sender": map[string]any{"nonexistent": map[string]any{}},
		})
		assert.ErrorIs(t, err, ErrPluginNotFound)

		_, err = manager.GetPlugin(Sender, "cloudwatch")
		assert.ErrorIs(t, err, ErrPluginNotFound)
	})

	t.Run("ErrorOnSetup", func(t *testing.T) {
		manager := NewManager()
		manager.RegisterFactory(&MockFactory{PType: Sender, PName: "cloudwatch", SetupErr: errors.New("no credentials")})

		err := manager.SetupPlugins(map[string]any{
			"sender": map[string]any{"cloudwatch": map[string]any{}},
		})
		assert.ErrorIs(t, err, ErrFactorySetup)
		assert.Contains(t, err.Error(), "no credentials")
	})

	t.Run("ConfigDecoding", func(t *testing.T) {
		factory := &MockFactory{PType: Sender, PName: "cloudwatch"}

		t.Run("InvalidType", func(t *testing.T) {
			manager := NewManager()
			manager.RegisterFactory(factory)
			err := manager.SetupPlugins(map[string]any{
				"sender": map[string]any{
					"cloudwatch": map[string]any{"region": 123},
				},
			})
			assert.ErrorIs(t, err, ErrConfigDecode)
		})

		t.Run("InvalidTypeMap", func(t *testing.T) {
			manager := NewManager()
			manager.RegisterFactory(factory)
			err := manager.SetupPlugins(map[string]any{"sender": "not-a-map"})
			assert.ErrorIs(t, err, ErrInvalidConfigFormat)
		})

		t.Run("InvalidInstanceConfig", func(t *testing.T) {
			manager := NewManager()
			manager.RegisterFactory(factory)
			err := manager.SetupPlugins(map[string]any{
				"sender": map[string]any{"cloudwatch": []string{"region"}},
			})
			assert.ErrorIs(t, err, ErrInvalidConfigFormat)
		})
	})

	t.Run("Destroy", func(t *testing.T) {
		factory := &MockFactory{PType: Sender, PName: "cloudwatch"}
		manager := NewManager()
		manager.RegisterFactory(factory)
		require.NoError(t, manager.SetupPlugins(map[string]any{
			"sender": map[string]any{"cloudwatch": map[string]any{}},
		}))

		manager.Destroy()
		assert.Equal(t, 1, factory.DestroyCount)
		_, err := manager.GetPlugin(Sender, "cloudwatch")
		assert.ErrorIs(t, err, ErrPluginNotFound)
	})
}
