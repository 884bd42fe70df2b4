package plugin

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"
)

const (
	// DefaultInsName is the tag for the default plugin instance.
	DefaultInsName = "default"
)

var (
	ErrPluginNotFound      = errors.New("plugin not found")
	ErrDuplicatePlugin     = errors.New("duplicate plugin")
	ErrInvalidConfigFormat = errors.New("invalid config format")
	ErrConfigDecode        = errors.New("config decode error")
	ErrFactorySetup        = errors.New("factory setup error")
)

type instance struct {
	factory Factory
	plugin  Plugin
}

// Manager owns the registered factories and the instances built from them.
type Manager struct {
	factories map[Type]map[string]Factory
	plugins   map[Type]map[string]instance
	lock      sync.RWMutex
}

// NewManager creates and returns a new Manager instance.
func NewManager() *Manager {
	return &Manager{
		factories: make(map[Type]map[string]Factory),
		plugins:   make(map[Type]map[string]instance),
	}
}

// RegisterFactory registers a plugin factory with the manager. A later
// factory with the same type and name replaces the earlier one.
func (m *Manager) RegisterFactory(f Factory) {
	m.lock.Lock()
	defer m.lock.Unlock()

	factories, ok := m.factories[f.Type()]
	if !ok {
		factories = make(map[string]Factory)
		m.factories[f.Type()] = factories
	}
	factories[f.Name()] = f
}

// SetupPlugins builds every instance described by pluginConf, which maps
// plugin type -> factory name -> factory config. Types without a registered
// factory are ignored. An instance is keyed by its "tag" entry, or by the
// factory name when untagged.
func (m *Manager) SetupPlugins(pluginConf map[string]any) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	// Sorted so that errors and duplicate detection do not depend on map order.
	typeNames := make([]string, 0, len(pluginConf))
	for typeName := range pluginConf {
		typeNames = append(typeNames, typeName)
	}
	sort.Strings(typeNames)

	for _, typeName := range typeNames {
		pluginType := Type(typeName)
		factories, ok := m.factories[pluginType]
		if !ok {
			continue
		}

		pluginsMap, ok := pluginConf[typeName].(map[string]any)
		if !ok {
			return fmt.Errorf("%w for plugin type '%s'", ErrInvalidConfigFormat, pluginType)
		}

		names := make([]string, 0, len(pluginsMap))
		for name := range pluginsMap {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			if err := m.setupOne(pluginType, factories, name, pluginsMap[name]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Manager) setupOne(pluginType Type, factories map[string]Factory, name string, config any) error {
	factory, ok := factories[name]
	if !ok {
		return fmt.Errorf("%w: plugin factory not found for type '%s' and name '%s'", ErrPluginNotFound, pluginType, name)
	}

	var configMap map[string]any
	switch c := config.(type) {
	case map[string]any:
		configMap = c
	case nil:
		configMap = map[string]any{}
	default:
		return fmt.Errorf("%w for plugin '%s':'%s'", ErrInvalidConfigFormat, pluginType, name)
	}

	targetConfig := factory.ConfigType()
	if targetConfig == nil {
		return fmt.Errorf("%w: plugin factory '%s':'%s' did not provide a configuration type", ErrInvalidConfigFormat, pluginType, name)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: false,
		Result:           targetConfig,
	})
	if err != nil {
		return fmt.Errorf("%w: failed to create config decoder for plugin '%s':'%s': %v", ErrConfigDecode, pluginType, name, err)
	}
	if err := decoder.Decode(configMap); err != nil {
		return fmt.Errorf("%w: failed to decode config for plugin '%s':'%s': %v", ErrConfigDecode, pluginType, name, err)
	}

	key := name
	if tag, ok := configMap["tag"].(string); ok && tag != "" {
		key = tag
	}
	if _, exists := m.plugins[pluginType][key]; exists {
		return fmt.Errorf("%w: duplicate plugin tag/name '%s' for type '%s'", ErrDuplicatePlugin, key, pluginType)
	}

	ins, err := factory.Setup(targetConfig)
	if err != nil {
		return fmt.Errorf("%w: failed to setup plugin '%s':'%s': %v", ErrFactorySetup, pluginType, name, err)
	}

	if _, ok := m.plugins[pluginType]; !ok {
		m.plugins[pluginType] = make(map[string]instance)
	}
	m.plugins[pluginType][key] = instance{factory: factory, plugin: ins}
	return nil
}

// GetPlugin gets an initialized plugin instance by tag or factory name.
func (m *Manager) GetPlugin(typ Type, name string) (Plugin, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	plugins, ok := m.plugins[typ]
	if !ok {
		return nil, fmt.Errorf("%w: no plugins found for type '%s'", ErrPluginNotFound, typ)
	}

	ins, ok := plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: plugin '%s' not found for type '%s'", ErrPluginNotFound, name, typ)
	}
	return ins.plugin, nil
}

// GetDefaultPlugin gets the default plugin instance of the specified type.
func (m *Manager) GetDefaultPlugin(typ Type) (Plugin, error) {
	return m.GetPlugin(typ, DefaultInsName)
}

// Names returns the keys of every instance of typ, sorted.
func (m *Manager) Names(typ Type) []string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	names := make([]string, 0, len(m.plugins[typ]))
	for k := range m.plugins[typ] {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Destroy hands every instance back to its factory and forgets it.
func (m *Manager) Destroy() {
	m.lock.Lock()
	defer m.lock.Unlock()

	for typ, plugins := range m.plugins {
		for _, ins := range plugins {
			ins.factory.Destroy(ins.plugin)
		}
		delete(m.plugins, typ)
	}
}
