// Package plugin builds named backend instances from configuration through
// registered factories.
package plugin

// Type is the type of plugin supported by the system.
type Type string

const (
	// Sender plugins deliver metric batches to a backend.
	Sender Type = "sender"
)

// Factory is the interface for plugin factories.
type Factory interface {
	// Type returns the plugin type.
	Type() Type
	// Name returns the name of the plugin implementation.
	Name() string
	// ConfigType returns a pointer to an empty config struct, populated by
	// the manager using mapstructure.
	ConfigType() any
	// Setup initializes a plugin instance from the decoded configuration.
	Setup(any) (Plugin, error)
	// Destroy releases the resources of an instance created by Setup.
	Destroy(Plugin)
}

// Plugin is an instance created by a Factory.
type Plugin interface {
	FactoryName() string
}
