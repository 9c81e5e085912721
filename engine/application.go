package engine

type ApplicationConfig struct {
	// ConfigPath is the TOML configuration to load and watch. Empty or
	// missing files run on the defaults.
	ConfigPath string
	// Name overrides the configured window title when set.
	Name string
}
