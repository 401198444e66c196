package backend

import (
	"fmt"

	"pricedash/internal/config"
)

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Locales lists the servable locales in configuration order.
	Locales []string

	// DSNs maps each locale to its store location: a SQLite path, a
	// PostgreSQL DSN, or for the memory backend an optional CSV seed file.
	DSNs map[string]string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	dsns := make(map[string]string, len(appConfig.Locales))
	for _, l := range appConfig.Locales {
		dsns[l] = appConfig.DSNFor(l)
	}

	cfg := Config{
		Type:    backendType,
		Locales: append([]string(nil), appConfig.Locales...),
		DSNs:    dsns,
	}
	return cfg, cfg.Validate()
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if len(c.Locales) == 0 {
		return fmt.Errorf("at least one locale is required")
	}

	switch c.Type {
	case SQLiteBackend, PostgresBackend:
		for _, l := range c.Locales {
			if c.DSNs[l] == "" {
				return fmt.Errorf("%s backend needs a store location for locale %q", c.Type, l)
			}
		}
	case MemoryBackend:
		// A seed file is optional.
	}

	return nil
}

// HasLocale reports whether locale is configured.
func (c Config) HasLocale(locale string) bool {
	_, ok := c.DSNs[locale]
	return ok
}
