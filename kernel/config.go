package kernel

import "github.com/ilyakaznacheev/cleanenv"

// Config fixes the capacity of every kernel table. Nothing resizes after
// boot.
type Config struct {
	MaxFiles   int `env:"ARK_MAX_FILES" env-default:"32"`
	MaxDirs    int `env:"ARK_MAX_DIRS" env-default:"32"`
	MaxHandles int `env:"ARK_MAX_HANDLES" env-default:"16"`
	MaxMounts  int `env:"ARK_MAX_MOUNTS" env-default:"4"`
	MaxModules int `env:"ARK_MAX_MODULES" env-default:"8"`
	MaxTtys    int `env:"ARK_MAX_TTYS" env-default:"8"`

	// ArenaSize is the module code pool in bytes; it never shrinks and is
	// never reclaimed on unload.
	ArenaSize int `env:"ARK_ARENA_SIZE" env-default:"1048576"`

	// LogBufferSize bounds the ramfs-backed kernel log; writes past the
	// end are dropped.
	LogBufferSize int `env:"ARK_LOG_BUFFER" env-default:"65536"`

	// Hardware presence, probed by the boot path on a real machine.
	HasUSBKeyboard bool `env:"ARK_HAS_USB_KBD" env-default:"false"`
	HasE1000       bool `env:"ARK_HAS_E1000" env-default:"false"`
}

// LoadConfig reads the configuration from the environment, falling back
// to the built-in defaults.
func LoadConfig() (Config, error) {
	var cfg Config

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// DefaultConfig returns the built-in capacities without consulting the
// environment. Tests use this.
func DefaultConfig() Config {
	return Config{
		MaxFiles:      32,
		MaxDirs:       32,
		MaxHandles:    16,
		MaxMounts:     4,
		MaxModules:    8,
		MaxTtys:       8,
		ArenaSize:     1 << 20,
		LogBufferSize: 64 << 10,
	}
}
