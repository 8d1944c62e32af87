// Package config loads the lift configuration file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"lift/internal/sleigh"
)

// Config holds defaults for the lift commands. Flags override it.
type Config struct {
	Arch            string `json:"arch,omitempty" jsonschema:"title=Architecture,description=Default preset name used by disasm,example=x86"`
	Mode            int    `json:"mode,omitempty" jsonschema:"title=Mode,description=Default decode width in bits,enum=16,enum=32,enum=64,default=16"`
	MaxInstructions int    `json:"maxInstructions,omitempty" jsonschema:"title=Max Instructions,description=Instruction cap per decode (0 decodes the whole buffer),minimum=0"`
	Store           string `json:"store,omitempty" jsonschema:"title=Table Store,description=Directory of the LevelDB table store"`
	NoColor         bool   `json:"noColor,omitempty" jsonschema:"title=No Color,description=Disable listing colours"`
	Debug           bool   `json:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
	LogLevel        string `json:"logLevel,omitempty" jsonschema:"title=Log Level,enum=debug,enum=info,enum=warn,enum=error"`
	LogDir          string `json:"logDir,omitempty" jsonschema:"title=Log Directory,description=Directory for log files when LIFT_LOG_TO_FILE=1"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{Arch: "x86", Mode: 16}
}

// DefaultPath is $XDG_CONFIG_HOME/lift/lift.json, falling back to the user
// config directory.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "lift", "lift.json")
}

// Load reads path over the defaults. A missing file is not an error unless
// required is set.
func Load(path string, required bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.DecodeMode(); err != nil {
		return err
	}
	if c.MaxInstructions < 0 {
		return fmt.Errorf("maxInstructions must not be negative, got %d", c.MaxInstructions)
	}
	return nil
}

// DecodeMode converts Mode to a decode width. Zero means the default.
func (c Config) DecodeMode() (sleigh.Mode, error) {
	if c.Mode == 0 {
		return sleigh.Mode16, nil
	}
	return sleigh.ParseMode(fmt.Sprint(c.Mode))
}

// Schema returns the JSON schema of the configuration file.
func Schema() *jsonschema.Schema {
	reflector := new(jsonschema.Reflector)
	return reflector.Reflect(&Config{})
}
