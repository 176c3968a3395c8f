package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

// Config drives the serve command. Values come from swagward.yaml,
// overridden by flags.
type Config struct {
	Spec       string         `koanf:"spec"`
	Listen     string         `koanf:"listen"`
	BasePath   string         `koanf:"base-path"`
	Upstream   string         `koanf:"upstream"`
	Validation ValidateConfig `koanf:"validate"`
	Schema     SchemaConfig   `koanf:"schema"`
	UI         UIConfig       `koanf:"ui"`

	IgnoreUndefinedRoutes bool `koanf:"ignore-undefined-routes"`
}

type ValidateConfig struct {
	Spec      bool `koanf:"spec"`
	Requests  bool `koanf:"requests"`
	Responses bool `koanf:"responses"`
}

type SchemaConfig struct {
	Enabled bool   `koanf:"enabled"`
	Suburl  string `koanf:"suburl"`
}

type UIConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Suburl       string `koanf:"suburl"`
	ValidatorURL string `koanf:"validator-url"`
}

// BindServeFlags binds the serve command's flags.
func BindServeFlags(cmd *cobra.Command) {
	flags := cmd.Flags()

	flags.StringP("config", "c", "", "Config file path (default: swagward.yaml)")
	flags.StringP("spec", "s", "", "Swagger 2.0 spec file path")
	flags.StringP("listen", "l", "", "Listen address (default: :8080)")
	flags.String("base-path", "", "Override the spec's basePath")
	flags.StringP("upstream", "u", "", "Upstream URL to proxy validated requests to")
	flags.Bool("ui", false, "Serve the API explorer UI")
	flags.Bool("ignore-undefined-routes", false, "Pass undeclared routes through unvalidated")
}

// Default returns the serve defaults: validate everything, serve the
// schema, no UI, no upstream.
func Default() Config {
	return Config{
		Listen: ":8080",
		Validation: ValidateConfig{
			Spec:      true,
			Requests:  true,
			Responses: true,
		},
		Schema: SchemaConfig{Enabled: true},
	}
}

// Load merges swagward.yaml (or --config) with command-line flags.
func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	cfg := Default()
	if err := k.Load(confmap.Provider(map[string]any{
		"listen":             cfg.Listen,
		"validate.spec":      cfg.Validation.Spec,
		"validate.requests":  cfg.Validation.Requests,
		"validate.responses": cfg.Validation.Responses,
		"schema.enabled":     cfg.Schema.Enabled,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	configFile, _ := cmd.Flags().GetString("config")
	if configFile == "" {
		if _, err := os.Stat("swagward.yaml"); err == nil {
			configFile = "swagward.yaml"
		}
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	flagsMap := buildFlagsMap(cmd)
	if len(flagsMap) > 0 {
		if err := k.Load(confmap.Provider(flagsMap, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var out Config
	if err := k.Unmarshal("", &out); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}

	return &out, nil
}

func buildFlagsMap(cmd *cobra.Command) map[string]any {
	m := make(map[string]any)

	getString := func(name string) string {
		if v, err := cmd.Flags().GetString(name); err == nil && v != "" {
			return v
		}
		return ""
	}

	if v := getString("spec"); v != "" {
		m["spec"] = v
	}
	if v := getString("listen"); v != "" {
		m["listen"] = v
	}
	if v := getString("base-path"); v != "" {
		m["base-path"] = v
	}
	if v := getString("upstream"); v != "" {
		m["upstream"] = v
	}
	if cmd.Flags().Changed("ui") {
		v, _ := cmd.Flags().GetBool("ui")
		m["ui.enabled"] = v
	}
	if cmd.Flags().Changed("ignore-undefined-routes") {
		v, _ := cmd.Flags().GetBool("ignore-undefined-routes")
		m["ignore-undefined-routes"] = v
	}

	return m
}

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if c.Spec == "" {
		return fmt.Errorf("spec file is required")
	}
	if c.Upstream != "" {
		u, err := url.Parse(c.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid upstream URL: %s", c.Upstream)
		}
	}
	return nil
}
