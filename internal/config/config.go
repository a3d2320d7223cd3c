// Package config loads server configuration from the process environment
// with an optional .env overlay: the many *_API_KEY /
// *_MODELS_CONFIG_PATH / *_ALLOWED_MODELS variables, the conversation
// bounds, and the optional operator policy file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProviderEnv names the environment variables a single provider type reads.
type ProviderEnv struct {
	APIKeyVar        string
	AllowedModelsVar string
	ModelsConfigVar  string
	DefaultManifest  string
}

// Config holds the resolved server configuration.
type Config struct {
	DefaultModel    string
	LogLevel        string
	DisabledTools   []string
	ConversationTTL time.Duration
	MaxTurns        int
	DefaultThinkingModeThinkdeep string

	AzureEndpoint   string
	AzureAPIVersion string

	CustomAPIURL    string
	CustomAPIKey    string
	CustomModelName string

	// PolicyOverlay holds ZEN_MCP_POLICY_FILE's allowed_models map, keyed by
	// provider type ("OPENAI", …). AllowedModelsRaw only consults it when
	// the corresponding *_ALLOWED_MODELS environment variable is unset, so
	// an explicit env var always wins over the file.
	PolicyOverlay map[string]string

	env map[string]string
}

// Providers enumerates the env-var names for every provider type the
// capability/restriction layers need.
var Providers = map[string]ProviderEnv{
	"OPENAI": {
		APIKeyVar:        "OPENAI_API_KEY",
		AllowedModelsVar: "OPENAI_ALLOWED_MODELS",
		ModelsConfigVar:  "OPENAI_MODELS_CONFIG_PATH",
		DefaultManifest:  "openai_models.json",
	},
	"GOOGLE": {
		APIKeyVar:        "GEMINI_API_KEY",
		AllowedModelsVar: "GOOGLE_ALLOWED_MODELS",
		ModelsConfigVar:  "GEMINI_MODELS_CONFIG_PATH",
		DefaultManifest:  "gemini_models.json",
	},
	"XAI": {
		APIKeyVar:        "XAI_API_KEY",
		AllowedModelsVar: "XAI_ALLOWED_MODELS",
		ModelsConfigVar:  "XAI_MODELS_CONFIG_PATH",
		DefaultManifest:  "xai_models.json",
	},
	"AZURE": {
		APIKeyVar:        "AZURE_OPENAI_API_KEY",
		AllowedModelsVar: "AZURE_OPENAI_ALLOWED_MODELS",
		ModelsConfigVar:  "AZURE_MODELS_CONFIG_PATH",
		DefaultManifest:  "azure_models.json",
	},
	"OPENROUTER": {
		APIKeyVar:        "OPENROUTER_API_KEY",
		AllowedModelsVar: "OPENROUTER_ALLOWED_MODELS",
		ModelsConfigVar:  "OPENROUTER_MODELS_CONFIG_PATH",
		DefaultManifest:  "openrouter_models.json",
	},
	"DIAL": {
		APIKeyVar:        "DIAL_API_KEY",
		AllowedModelsVar: "DIAL_ALLOWED_MODELS",
		ModelsConfigVar:  "DIAL_MODELS_CONFIG_PATH",
		DefaultManifest:  "dial_models.json",
	},
	"CUSTOM": {
		APIKeyVar:        "CUSTOM_API_KEY",
		AllowedModelsVar: "",
		ModelsConfigVar:  "CUSTOM_MODELS_CONFIG_PATH",
		DefaultManifest:  "custom_models.json",
	},
}

// Load resolves configuration from the process environment, optionally
// overlaying a .env file found at envFilePath (empty string skips the
// overlay). ZEN_MCP_FORCE_ENV_OVERRIDE governs precedence on key collision:
// when set to a truthy value, process env wins and the .env file only fills
// gaps; otherwise the .env file overrides the process environment.
func Load(envFilePath string) (*Config, error) {
	forceOverride := truthy(os.Getenv("ZEN_MCP_FORCE_ENV_OVERRIDE"))

	if envFilePath != "" {
		if _, err := os.Stat(envFilePath); err == nil {
			if forceOverride {
				// Process env wins on collision: Load only fills in variables
				// absent from the process environment.
				if err := godotenv.Load(envFilePath); err != nil {
					return nil, err
				}
			} else {
				// .env wins on collision.
				if err := godotenv.Overload(envFilePath); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		DefaultModel:    getEnvDefault("DEFAULT_MODEL", "auto"),
		LogLevel:        getEnvDefault("LOG_LEVEL", "info"),
		ConversationTTL: time.Duration(getEnvIntDefault("CONVERSATION_TIMEOUT_HOURS", 5)) * time.Hour,
		MaxTurns:        getEnvIntDefault("MAX_CONVERSATION_TURNS", 20),
		DefaultThinkingModeThinkdeep: getEnvDefault("DEFAULT_THINKING_MODE_THINKDEEP", "high"),
		AzureEndpoint:   os.Getenv("AZURE_OPENAI_ENDPOINT"),
		AzureAPIVersion: os.Getenv("AZURE_OPENAI_API_VERSION"),
		CustomAPIURL:    os.Getenv("CUSTOM_API_URL"),
		CustomAPIKey:    os.Getenv("CUSTOM_API_KEY"),
		CustomModelName: os.Getenv("CUSTOM_MODEL_NAME"),
		env:             map[string]string{},
	}

	if disabled := os.Getenv("DISABLED_TOOLS"); disabled != "" {
		for _, t := range strings.Split(disabled, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				cfg.DisabledTools = append(cfg.DisabledTools, t)
			}
		}
	}

	if policyPath := os.Getenv("ZEN_MCP_POLICY_FILE"); policyPath != "" {
		overlay, err := LoadOperatorPolicy(policyPath)
		if err != nil {
			return nil, fmt.Errorf("loading operator policy file %s: %w", policyPath, err)
		}
		cfg.PolicyOverlay = overlay
	}

	return cfg, nil
}

// OperatorPolicy is the optional YAML overlay an operator may point
// ZEN_MCP_POLICY_FILE at: a file-based alternative to setting every
// *_ALLOWED_MODELS environment variable individually. Shaped as YAML
// rather than JSON since this is an operator-editable config file, not a
// machine-generated manifest.
type OperatorPolicy struct {
	AllowedModels map[string]string `yaml:"allowed_models"`
}

// LoadOperatorPolicy parses an OperatorPolicy file.
func LoadOperatorPolicy(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p OperatorPolicy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p.AllowedModels, nil
}

// APIKey returns the configured API key for a provider type ("OPENAI", …).
func (c *Config) APIKey(providerType string) string {
	pe, ok := Providers[providerType]
	if !ok {
		return ""
	}
	return os.Getenv(pe.APIKeyVar)
}

// ManifestPath returns the effective manifest path for a provider type,
// honoring *_MODELS_CONFIG_PATH overrides over the default filename.
func (c *Config) ManifestPath(providerType, defaultDir string) string {
	pe, ok := Providers[providerType]
	if !ok {
		return ""
	}
	if override := os.Getenv(pe.ModelsConfigVar); override != "" {
		return override
	}
	return defaultDir + "/" + pe.DefaultManifest
}

// AllowedModelsRaw returns the raw (unparsed) allow-list value for a
// provider type; the restriction package does the tokenizing. The
// *_ALLOWED_MODELS environment variable wins when set; otherwise a
// ZEN_MCP_POLICY_FILE overlay entry for this provider type is used.
func (c *Config) AllowedModelsRaw(providerType string) string {
	pe, ok := Providers[providerType]
	if ok && pe.AllowedModelsVar != "" {
		if v := os.Getenv(pe.AllowedModelsVar); v != "" {
			return v
		}
	}
	return c.PolicyOverlay[providerType]
}

func truthy(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s != "" && s != "false" && s != "0"
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
