package config

import "os"

type Config struct {
	Client  ClientConfig
	Run     RunConfig
	History HistoryConfig
	Relay   RelayConfig
	Log     LogConfig
}

type ClientConfig struct {
	// Host is the base URL of the Ollama server.
	Host string
}

type RunConfig struct {
	// Model used by `octl run` when none is given on the command line.
	Model string
}

type HistoryConfig struct {
	DataDir string
}

type RelayConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Client: ClientConfig{
			Host: "http://127.0.0.1:11434",
		},
		Run: RunConfig{
			Model: "llama2",
		},
		History: HistoryConfig{
			DataDir: defaultDataDir(),
		},
		Relay: RelayConfig{
			Port: 11435,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from the platform-native backend, then applies
// environment overrides.
//
// On macOS the backend is UserDefaults (domain: com.octl.app). On Linux it is
// a JSON file at $XDG_CONFIG_HOME/octl/config.json.
//
// OCTL_* environment variables override backend values on all platforms, and
// OLLAMA_HOST overrides the client host last, so the same variable that the
// ollama tooling honors also works here.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		cfg.Client.Host = host
	}

	return cfg, nil
}
