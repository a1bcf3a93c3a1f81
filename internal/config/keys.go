package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "client.host", typ: kString, env: "OCTL_CLIENT_HOST",
		apply:   func(cfg *Config, v any) { cfg.Client.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Client.Host },
	},
	{
		key: "run.model", typ: kString, env: "OCTL_RUN_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Run.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.Run.Model },
	},
	{
		key: "history.data_dir", typ: kString, env: "OCTL_HISTORY_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.History.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.History.DataDir },
	},
	{
		key: "relay.port", typ: kInt, env: "OCTL_RELAY_PORT",
		apply:   func(cfg *Config, v any) { cfg.Relay.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Relay.Port },
	},
	{
		key: "log.level", typ: kString, env: "OCTL_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
