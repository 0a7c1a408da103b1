package main

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CLIConfig is the persistent CLI configuration.
type CLIConfig struct {
	Address   string `yaml:"address"`
	Token     string `yaml:"token"`
	TLSCACert string `yaml:"tls_ca_cert"`
}

const defaultAddress = "http://127.0.0.1:3000"

var cfg CLIConfig

func configPath() string {
	if v := os.Getenv("GATEWAY_CLI_CONFIG"); v != "" {
		return v
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatgateway", "config.yaml")
}

// loadConfig reads the config file; a missing or unreadable file leaves defaults.
func loadConfig() {
	cfg = CLIConfig{Address: defaultAddress}
	if data, err := os.ReadFile(configPath()); err == nil {
		yaml.Unmarshal(data, &cfg) //nolint:errcheck
	}
}

// effective returns cfg with GATEWAY_ADDR, GATEWAY_TOKEN and GATEWAY_CACERT applied.
// Overrides are never written back to disk.
func (c CLIConfig) effective() CLIConfig {
	for env, dst := range map[string]*string{
		"GATEWAY_ADDR":   &c.Address,
		"GATEWAY_TOKEN":  &c.Token,
		"GATEWAY_CACERT": &c.TLSCACert,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	return c
}

func saveConfig() error {
	path := configPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
