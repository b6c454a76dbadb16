package util

import (
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const Name = "mammut"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

type AppConfig struct {
	Conf struct {
		Host      string
		HttpPort  int    `yaml:"httpPort"`
		SslDomain string `yaml:"sslDomain"`
		DbFile    string `yaml:"dbFile"`
		Closed    bool   `yaml:"closed"`
	}
}

// BaseURI returns the https origin all local IRIs are minted under.
func (c *AppConfig) BaseURI() string {
	return fmt.Sprintf("https://%s", c.Conf.SslDomain)
}

// ReadConf loads the yaml config (working directory first, then the user
// config directory), falling back to the embedded defaults, then applies
// MAMMUT_* environment overrides. On the embedded fallback a default
// config file is written for the next run.
func ReadConf() (*AppConfig, error) {
	buf, err := os.ReadFile(ResolveFilePath(ConfigFileName))
	if err != nil {
		log.Printf("Config file not found, using embedded defaults")
		buf = embeddedConfig
		writeDefaultConfig()
	}

	c := &AppConfig{}
	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}
	applyEnvOverrides(c)
	return c, nil
}

func writeDefaultConfig() {
	dir, err := GetConfigDir()
	if err != nil {
		return
	}
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, embeddedConfig, 0644); err != nil {
		log.Printf("Warning: could not write default config to %s: %v", path, err)
		return
	}
	log.Printf("Created default config file at %s", path)
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("MAMMUT_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("MAMMUT_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: ignoring invalid MAMMUT_HTTPPORT %q", v)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("MAMMUT_SSLDOMAIN"); v != "" {
		c.Conf.SslDomain = v
	}
	if v := os.Getenv("MAMMUT_DBFILE"); v != "" {
		c.Conf.DbFile = v
	}
	if os.Getenv("MAMMUT_CLOSED") == "true" {
		c.Conf.Closed = true
	}
}
