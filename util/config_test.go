package util

import (
	"os"
	"path/filepath"
	"testing"
)

// isolateConfig points HOME at a scratch dir so ReadConf never touches the
// real user config, and clears any ambient overrides.
func isolateConfig(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{"MAMMUT_HOST", "MAMMUT_HTTPPORT", "MAMMUT_SSLDOMAIN", "MAMMUT_DBFILE", "MAMMUT_CLOSED"} {
		t.Setenv(key, "")
	}
	return home
}

func TestReadConfDefaults(t *testing.T) {
	home := isolateConfig(t)

	c, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}
	if c.Conf.Host != "0.0.0.0" {
		t.Errorf("unexpected default host %q", c.Conf.Host)
	}
	if c.Conf.HttpPort != 8080 {
		t.Errorf("unexpected default port %d", c.Conf.HttpPort)
	}
	if c.Conf.SslDomain != "localhost" {
		t.Errorf("unexpected default domain %q", c.Conf.SslDomain)
	}
	if c.Conf.Closed {
		t.Error("instance should be open by default")
	}

	// missing config gets materialized for the next run
	if _, err := os.Stat(filepath.Join(home, AppConfigDir, ConfigFileName)); err != nil {
		t.Errorf("default config file not written: %v", err)
	}
}

func TestReadConfFromFile(t *testing.T) {
	home := isolateConfig(t)

	dir := filepath.Join(home, AppConfigDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	yaml := "conf:\n  host: 127.0.0.1\n  httpPort: 9090\n  sslDomain: social.example\n  dbFile: custom.db\n  closed: true\n"
	if err := os.WriteFile(filepath.Join(dir, ConfigFileName), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}
	if c.Conf.Host != "127.0.0.1" || c.Conf.HttpPort != 9090 {
		t.Errorf("file values not applied: %+v", c.Conf)
	}
	if c.Conf.SslDomain != "social.example" || c.Conf.DbFile != "custom.db" || !c.Conf.Closed {
		t.Errorf("file values not applied: %+v", c.Conf)
	}
}

func TestReadConfEnvOverrides(t *testing.T) {
	isolateConfig(t)
	t.Setenv("MAMMUT_HOST", "10.0.0.1")
	t.Setenv("MAMMUT_HTTPPORT", "3000")
	t.Setenv("MAMMUT_SSLDOMAIN", "env.example")
	t.Setenv("MAMMUT_DBFILE", "env.db")
	t.Setenv("MAMMUT_CLOSED", "true")

	c, err := ReadConf()
	if err != nil {
		t.Fatalf("ReadConf failed: %v", err)
	}
	if c.Conf.Host != "10.0.0.1" || c.Conf.HttpPort != 3000 {
		t.Errorf("env overrides not applied: %+v", c.Conf)
	}
	if c.Conf.SslDomain != "env.example" || c.Conf.DbFile != "env.db" || !c.Conf.Closed {
		t.Errorf("env overrides not applied: %+v", c.Conf)
	}
}

func TestBaseURI(t *testing.T) {
	c := &AppConfig{}
	c.Conf.SslDomain = "social.example"
	if got := c.BaseURI(); got != "https://social.example" {
		t.Errorf("unexpected base URI %q", got)
	}
}
