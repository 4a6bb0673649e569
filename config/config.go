// Package config loads gitguard settings from file and environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonchun/gitguard/ssh"
)

const (
	configFileName = "config.yaml"
	configDirName  = "gitguard"
	envPrefix      = "GITGUARD_"
)

// duration wraps time.Duration for YAML unmarshaling.
type duration struct {
	d time.Duration
}

func (d *duration) unmarshalText(s string) error {
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.d = parsed
	return nil
}

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	return d.unmarshalText(value.Value)
}

func (d *duration) Duration() time.Duration {
	return d.d
}

// Config for gitguard. Pointer fields; nil = unset.
type Config struct {
	// Timeout is the default git timeout in seconds.
	Timeout     *int           `yaml:"timeout"`
	GitBinary   *string        `yaml:"git_binary"`
	RepoDir     *string        `yaml:"repo_dir"`
	ManifestDir *string        `yaml:"manifest_dir"`
	Budgets     *BudgetsConfig `yaml:"budgets"`
	SSH         *SSHConfig     `yaml:"ssh"`
}

// BudgetsConfig holds token budgets for rendered output.
type BudgetsConfig struct {
	PreviewStdout *int `yaml:"preview_stdout"`
	PreviewStderr *int `yaml:"preview_stderr"`
	FailureStdout *int `yaml:"failure_stdout"`
	FailureStderr *int `yaml:"failure_stderr"`
	Detail        *int `yaml:"detail"`
}

// SSHConfig holds SSH-specific configuration.
type SSHConfig struct {
	ConnectTimeout  *duration `yaml:"connect_timeout"`
	Retries         *int      `yaml:"retries"`
	RetryBackoff    *duration `yaml:"retry_backoff"`
	HostKeyChecking *string   `yaml:"host_key_checking"`
	KnownHostsFile  *string   `yaml:"known_hosts_file"`
}

// LoadFrom loads config from path. Missing files return zero Config, nil.
func LoadFrom(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func Load() (Config, error) {
	return LoadFrom(defaultConfigPath())
}

func (c *Config) applyEnvOverrides() error {
	if err := envInt("TIMEOUT", &c.Timeout); err != nil {
		return err
	}
	envString("GIT_BINARY", &c.GitBinary)
	envString("REPO_DIR", &c.RepoDir)
	envString("MANIFEST_DIR", &c.ManifestDir)

	budgetVars := []struct {
		name string
		dst  func(*BudgetsConfig) **int
	}{
		{"BUDGET_PREVIEW_STDOUT", func(b *BudgetsConfig) **int { return &b.PreviewStdout }},
		{"BUDGET_PREVIEW_STDERR", func(b *BudgetsConfig) **int { return &b.PreviewStderr }},
		{"BUDGET_FAILURE_STDOUT", func(b *BudgetsConfig) **int { return &b.FailureStdout }},
		{"BUDGET_FAILURE_STDERR", func(b *BudgetsConfig) **int { return &b.FailureStderr }},
		{"BUDGET_DETAIL", func(b *BudgetsConfig) **int { return &b.Detail }},
	}
	for _, bv := range budgetVars {
		if _, ok := os.LookupEnv(envPrefix + bv.name); !ok {
			continue
		}
		if c.Budgets == nil {
			c.Budgets = &BudgetsConfig{}
		}
		if err := envInt(bv.name, bv.dst(c.Budgets)); err != nil {
			return err
		}
	}

	if v, ok := os.LookupEnv(envPrefix + "SSH_CONNECT_TIMEOUT"); ok {
		d := &duration{}
		if err := d.unmarshalText(v); err != nil {
			return fmt.Errorf("parse %sSSH_CONNECT_TIMEOUT: %w", envPrefix, err)
		}
		c.sshConfig().ConnectTimeout = d
	}
	if _, ok := os.LookupEnv(envPrefix + "SSH_RETRIES"); ok {
		if err := envInt("SSH_RETRIES", &c.sshConfig().Retries); err != nil {
			return err
		}
	}
	if v, ok := os.LookupEnv(envPrefix + "SSH_RETRY_BACKOFF"); ok {
		d := &duration{}
		if err := d.unmarshalText(v); err != nil {
			return fmt.Errorf("parse %sSSH_RETRY_BACKOFF: %w", envPrefix, err)
		}
		c.sshConfig().RetryBackoff = d
	}
	if v, ok := os.LookupEnv(envPrefix + "SSH_HOST_KEY_CHECKING"); ok {
		c.sshConfig().HostKeyChecking = &v
	}
	if v, ok := os.LookupEnv(envPrefix + "SSH_KNOWN_HOSTS_FILE"); ok {
		c.sshConfig().KnownHostsFile = &v
	}

	return nil
}

func (c *Config) sshConfig() *SSHConfig {
	if c.SSH == nil {
		c.SSH = &SSHConfig{}
	}
	return c.SSH
}

func envInt(name string, dst **int) error {
	v, ok := os.LookupEnv(envPrefix + name)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("parse %s%s: %w", envPrefix, name, err)
	}
	*dst = &n
	return nil
}

func envString(name string, dst **string) {
	if v, ok := os.LookupEnv(envPrefix + name); ok {
		*dst = &v
	}
}

func (c *Config) validate() error {
	if c.Timeout != nil && *c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %d", *c.Timeout)
	}
	if c.Timeout != nil && *c.Timeout > 3600 {
		return fmt.Errorf("timeout must not exceed 3600 seconds, got %d", *c.Timeout)
	}
	if c.GitBinary != nil && *c.GitBinary == "" {
		return errors.New("git_binary must not be empty")
	}
	if c.Budgets != nil {
		for _, b := range []struct {
			name string
			v    *int
		}{
			{"budgets.preview_stdout", c.Budgets.PreviewStdout},
			{"budgets.preview_stderr", c.Budgets.PreviewStderr},
			{"budgets.failure_stdout", c.Budgets.FailureStdout},
			{"budgets.failure_stderr", c.Budgets.FailureStderr},
			{"budgets.detail", c.Budgets.Detail},
		} {
			if b.v == nil {
				continue
			}
			if *b.v <= 0 {
				return fmt.Errorf("%s must be positive, got %d", b.name, *b.v)
			}
			if *b.v > 1_000_000 {
				return fmt.Errorf("%s must not exceed 1000000 tokens, got %d", b.name, *b.v)
			}
		}
	}
	if c.SSH != nil {
		if c.SSH.Retries != nil && *c.SSH.Retries < 0 {
			return fmt.Errorf("ssh.retries must be non-negative, got %d", *c.SSH.Retries)
		}
		if c.SSH.ConnectTimeout != nil && c.SSH.ConnectTimeout.Duration() <= 0 {
			return fmt.Errorf("ssh.connect_timeout must be positive, got %v", c.SSH.ConnectTimeout.Duration())
		}
		if c.SSH.RetryBackoff != nil && c.SSH.RetryBackoff.Duration() <= 0 {
			return fmt.Errorf("ssh.retry_backoff must be positive, got %v", c.SSH.RetryBackoff.Duration())
		}
		if c.SSH.HostKeyChecking != nil && !ssh.ValidHostKeyMode(*c.SSH.HostKeyChecking) {
			return fmt.Errorf("ssh.host_key_checking must be one of accept-new, strict, off; got %q", *c.SSH.HostKeyChecking)
		}
	}
	return nil
}

func defaultConfigPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, configDirName, configFileName)
}
