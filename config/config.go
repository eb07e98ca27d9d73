// Package config loads the optional harness configuration file.
//
// The file is YAML. It is first parsed into a generic map and then decoded into Config, so
// that durations can be written as strings like "10s" and unknown keys can be reported.
// Anything the file leaves out keeps its default value, and command-line flags take
// precedence over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/launchdarkly/http-server-contract-tests/framework"
	"github.com/launchdarkly/http-server-contract-tests/framework/snapshot"
	"github.com/launchdarkly/http-server-contract-tests/servicedef"
)

// Config is the root of the configuration file.
type Config struct {
	Target TargetConfig     `yaml:"target" mapstructure:"target"`
	Policy framework.Policy `yaml:"policy" mapstructure:"policy"`
	Report ReportConfig     `yaml:"report" mapstructure:"report"`
	// Run and Skip are regular expressions selecting checks by name.
	Run  []string `yaml:"run,omitempty" mapstructure:"run"`
	Skip []string `yaml:"skip,omitempty" mapstructure:"skip"`
	// Schedule is the cron expression used by the watch command.
	Schedule string `yaml:"schedule,omitempty" mapstructure:"schedule"`
}

type TargetConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	AltPort int    `yaml:"altPort,omitempty" mapstructure:"altPort"`
	// Timeout is the default timeout for checks that do not set their own.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// RequestTimeout bounds each ordinary request made by a check.
	RequestTimeout time.Duration `yaml:"requestTimeout" mapstructure:"requestTimeout"`
}

type ReportConfig struct {
	// Path is where the JSON snapshot of each run is written. An empty path disables it.
	Path string `yaml:"path" mapstructure:"path"`
	// History, if set, is the path of a SQLite database that records every run.
	History string `yaml:"history,omitempty" mapstructure:"history"`
}

const DefaultSchedule = "@every 10m"

func Default() Config {
	return Config{
		Target: TargetConfig{
			URL:            fmt.Sprintf("http://%s:%d", servicedef.DefaultHost, servicedef.DefaultPort),
			AltPort:        servicedef.DefaultAltPort,
			Timeout:        servicedef.DefaultTimeout,
			RequestTimeout: 5 * time.Second,
		},
		Policy:   framework.DefaultPolicy(),
		Report:   ReportConfig{Path: snapshot.DefaultPath},
		Schedule: DefaultSchedule,
	}
}

// Load reads a configuration file on top of the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration on top of the defaults.
func Parse(data []byte) (Config, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("malformed config file: %w", err)
	}
	c := Default()
	if raw == nil {
		return c, nil
	}
	if err := decode(raw, &c); err != nil {
		return Config{}, fmt.Errorf("invalid config file: %w", err)
	}
	return c, c.Validate()
}

func decode(input map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// Marshal renders a configuration as YAML, for instance to show the effective settings.
func Marshal(c Config) ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) Validate() error {
	var errs []error
	if c.Target.Timeout <= 0 {
		errs = append(errs, errors.New("target.timeout must be positive"))
	}
	if c.Target.RequestTimeout < 0 {
		errs = append(errs, errors.New("target.requestTimeout must not be negative"))
	}
	if c.Target.AltPort < 0 || c.Target.AltPort > 65535 {
		errs = append(errs, fmt.Errorf("target.altPort %d is out of range", c.Target.AltPort))
	}
	p := c.Policy
	if p.MaxAllowedFailures < 0 {
		errs = append(errs, errors.New("policy.maxAllowedFailures must not be negative"))
	}
	if p.MinorIssueThreshold < 0 {
		errs = append(errs, errors.New("policy.minorIssueThreshold must not be negative"))
	}
	for _, r := range []struct {
		name string
		rate float64
	}{
		{"policy.stressSuccessRate", p.StressSuccessRate},
		{"policy.loadSuccessRate", p.LoadSuccessRate},
	} {
		if r.rate < 0 || r.rate > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, not %g", r.name, r.rate))
		}
	}
	if p.Reachability.Attempts < 1 {
		errs = append(errs, errors.New("policy.reachability.attempts must be at least 1"))
	}
	if p.Reachability.Interval < 0 {
		errs = append(errs, errors.New("policy.reachability.interval must not be negative"))
	}
	return errors.Join(errs...)
}
