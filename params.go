package main

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
	"github.com/spf13/pflag"

	"github.com/launchdarkly/http-server-contract-tests/config"
	"github.com/launchdarkly/http-server-contract-tests/framework"
)

// commandParams are the flags shared by the run and watch commands. Flags that were set
// explicitly take precedence over the config file.
type commandParams struct {
	configPath  string
	url         string
	altPort     int
	timeout     time.Duration
	quick       bool
	reportPath  string
	historyPath string
	filters     framework.RegexFilters
	debug       bool
	debugAll    bool
	noColor     bool

	flags *pflag.FlagSet
}

func (c *commandParams) addFlags(fs *pflag.FlagSet) {
	defaults := config.Default()
	fs.StringVar(&c.configPath, "config", "", "YAML config file")
	fs.StringVar(&c.url, "url", defaults.Target.URL, "base URL of the server under test")
	fs.IntVar(&c.altPort, "alt-port", defaults.Target.AltPort, "alternate listener port (0 for none)")
	fs.DurationVar(&c.timeout, "timeout", defaults.Target.Timeout, "default timeout for each check")
	fs.BoolVar(&c.quick, "quick", false, "run only the critical checks")
	fs.StringVar(&c.reportPath, "report", defaults.Report.Path, "path of the JSON report (empty to disable)")
	fs.StringVar(&c.historyPath, "history", "", "SQLite database that records every run")
	fs.Var(&c.filters.MustMatch, "run", "regex pattern(s) to select checks to run")
	fs.Var(&c.filters.MustNotMatch, "skip", "regex pattern(s) to select checks not to run")
	fs.BoolVar(&c.debug, "debug", false, "show debug output for failed checks")
	fs.BoolVar(&c.debugAll, "debug-all", false, "show debug output for all checks and the harness")
	fs.BoolVar(&c.noColor, "no-color", false, "disable colored output")
	c.flags = fs
}

func (c *commandParams) changed(name string) bool {
	return c.flags != nil && c.flags.Changed(name)
}

// resolve loads the config file, if any, and applies the flags on top of it. Run patterns on
// the command line replace the ones in the file; skip patterns from both are combined.
func (c *commandParams) resolve() (config.Config, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return cfg, err
		}
	}
	if c.changed("url") || c.configPath == "" {
		cfg.Target.URL = c.url
	}
	if c.changed("alt-port") || c.configPath == "" {
		cfg.Target.AltPort = c.altPort
	}
	if c.changed("timeout") || c.configPath == "" {
		cfg.Target.Timeout = c.timeout
	}
	if c.changed("report") || c.configPath == "" {
		cfg.Report.Path = c.reportPath
	}
	if c.historyPath != "" {
		cfg.Report.History = c.historyPath
	}
	if !c.changed("run") {
		for _, p := range cfg.Run {
			if err := c.filters.MustMatch.Set(p); err != nil {
				return cfg, fmt.Errorf("config file run pattern %q: %w", p, err)
			}
		}
	}
	for _, p := range cfg.Skip {
		if err := c.filters.MustNotMatch.Set(p); err != nil {
			return cfg, fmt.Errorf("config file skip pattern %q: %w", p, err)
		}
	}
	cfg.Run, cfg.Skip = c.filters.MustMatch.Patterns(), c.filters.MustNotMatch.Patterns()
	return cfg, cfg.Validate()
}

// rerunArgs returns the arguments of a command line that repeats this run for only the named
// checks.
func (c *commandParams) rerunArgs(program string, cfg config.Config, names []string) []string {
	args := []string{program}
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	args = append(args, "--url", cfg.Target.URL)
	if c.changed("alt-port") {
		args = append(args, "--alt-port", strconv.Itoa(cfg.Target.AltPort))
	}
	if c.changed("timeout") {
		args = append(args, "--timeout", cfg.Target.Timeout.String())
	}
	if c.quick {
		args = append(args, "--quick")
	}
	quoted := make([]string, 0, len(names))
	for _, n := range names {
		quoted = append(quoted, regexp.QuoteMeta(n))
	}
	return append(args, "--run", "^("+strings.Join(quoted, "|")+")$")
}

func (c *commandParams) rerunCommand(program string, cfg config.Config, names []string) string {
	var cmd commandBuilder
	cmd.add(c.rerunArgs(program, cfg, names)...)
	return cmd.String()
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
