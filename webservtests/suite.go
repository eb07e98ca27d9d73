package webservtests

import (
	"context"
	"time"

	"github.com/launchdarkly/http-server-contract-tests/framework"
)

type check struct {
	name   string
	action func(*T)
}

// Group is a set of checks that share a criticality and a timeout.
type Group struct {
	Name     string
	Critical bool
	Timeout  time.Duration
	checks   []check
}

// Names returns the names of the checks in the group, in the order they run.
func (g Group) Names() []string {
	ret := make([]string, 0, len(g.checks))
	for _, c := range g.checks {
		ret = append(ret, c.name)
	}
	return ret
}

// Groups returns every group of checks in the order they run.
func Groups() []Group {
	return []Group{
		{Name: "critical compliance", Critical: true, Timeout: 30 * time.Second, checks: criticalChecks},
		{Name: "HTTP protocol compliance", Timeout: 15 * time.Second, checks: protocolChecks},
		{Name: "body size limits", Timeout: 30 * time.Second, checks: bodySizeChecks},
		{Name: "CGI", Timeout: 15 * time.Second, checks: cgiChecks},
		{Name: "performance and load", Timeout: 45 * time.Second, checks: performanceChecks},
		{Name: "security", Timeout: 10 * time.Second, checks: securityChecks},
		{Name: "edge cases", Timeout: 10 * time.Second, checks: edgeCaseChecks},
		{Name: "multiple servers", Timeout: 10 * time.Second, checks: multiServerChecks},
	}
}

// AllChecks converts every check into a framework.CheckDefinition bound to the environment.
func AllChecks(env *Environment) []framework.CheckDefinition {
	var ret []framework.CheckDefinition
	for _, g := range Groups() {
		ret = append(ret, g.Definitions(env)...)
	}
	return ret
}

// Definitions converts the checks in one group into framework.CheckDefinitions.
func (g Group) Definitions(env *Environment) []framework.CheckDefinition {
	ret := make([]framework.CheckDefinition, 0, len(g.checks))
	for _, c := range g.checks {
		c := c
		ret = append(ret, framework.CheckDefinition{
			Name:     c.name,
			Critical: g.Critical,
			Timeout:  g.Timeout,
			Body: func(ctx context.Context) error {
				return env.run(ctx, c.name, c.action)
			},
		})
	}
	return ret
}
