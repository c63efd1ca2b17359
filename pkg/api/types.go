package api

import "sort"

// v0 contains the types shared between the parser, the runner and the CLI.

// RunConfiguration holds what one IDE run profile asks for: environment
// variables and the ordered build tasks for a service.
type RunConfiguration struct {
	Service    string            `json:"service" yaml:"service"`
	Env        map[string]string `json:"env" yaml:"env"`
	// EnvOrder lists Env keys in the order they were declared.
	EnvOrder   []string          `json:"env_order,omitempty" yaml:"env_order,omitempty"`
	Tasks      []string          `json:"tasks" yaml:"tasks"`
	SourcePath string            `json:"source_path" yaml:"source_path"`
}

// Empty reports whether the configuration carries neither env nor tasks.
func (c *RunConfiguration) Empty() bool {
	return c == nil || (len(c.Env) == 0 && len(c.Tasks) == 0)
}

// EnvKeys returns the Env keys in declaration order. Keys missing from
// EnvOrder follow in sorted order.
func (c *RunConfiguration) EnvKeys() []string {
	keys := make([]string, 0, len(c.Env))
	seen := make(map[string]bool, len(c.Env))
	for _, k := range c.EnvOrder {
		if _, ok := c.Env[k]; ok && !seen[k] {
			keys = append(keys, k)
			seen[k] = true
		}
	}
	var rest []string
	for k := range c.Env {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}

type RunStatus string

const (
	RunPending     RunStatus = "pending"
	RunRunning     RunStatus = "running"
	RunSucceeded   RunStatus = "succeeded"
	RunFailed      RunStatus = "failed"
	RunInterrupted RunStatus = "interrupted"
	RunSpawnError  RunStatus = "spawn_error"
)

// Terminal reports whether no further transition is possible.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunSucceeded, RunFailed, RunInterrupted, RunSpawnError:
		return true
	}
	return false
}
