// Package engine builds workflow-engine command lines for queued chains.
//
// Arguments are templates: {document}, {run_name}, {priority} and {workdir}
// are substituted per chain. The default template drives makeflow against a
// Work Queue master named after the run.
package engine

import (
	"os/exec"
	"strconv"
	"strings"

	"flowpool/internal/config"
)

// Invocation is a fully substituted engine command.
type Invocation struct {
	Command string
	Args    []string
	Dir     string
}

// Params are the per-chain values substituted into the template.
type Params struct {
	Document string
	RunName  string
	Priority int
	Workdir  string
}

// Builder renders invocations from the configured template.
type Builder struct {
	command string
	args    []string
}

// NewBuilder captures the engine section of cfg.
func NewBuilder(cfg config.Engine) *Builder {
	return &Builder{
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
	}
}

// Build substitutes params into every argument.
func (b *Builder) Build(params Params) Invocation {
	replacer := strings.NewReplacer(
		"{document}", params.Document,
		"{run_name}", params.RunName,
		"{priority}", strconv.Itoa(params.Priority),
		"{workdir}", params.Workdir,
	)
	args := make([]string, len(b.args))
	for i, arg := range b.args {
		args[i] = replacer.Replace(arg)
	}
	return Invocation{Command: b.command, Args: args, Dir: params.Workdir}
}

// Cmd returns an unstarted exec.Cmd for the invocation.
func (inv Invocation) Cmd() *exec.Cmd {
	cmd := exec.Command(inv.Command, inv.Args...)
	cmd.Dir = inv.Dir
	return cmd
}

func (inv Invocation) String() string {
	return strings.Join(append([]string{inv.Command}, inv.Args...), " ")
}
