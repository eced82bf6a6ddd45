// Package optimizer runs lossless byte-size optimizers over written images.
package optimizer

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Optimizer shrinks an image file in place. Failures are logged and never
// returned.
type Optimizer interface {
	Optimize(ctx context.Context, path string)
	SetTimeout(d time.Duration)
}

type Logger interface {
	Printf(format string, v ...any)
}

// Noop satisfies Optimizer and does nothing.
type Noop struct{}

func (Noop) Optimize(context.Context, string) {}

func (Noop) SetTimeout(time.Duration) {}

// Tool is one external optimizer binary and the arguments it takes for a
// file; the path is appended last unless Args places it.
type Tool struct {
	Name    string
	Command string
	Formats []string // lowercase extensions without the dot
	Args    func(path string) []string
}

// DefaultTools mirrors the usual jpegoptim/pngquant/optipng/gifsicle chain.
func DefaultTools() []Tool {
	return []Tool{
		{
			Name: "jpegoptim", Command: "jpegoptim", Formats: []string{"jpg", "jpeg"},
			Args: func(p string) []string { return []string{"-m85", "--strip-all", "--all-progressive", p} },
		},
		{
			Name: "pngquant", Command: "pngquant", Formats: []string{"png"},
			Args: func(p string) []string { return []string{"--force", "--skip-if-larger", "--output", p, p} },
		},
		{
			Name: "optipng", Command: "optipng", Formats: []string{"png"},
			Args: func(p string) []string { return []string{"-i0", "-o2", "-quiet", p} },
		},
		{
			Name: "gifsicle", Command: "gifsicle", Formats: []string{"gif"},
			Args: func(p string) []string { return []string{"-b", "-O3", p} },
		},
	}
}

// Chain runs every registered tool that accepts the file's extension, each
// bounded by the timeout.
type Chain struct {
	tools   []Tool
	timeout time.Duration
	log     Logger
}

// NewChain registers the tools whose command is found in PATH.
func NewChain(tools []Tool, log Logger) *Chain {
	c := &Chain{timeout: 60 * time.Second, log: log}
	for _, t := range tools {
		if _, err := exec.LookPath(t.Command); err != nil {
			log.Printf("optimizer [%s] skipped: command '%s' not found in PATH", t.Name, t.Command)
			continue
		}
		c.tools = append(c.tools, t)
		log.Printf("optimizer [%s] registered", t.Name)
	}
	return c
}

// Tools lists the registered tool names.
func (c *Chain) Tools() []string {
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

func (c *Chain) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

func (c *Chain) Optimize(ctx context.Context, path string) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, t := range c.tools {
		if !accepts(t, ext) {
			continue
		}
		runCtx, cancel := context.WithTimeout(ctx, c.timeout)
		out, err := exec.CommandContext(runCtx, t.Command, t.Args(path)...).CombinedOutput()
		cancel()
		if err != nil {
			c.log.Printf("optimizer [%s] failed on %s: %v %s", t.Name, path, err, strings.TrimSpace(string(out)))
			continue
		}
		c.log.Printf("optimizer [%s] processed %s", t.Name, path)
	}
}

func accepts(t Tool, ext string) bool {
	for _, f := range t.Formats {
		if f == ext {
			return true
		}
	}
	return false
}

// New picks the implementation once: a Chain when enabled, Noop otherwise.
func New(enabled bool, timeout time.Duration, log Logger) Optimizer {
	var o Optimizer = Noop{}
	if enabled {
		o = NewChain(DefaultTools(), log)
	}
	o.SetTimeout(timeout)
	return o
}
