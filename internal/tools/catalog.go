// Package tools holds the callable tool catalog offered to the language model
// and the executors that run tool calls against the tool execution service.
package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
)

// Definition describes one callable tool.
type Definition struct {
	Tool mcp.Tool
	Kind Kind

	// RequiresConfirmation holds the call until the user confirms it.
	RequiresConfirmation bool
	// Prompt builds the spoken confirmation question from the call arguments.
	Prompt func(args map[string]any) string
	// Done is spoken after a confirmed call succeeds.
	Done string
}

func (d Definition) Name() string { return d.Tool.Name }

func (d Definition) ConfirmationPrompt(args map[string]any) string {
	if d.Prompt != nil {
		if p := d.Prompt(args); p != "" {
			return p
		}
	}
	return fmt.Sprintf("Do you want me to %s? Say confirm or cancel.", humanize(d.Tool.Name))
}

func (d Definition) DoneMessage() string {
	if d.Done != "" {
		return d.Done
	}
	return "Done."
}

// Catalog is safe for concurrent use; tools may be added or removed while
// sessions are running.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

func NewCatalog(defs ...Definition) *Catalog {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, d := range defs {
		c.Register(d)
	}
	return c
}

// Register adds or replaces a tool.
func (c *Catalog) Register(d Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[d.Name()]; !ok {
		c.order = append(c.order, d.Name())
	}
	c.defs[d.Name()] = d
}

func (c *Catalog) Remove(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.defs[name]; !ok {
		return false
	}
	delete(c.defs, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return true
}

func (c *Catalog) Get(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	return d, ok
}

// List returns definitions in registration order.
func (c *Catalog) List() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Definition, 0, len(c.order))
	for _, n := range c.order {
		out = append(out, c.defs[n])
	}
	return out
}

// MCPTools returns the schemas handed to the language model.
func (c *Catalog) MCPTools() []mcp.Tool {
	defs := c.List()
	out := make([]mcp.Tool, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.Tool)
	}
	return out
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := append([]string(nil), c.order...)
	sort.Strings(names)
	return names
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
