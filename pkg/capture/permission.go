package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Capability is an OS-level grant a capture entry point needs
type Capability string

const (
	Camera       Capability = "camera"
	MediaLibrary Capability = "media_library"
)

// PermissionGate answers and requests capability grants
type PermissionGate interface {
	// Status reports whether the capability is already granted
	Status(c Capability) bool
	// Request asks for the capability and reports the user's answer
	Request(ctx context.Context, c Capability) (bool, error)
}

// StaticGate grants a fixed set of capabilities and denies every request for others
type StaticGate struct {
	mu      sync.RWMutex
	granted map[Capability]bool
}

// NewStaticGate creates a gate with the given capabilities granted
func NewStaticGate(granted ...Capability) *StaticGate {
	g := &StaticGate{granted: make(map[Capability]bool)}
	for _, c := range granted {
		g.granted[c] = true
	}
	return g
}

func (g *StaticGate) Status(c Capability) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.granted[c]
}

func (g *StaticGate) Request(_ context.Context, c Capability) (bool, error) {
	return g.Status(c), nil
}

// Grant marks a capability as granted, as the user would from settings
func (g *StaticGate) Grant(c Capability) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.granted[c] = true
}

// PromptGate asks the user on a terminal and remembers positive answers
type PromptGate struct {
	mu      sync.Mutex
	in      *bufio.Reader
	out     io.Writer
	granted map[Capability]bool
}

// NewPromptGate creates a gate reading answers from in and writing prompts to out
func NewPromptGate(in io.Reader, out io.Writer) *PromptGate {
	return &PromptGate{
		in:      bufio.NewReader(in),
		out:     out,
		granted: make(map[Capability]bool),
	}
}

func (g *PromptGate) Status(c Capability) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.granted[c]
}

func (g *PromptGate) Request(ctx context.Context, c Capability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.granted[c] {
		return true, nil
	}

	fmt.Fprintf(g.out, "Allow access to the %s? [y/N] ", strings.ReplaceAll(string(c), "_", " "))
	line, err := g.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("read permission answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "y" || answer == "yes" {
		g.granted[c] = true
		return true, nil
	}
	return false, nil
}
