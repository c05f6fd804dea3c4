package repl

import (
	"fmt"
	"slices"
	"strings"
)

// Registry holds the available slash commands.
type Registry struct {
	commands map[string]Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
	}
}

// Register adds c, replacing any command with the same name.
func (r *Registry) Register(c Command) {
	r.commands[c.Name()] = c
}

// Get retrieves a command by name, with or without the leading slash.
func (r *Registry) Get(name string) (Command, error) {
	c, ok := r.commands[strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, fmt.Errorf("unknown command: /%s (try /help)", strings.TrimPrefix(name, "/"))
	}
	return c, nil
}

// List returns all commands sorted by name.
func (r *Registry) List() []Command {
	cs := make([]Command, 0, len(r.commands))
	for _, c := range r.commands {
		cs = append(cs, c)
	}
	slices.SortFunc(cs, func(a, b Command) int { return strings.Compare(a.Name(), b.Name()) })
	return cs
}
