// Package spawn implements the spawn collaborator: it turns an executable
// payload, addressed by content id, into a running unit.
package spawn

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/najoast/kiln/core"
)

var (
	// ErrUnknownProgram is returned when a payload names a program the catalog lacks.
	ErrUnknownProgram = errors.New("unknown program")

	// ErrDuplicateProgram is returned when registering a name twice.
	ErrDuplicateProgram = errors.New("program already registered")

	// ErrEmptyPayload is returned for payloads that name no program.
	ErrEmptyPayload = errors.New("payload names no program")

	// ErrBadEntrypoint is returned when the requested entrypoint is not exported by the payload.
	ErrBadEntrypoint = errors.New("entrypoint not exported by payload")

	// ErrSpawnFailed wraps failures reported by the spawn service.
	ErrSpawnFailed = errors.New("spawn failed")
)

// Catalog maps program names to unit bodies.
type Catalog struct {
	mu       sync.RWMutex
	programs map[string]core.ProcessFunc
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{programs: make(map[string]core.ProcessFunc)}
}

// Register adds a program.
func (c *Catalog) Register(name string, fn core.ProcessFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("invalid program registration %q", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.programs[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateProgram, name)
	}
	c.programs[name] = fn
	return nil
}

// Lookup returns the program registered under name.
func (c *Catalog) Lookup(name string) (core.ProcessFunc, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn, ok := c.programs[name]
	return fn, ok
}

// Names returns the registered program names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.programs))
	for name := range c.programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParsePayload returns the programs a payload exports, one per non-empty
// line. Lines starting with '#' are comments. The first program is the
// default entrypoint.
func ParsePayload(data []byte) ([]string, error) {
	var programs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		programs = append(programs, line)
	}
	if len(programs) == 0 {
		return nil, ErrEmptyPayload
	}
	return programs, nil
}

// selectProgram picks the program to run for entrypoint.
func selectProgram(data []byte, entrypoint string) (string, error) {
	programs, err := ParsePayload(data)
	if err != nil {
		return "", err
	}
	if entrypoint == "" {
		return programs[0], nil
	}
	for _, p := range programs {
		if p == entrypoint {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrBadEntrypoint, entrypoint)
}
