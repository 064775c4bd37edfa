// Package directory resolves opaque chat ids to display names.
package directory

import (
	"context"
	"fmt"
	"sync"

	"slack-logger/internal/chat"
)

// Unknown is returned for ids the directory does not know even after a refresh.
const Unknown = "?"

// Kind selects the channel or the user mapping.
type Kind int

const (
	KindChannel Kind = iota
	KindUser
)

func (k Kind) String() string {
	switch k {
	case KindChannel:
		return "channel"
	case KindUser:
		return "user"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Source is the external directory. chat.Transport satisfies it.
type Source interface {
	ListUsers(ctx context.Context) ([]chat.Entity, error)
	ListChannels(ctx context.Context) ([]chat.Entity, error)
}

// Cache maps channel and user ids to names. Entries are only ever added.
type Cache struct {
	src Source

	mu       sync.RWMutex
	names    map[Kind]map[string]string
	refreshN map[Kind]int
}

func NewCache(src Source) *Cache {
	return &Cache{
		src: src,
		names: map[Kind]map[string]string{
			KindChannel: make(map[string]string),
			KindUser:    make(map[string]string),
		},
		refreshN: make(map[Kind]int),
	}
}

// Prime loads both mappings.
func (c *Cache) Prime(ctx context.Context) error {
	if err := c.Refresh(ctx, KindChannel); err != nil {
		return err
	}
	return c.Refresh(ctx, KindUser)
}

// Lookup returns the cached name without touching the source.
func (c *Cache) Lookup(kind Kind, id string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	name, ok := c.names[kind][id]
	return name, ok
}

// Resolve returns the name for id. A miss refreshes the mapping for kind once
// and looks again; an id still missing resolves to Unknown. A refresh error is
// returned together with Unknown.
func (c *Cache) Resolve(ctx context.Context, kind Kind, id string) (string, error) {
	if name, ok := c.Lookup(kind, id); ok {
		return name, nil
	}
	if err := c.Refresh(ctx, kind); err != nil {
		return Unknown, err
	}
	if name, ok := c.Lookup(kind, id); ok {
		return name, nil
	}
	return Unknown, nil
}

// Refresh pulls the full mapping for kind from the source and merges it in.
func (c *Cache) Refresh(ctx context.Context, kind Kind) error {
	var (
		entities []chat.Entity
		err      error
	)
	switch kind {
	case KindChannel:
		entities, err = c.src.ListChannels(ctx)
	case KindUser:
		entities, err = c.src.ListUsers(ctx)
	default:
		return fmt.Errorf("refresh %s: unsupported kind", kind)
	}
	if err != nil {
		return fmt.Errorf("refresh %s directory: %w", kind, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		c.names[kind][e.ID] = e.Name
	}
	c.refreshN[kind]++
	return nil
}

// Refreshes reports how many successful refreshes of kind have happened.
func (c *Cache) Refreshes(kind Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshN[kind]
}

// Len returns the number of cached names of kind.
func (c *Cache) Len(kind Kind) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names[kind])
}
