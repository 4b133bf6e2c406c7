// internal/registry/registry.go
package registry

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/givecurve/givecurve/internal/community"
	"github.com/givecurve/givecurve/internal/convert"
)

var (
	// ErrCommunityExists is returned when a name is registered twice.
	ErrCommunityExists = errors.New("community already registered")

	// ErrCommunityNotFound is returned for lookups of unknown names or
	// out-of-range positions.
	ErrCommunityNotFound = errors.New("community not found")

	// ErrNoConverter is returned from GetConverter before any converter has
	// been registered. Donations cannot proceed until one is installed.
	ErrNoConverter = errors.New("no currency converter registered")
)

// Registry is the platform-wide directory of communities and the single
// slot for the shared currency converter. Communities hold the registry as
// their converter source, so swapping the converter here retargets every
// community at once.
type Registry struct {
	mu          sync.RWMutex
	logger      *zap.Logger
	byName      map[string]*community.Community
	ordered     []*community.Community
	converter   convert.Converter
	replacement int
}

func New(logger *zap.Logger) *Registry {
	return &Registry{
		logger: logger.Named("registry"),
		byName: make(map[string]*community.Community),
	}
}

// RegisterCommunity adds a community to the directory. Names are unique;
// registration order is stable and drives positional lookups.
func (r *Registry) RegisterCommunity(c *community.Community) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[c.Name()]; ok {
		return fmt.Errorf("register %q: %w", c.Name(), ErrCommunityExists)
	}
	r.byName[c.Name()] = c
	r.ordered = append(r.ordered, c)

	r.logger.Info("Community registered",
		zap.String("community", c.Name()),
		zap.Int("index", len(r.ordered)-1))
	return nil
}

// CommunityIndex returns the number of registered communities.
func (r *Registry) CommunityIndex() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ordered)
}

// GetCommunityAt returns the community registered at position i.
func (r *Registry) GetCommunityAt(i int) (*community.Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.ordered) {
		return nil, fmt.Errorf("position %d of %d: %w", i, len(r.ordered), ErrCommunityNotFound)
	}
	return r.ordered[i], nil
}

// RemoveCommunityAt delists the community at position i and returns it.
// Later positions shift down. The community itself keeps functioning for
// existing holders; it is only dropped from the directory.
func (r *Registry) RemoveCommunityAt(i int) (*community.Community, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.ordered) {
		return nil, fmt.Errorf("position %d of %d: %w", i, len(r.ordered), ErrCommunityNotFound)
	}
	c := r.ordered[i]
	r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
	delete(r.byName, c.Name())

	r.logger.Info("Community delisted",
		zap.String("community", c.Name()),
		zap.Int("index", i))
	return c, nil
}

// GetCommunity looks a community up by name.
func (r *Registry) GetCommunity(name string) (*community.Community, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("community %q: %w", name, ErrCommunityNotFound)
	}
	return c, nil
}

// Communities returns the registered communities in registration order.
func (r *Registry) Communities() []*community.Community {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*community.Community, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// RegisterCurrencyConverter installs or replaces the platform converter.
// In-flight donations finish with the converter they resolved; the next
// donation resolves the new one.
func (r *Registry) RegisterCurrencyConverter(conv convert.Converter) error {
	if conv == nil {
		return errors.New("nil converter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	replaced := r.converter != nil
	r.converter = conv
	if replaced {
		r.replacement++
	}

	r.logger.Info("Currency converter registered",
		zap.Bool("replaced", replaced),
		zap.Int("replacements", r.replacement))
	return nil
}

// GetConverter resolves the current converter. Communities call this at the
// start of every donation.
func (r *Registry) GetConverter() (convert.Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.converter == nil {
		return nil, ErrNoConverter
	}
	return r.converter, nil
}
