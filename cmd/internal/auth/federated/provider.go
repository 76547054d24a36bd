// Package federated logs accounts in with tokens issued by external identity
// providers. Providers only vouch for a subject; accounts, links and sessions
// live in warden.
package federated

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrUnknownProvider is returned by Registry.Get.
var ErrUnknownProvider = errors.New("federated: unknown provider")

// Profile is what a provider asserts about the token holder.
// Only Subject is required.
type Profile struct {
	Subject  string
	Email    string
	Name     string
	Username string
}

// Provider verifies a provider-issued token.
type Provider interface {
	Name() string
	Verify(ctx context.Context, token string) (Profile, error)
}

// Registry maps provider names (case-insensitive) to providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds p, replacing any provider of the same name.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[providerKey(p.Name())] = p
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[providerKey(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// Names lists registered providers in order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func providerKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
