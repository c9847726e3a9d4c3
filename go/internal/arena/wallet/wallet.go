package wallet

import (
	"strings"
	"sync"
)

// Identity is what the game core needs from the wallet connection
type Identity struct {
	Address       string `json:"address"`
	Authenticated bool   `json:"authenticated"`
}

// Provider supplies the current wallet identity
type Provider interface {
	Identity() Identity
}

// Static is a Provider whose identity is set explicitly, e.g. from WALLET_ADDRESS.
type Static struct {
	mu       sync.RWMutex
	identity Identity
}

// NewStatic returns a provider for address. An empty address is unauthenticated.
func NewStatic(address string) *Static {
	s := &Static{}
	s.Set(address)
	return s
}

// Identity returns the current identity.
func (s *Static) Identity() Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Set replaces the identity.
func (s *Static) Set(address string) {
	address = strings.TrimSpace(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = Identity{Address: address, Authenticated: address != ""}
}
