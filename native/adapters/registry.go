package adapters

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	coreerrors "guildhall/core/errors"
	"guildhall/crypto"
)

var ErrAlreadyRegistered = errors.New("adapters: name already registered")

// ID returns the registry identifier of the adapter name: keccak256(name).
func ID(name string) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256([]byte(name)))
}

// AddressFor derives the account an adapter acts as within org.
func AddressFor(org crypto.Address, name string) crypto.Address {
	return crypto.BytesToAddress(ethcrypto.Keccak256(org[:], []byte(name)))
}

// Entry describes one registered adapter.
type Entry struct {
	Name    string
	ID      common.Hash
	Address crypto.Address
	impl    interface{}
}

// Registry resolves adapters by symbolic name for one organization. Only the
// capability interfaces declared in this package can be resolved.
type Registry struct {
	org     crypto.Address
	mu      sync.RWMutex
	entries map[common.Hash]*Entry
}

// NewRegistry creates an empty registry for org.
func NewRegistry(org crypto.Address) *Registry {
	return &Registry{org: org, entries: make(map[common.Hash]*Entry)}
}

// Register binds name to an implementation of at least one capability.
func (r *Registry) Register(name string, impl interface{}) (Entry, error) {
	if name == "" {
		return Entry{}, fmt.Errorf("adapters: name must not be empty")
	}
	_, voting := impl.(VotingCapability)
	_, onboarding := impl.(OnboardingCapability)
	if !voting && !onboarding {
		return Entry{}, fmt.Errorf("adapters: %s implements no known capability", name)
	}
	id := ID(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return Entry{}, fmt.Errorf("%w: %s", ErrAlreadyRegistered, name)
	}
	entry := &Entry{Name: name, ID: id, Address: AddressFor(r.org, name), impl: impl}
	r.entries[id] = entry
	return *entry, nil
}

func (r *Registry) lookup(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[ID(name)]
	if !ok {
		return nil, fmt.Errorf("adapters: %s: %w", name, coreerrors.ErrNotFound)
	}
	return entry, nil
}

// AddressOf returns the account the named adapter acts as.
func (r *Registry) AddressOf(name string) (crypto.Address, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return crypto.Address{}, err
	}
	return entry.Address, nil
}

// Voting resolves name as a VotingCapability.
func (r *Registry) Voting(name string) (VotingCapability, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	capability, ok := entry.impl.(VotingCapability)
	if !ok {
		return nil, fmt.Errorf("adapters: %s is not a voting adapter", name)
	}
	return capability, nil
}

// Onboarding resolves name as an OnboardingCapability.
func (r *Registry) Onboarding(name string) (OnboardingCapability, error) {
	entry, err := r.lookup(name)
	if err != nil {
		return nil, err
	}
	capability, ok := entry.impl.(OnboardingCapability)
	if !ok {
		return nil, fmt.Errorf("adapters: %s is not an onboarding adapter", name)
	}
	return capability, nil
}

// Names lists the registered adapter names in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, entry := range r.entries {
		names = append(names, entry.Name)
	}
	sort.Strings(names)
	return names
}
