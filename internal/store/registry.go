// Package store owns the application server's on-disk state: the channel
// and user registry (a small JSON document rewritten on every mutation) and
// the append-only JSONL journals for publications and direct messages.
//
// File formats are deliberately plain (one JSON object per journal line,
// one JSON document for the registry) so operators can inspect and repair
// state with nothing but a text editor.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// Mutation errors surfaced to the request handlers, which translate them
// into the wire-level error strings.
var (
	ErrChannelExists = errors.New("channel already exists")
	ErrReservedName  = errors.New("channel name is reserved")
	ErrEmptyName     = errors.New("empty name")
)

// seedChannels is the channel set written on first start.
var seedChannels = []string{"general", "random", "dev"}

type registryDoc struct {
	Channels []string `json:"channels"`
	Users    []string `json:"users"`
}

// Registry is the persistent channel/user registry of one server. Mutations
// are persisted synchronously before they are acknowledged. All methods are
// safe for concurrent use; in practice only the request loop mutates.
type Registry struct {
	mu   sync.RWMutex
	path string
	doc  registryDoc
}

// OpenRegistry loads the registry at path, seeding and persisting the
// default channel set when the file does not exist yet.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &r.doc); err != nil {
			return nil, fmt.Errorf("corrupt registry %s: %w", path, err)
		}
	case os.IsNotExist(err):
		r.doc = registryDoc{Channels: append([]string(nil), seedChannels...), Users: []string{}}
		if err := r.persistLocked(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}
	if r.doc.Users == nil {
		r.doc.Users = []string{}
	}
	return r, nil
}

// AddUser registers a username. Registering an existing user is a no-op;
// the file is only rewritten when the set actually grows.
func (r *Registry) AddUser(name string) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if contains(r.doc.Users, name) {
		return nil
	}
	r.doc.Users = append(r.doc.Users, name)
	return r.persistLocked()
}

// AddChannel creates a channel. Names already in use and the reserved
// pub/sub topics are rejected before anything is written.
func (r *Registry) AddChannel(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if name == wire.TopicReplica || name == wire.TopicServers {
		return ErrReservedName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if contains(r.doc.Channels, name) {
		return ErrChannelExists
	}
	r.doc.Channels = append(r.doc.Channels, name)
	return r.persistLocked()
}

// HasChannel reports whether the channel exists.
func (r *Registry) HasChannel(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contains(r.doc.Channels, name)
}

// HasUser reports whether the user is registered.
func (r *Registry) HasUser(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return contains(r.doc.Users, name)
}

// Channels returns a copy of the channel list in creation order.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.doc.Channels...)
}

// Users returns a copy of the user list in registration order.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.doc.Users...)
}

// UserCount returns the number of registered users. The message handler
// only validates destinations once at least one user is known.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.doc.Users)
}

func (r *Registry) persistLocked() error {
	raw, err := json.Marshal(r.doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(r.path, raw, 0o644); err != nil {
		return fmt.Errorf("write registry %s: %w", r.path, err)
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
