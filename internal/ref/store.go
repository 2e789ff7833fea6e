// Package ref implements the reference service: the single source of truth
// for server naming, rank assignment and liveness bookkeeping that backs
// the lowest-rank-wins coordinator election.
//
// The service is a strict request/reply responder. Four services are
// exposed: rank (register and return a server's rank), list (full server
// map), heartbeat (refresh last_beat) and clock (physical time probe for
// the Berkeley-style sync hook). State is one JSON document rewritten on
// every mutation; a torn or missing file starts the map empty, since the
// map reconstructs itself as servers re-register.
//
// Ranks are monotone and never reissued. Dead servers are never removed:
// if the lowest-ranked server is gone for good, election cannot move past
// it without an operator editing ref_servers.json offline. That limitation
// is inherited from the protocol, not an implementation accident.
package ref

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// ServersFile is the persistence file name inside the persist directory.
const ServersFile = "ref_servers.json"

// Store holds the server map. Safe for concurrent use, although the REP
// loop is the only writer in practice.
type Store struct {
	mu      sync.Mutex
	path    string
	servers map[string]wire.ServerInfo
}

// OpenStore loads the server map at path. Unparseable state degrades to
// an empty map; the warning is left to the caller's logger via the
// returned flag.
func OpenStore(path string) (*Store, bool, error) {
	s := &Store{path: path, servers: map[string]wire.ServerInfo{}}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.servers); err != nil {
		// Torn write on a previous shutdown: accept the loss and restart
		// empty rather than refusing to boot.
		s.servers = map[string]wire.ServerInfo{}
		return s, true, nil
	}
	return s, false, nil
}

// Rank returns the rank of name, assigning the next free rank on first
// sight. Repeat calls for the same name are idempotent. An empty name is
// never registered and ranks as zero.
func (s *Store) Rank(name string) (int, error) {
	if name == "" {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if info, ok := s.servers[name]; ok {
		return info.Rank, nil
	}

	rank := len(s.servers) + 1
	s.servers[name] = wire.ServerInfo{Rank: rank, LastBeat: wire.Timestamp()}
	if err := s.persistLocked(); err != nil {
		return rank, err
	}
	return rank, nil
}

// Heartbeat refreshes last_beat for a known server. Unknown names are
// ignored: heartbeat never auto-registers.
func (s *Store) Heartbeat(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.servers[name]
	if !ok {
		return false, nil
	}
	info.LastBeat = wire.Timestamp()
	s.servers[name] = info
	return true, s.persistLocked()
}

// Snapshot returns a copy of the full server map.
func (s *Store) Snapshot() map[string]wire.ServerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]wire.ServerInfo, len(s.servers))
	for name, info := range s.servers {
		out[name] = info
	}
	return out
}

func (s *Store) persistLocked() error {
	raw, err := json.Marshal(s.servers)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
