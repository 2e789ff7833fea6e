package server

import (
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// syncWithRef runs the periodic coordination cycle: a clock probe against
// the reference service (the reply only feeds the Lamport clock, no
// physical clock is adjusted), then a fresh server
// list and a re-election. A silent registry leaves the cached view stale;
// the next cycle retries.
func (s *Service) syncWithRef() {
	if _, err := s.ref.request("clock", wire.Data{}); err != nil {
		s.log.Warn("clock sync probe failed", zap.Error(err))
		return
	}

	reply, err := s.ref.request("list", wire.Data{})
	if err != nil {
		s.log.Warn("server list refresh failed", zap.Error(err))
		return
	}

	s.mu.Lock()
	s.servers = reply.Data.List
	s.mu.Unlock()

	s.elect()
}

// elect recomputes the coordinator (lowest rank wins) from the cached
// server map and caches the result. A change is announced on the servers
// topic unless the winner is this server itself: peers learn of a new
// coordinator from whoever adopts it, and nobody campaigns for themselves.
func (s *Service) elect() {
	s.mu.Lock()
	name, ok := lowestRank(s.servers)
	changed := ok && name != s.coordinator
	if changed {
		s.coordinator = name
	}
	s.mu.Unlock()

	if !changed {
		return
	}

	s.met.Elections.Inc()
	s.log.Info("coordinator elected", zap.String("coordinator", name), zap.Int("own_rank", s.rank))

	if name != s.cfg.Name {
		s.announce(name)
	}
}

// announce publishes an election announcement for the adopted coordinator.
func (s *Service) announce(coordinator string) {
	ann := wire.Announcement{
		Coordinator: coordinator,
		Timestamp:   wire.Timestamp(),
		Clock:       s.clock.Next(),
	}
	raw, err := wire.EncodeAnnouncement(ann)
	if err != nil {
		s.log.Error("encode announcement failed", zap.Error(err))
		return
	}
	if err := s.pub.publish(wire.TopicServers, raw); err != nil {
		s.log.Error("announce failed", zap.Error(err))
	}
}

// Coordinator returns the currently adopted coordinator, empty before the
// first election.
func (s *Service) Coordinator() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator
}

// lowestRank returns the name holding the minimum rank in the map. Ties on
// rank cannot happen (ranks are unique by construction); an empty map has
// no coordinator.
func lowestRank(servers map[string]wire.ServerInfo) (string, bool) {
	best := ""
	bestRank := 0
	for name, info := range servers {
		if best == "" || info.Rank < bestRank {
			best = name
			bestRank = info.Rank
		}
	}
	return best, best != ""
}
