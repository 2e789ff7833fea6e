package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

func setServers(s *Service, servers map[string]wire.ServerInfo) {
	s.mu.Lock()
	s.servers = servers
	s.mu.Unlock()
}

func TestElectAdoptsLowestRankWithoutSelfAnnouncement(t *testing.T) {
	// srv1 holds the lowest rank itself: it adopts silently.
	svc, pub := newTestServer(t)
	setServers(svc, map[string]wire.ServerInfo{
		"srv1": {Rank: 1},
		"srv2": {Rank: 2},
	})

	svc.elect()

	assert.Equal(t, "srv1", svc.Coordinator())
	assert.Empty(t, pub.frames)

	// Re-running with an unchanged outcome stays silent too.
	svc.elect()
	assert.Empty(t, pub.frames)
}

func TestElectAnnouncesAdoptionOfAPeer(t *testing.T) {
	// From srv2's point of view srv1 wins; the adoption is announced once.
	svc, pub := newTestServer(t)
	svc.cfg.Name = "srv2"
	setServers(svc, map[string]wire.ServerInfo{
		"srv1": {Rank: 1},
		"srv2": {Rank: 2},
		"srv3": {Rank: 3},
	})

	svc.elect()
	assert.Equal(t, "srv1", svc.Coordinator())
	require.Len(t, pub.frames, 1)
	assert.Equal(t, wire.TopicServers, pub.frames[0].topic)

	ann, err := wire.DecodeAnnouncement(pub.frames[0].payload)
	require.NoError(t, err)
	assert.Equal(t, "srv1", ann.Coordinator)
	assert.NotZero(t, ann.Clock)

	// A later refresh with the same winner emits nothing further.
	svc.elect()
	assert.Len(t, pub.frames, 1)
}

func TestElectWithEmptyMapKeepsCoordinatorUnset(t *testing.T) {
	svc, pub := newTestServer(t)

	svc.elect()
	assert.Empty(t, svc.Coordinator())
	assert.Empty(t, pub.frames)
}

func TestElectFollowsRegistryChanges(t *testing.T) {
	svc, pub := newTestServer(t)
	svc.cfg.Name = "srv3"

	setServers(svc, map[string]wire.ServerInfo{"srv2": {Rank: 2}, "srv3": {Rank: 3}})
	svc.elect()
	assert.Equal(t, "srv2", svc.Coordinator())
	assert.Len(t, pub.frames, 1)

	// A lower-ranked server appearing in the map shifts the coordinator.
	setServers(svc, map[string]wire.ServerInfo{"srv1": {Rank: 1}, "srv2": {Rank: 2}, "srv3": {Rank: 3}})
	svc.elect()
	assert.Equal(t, "srv1", svc.Coordinator())
	assert.Len(t, pub.frames, 2)
}

func TestApplyAnnouncementAdoptsAdvisory(t *testing.T) {
	svc, pub := newTestServer(t)

	svc.applyAnnouncement(wire.Announcement{Coordinator: "srv9", Timestamp: wire.Timestamp(), Clock: 12})
	assert.Equal(t, "srv9", svc.Coordinator())
	// Adoption from an announcement never cascades into more announcements.
	assert.Empty(t, pub.frames)

	// The announcement's clock was observed.
	assert.Greater(t, svc.clock.Now(), uint64(12))
}

func TestLowestRank(t *testing.T) {
	name, ok := lowestRank(map[string]wire.ServerInfo{
		"b": {Rank: 7},
		"a": {Rank: 3},
		"c": {Rank: 9},
	})
	assert.True(t, ok)
	assert.Equal(t, "a", name)

	_, ok = lowestRank(nil)
	assert.False(t, ok)
}
