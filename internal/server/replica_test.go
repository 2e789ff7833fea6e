package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/store"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

func TestReplicaAppliesPeerRecords(t *testing.T) {
	svc, pub := newTestServer(t)

	publish := wire.Record{
		Type: wire.RecordPublish, Origin: "srv2",
		Channel: "general", User: "bob", Message: "oi",
		Timestamp: wire.Timestamp(), Clock: 40,
	}
	message := wire.Record{
		Type: wire.RecordMessage, Origin: "srv2",
		Src: "bob", Dst: "alice", Message: "oi",
		Timestamp: wire.Timestamp(), Clock: 41,
	}
	svc.applyReplica(publish)
	svc.applyReplica(message)

	records, err := store.ReadJournal(svc.pubJournalPath())
	require.NoError(t, err)
	// The replicated record is identical to the peer's, origin included.
	assert.Equal(t, []wire.Record{publish}, records)

	records, err = store.ReadJournal(svc.msgJournalPath())
	require.NoError(t, err)
	assert.Equal(t, []wire.Record{message}, records)

	// Replication never re-emits: no frames left this server.
	assert.Empty(t, pub.frames)

	// The peer's clock was observed.
	assert.Greater(t, svc.clock.Now(), uint64(41))
}

func TestReplicaDropsOwnFramesBeforeAnySideEffect(t *testing.T) {
	svc, _ := newTestServer(t)

	before := svc.clock.Now()
	svc.applyReplica(wire.Record{
		Type: wire.RecordPublish, Origin: "srv1",
		Channel: "general", User: "alice", Message: "hi",
		Timestamp: wire.Timestamp(), Clock: 99,
	})

	records, err := store.ReadJournal(svc.pubJournalPath())
	require.NoError(t, err)
	assert.Empty(t, records)

	// Not even the clock moves for a self-originated frame.
	assert.Equal(t, before, svc.clock.Now())
}

func TestReplicaIgnoresUnknownRecordTypes(t *testing.T) {
	svc, _ := newTestServer(t)

	svc.applyReplica(wire.Record{Type: "weird", Origin: "srv2", Clock: 5})

	records, err := store.ReadJournal(svc.pubJournalPath())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJournalAccountingAcrossLocalAndReplicated(t *testing.T) {
	// Journal line count equals local OKs plus peer replicas applied.
	svc, _ := newTestServer(t)

	for i := 0; i < 3; i++ {
		reply := svc.Handle(wire.Frame{Service: "publish", Data: wire.Data{
			User: "alice", Channel: "general", Message: "hi",
		}})
		require.Equal(t, wire.StatusOK, reply.Data.Status)
	}
	svc.applyReplica(wire.Record{
		Type: wire.RecordPublish, Origin: "srv2",
		Channel: "general", User: "bob", Message: "oi",
		Timestamp: wire.Timestamp(), Clock: 10,
	})
	// A failed publish adds nothing.
	svc.Handle(wire.Frame{Service: "publish", Data: wire.Data{Channel: "nope"}})

	records, err := store.ReadJournal(svc.pubJournalPath())
	require.NoError(t, err)
	assert.Len(t, records, 4)
}
