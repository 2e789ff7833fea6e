package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := OpenRegistry(filepath.Join(t.TempDir(), "registry.json"))
	require.NoError(t, err)
	return r
}

func TestRegistrySeedsDefaults(t *testing.T) {
	r := openTestRegistry(t)

	assert.Equal(t, []string{"general", "random", "dev"}, r.Channels())
	assert.Empty(t, r.Users())
	assert.True(t, r.HasChannel("general"))
	assert.False(t, r.HasChannel("nope"))
}

func TestRegistryPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.json")

	r, err := OpenRegistry(path)
	require.NoError(t, err)
	require.NoError(t, r.AddUser("alice"))
	require.NoError(t, r.AddChannel("games"))

	reopened, err := OpenRegistry(path)
	require.NoError(t, err)
	assert.True(t, reopened.HasUser("alice"))
	assert.True(t, reopened.HasChannel("games"))
}

func TestAddUserIsIdempotent(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.AddUser("alice"))
	require.NoError(t, r.AddUser("alice"))
	assert.Equal(t, []string{"alice"}, r.Users())
	assert.Equal(t, 1, r.UserCount())
}

func TestAddChannelRejectsDuplicatesAndReservedNames(t *testing.T) {
	r := openTestRegistry(t)

	require.NoError(t, r.AddChannel("games"))
	assert.ErrorIs(t, r.AddChannel("games"), ErrChannelExists)
	assert.ErrorIs(t, r.AddChannel("general"), ErrChannelExists)

	assert.ErrorIs(t, r.AddChannel(wire.TopicReplica), ErrReservedName)
	assert.ErrorIs(t, r.AddChannel(wire.TopicServers), ErrReservedName)

	assert.ErrorIs(t, r.AddChannel(""), ErrEmptyName)
}

func TestJournalAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "publications.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)
	defer j.Close()

	recs := []wire.Record{
		{Type: wire.RecordPublish, Origin: "srv1", Channel: "general", User: "alice", Message: "hi", Timestamp: wire.Timestamp(), Clock: 1},
		{Type: wire.RecordPublish, Origin: "srv2", Channel: "dev", User: "bob", Message: "oi", Timestamp: wire.Timestamp(), Clock: 7},
	}
	for _, rec := range recs {
		require.NoError(t, j.Append(rec))
	}

	got, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Equal(t, recs, got)
}

func TestReadJournalToleratesTornLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.jsonl")
	j, err := OpenJournal(path)
	require.NoError(t, err)

	rec := wire.Record{Type: wire.RecordMessage, Origin: "srv1", Src: "alice", Dst: "bob", Message: "yo", Timestamp: wire.Timestamp(), Clock: 2}
	require.NoError(t, j.Append(rec))
	require.NoError(t, j.Close())

	// Simulate a crash mid-append: a partial JSON object with no newline.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"message","origin":"srv1","mess`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := ReadJournal(path)
	require.NoError(t, err)
	assert.Equal(t, []wire.Record{rec}, got)
}

func TestReadJournalMissingFile(t *testing.T) {
	got, err := ReadJournal(filepath.Join(t.TempDir(), "absent.jsonl"))
	require.NoError(t, err)
	assert.Nil(t, got)
}
