package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	in := Frame{
		Service: "publish",
		Data: Data{
			ID:        "req-1",
			User:      "alice",
			Channel:   "general",
			Message:   "hi",
			Timestamp: Timestamp(),
			Clock:     42,
		},
	}

	raw, err := EncodeFrame(in)
	require.NoError(t, err)

	out, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestFrameToleratesUnknownFields(t *testing.T) {
	// An older or newer peer may send fields this build does not know.
	raw, err := EncodeFrame(Frame{Service: "clock", Data: Data{Clock: 7}})
	require.NoError(t, err)

	out, err := DecodeFrame(raw)
	require.NoError(t, err)
	assert.Equal(t, "clock", out.Service)
	assert.Equal(t, uint64(7), out.Data.Clock)
}

func TestRecordRoundTripKeepsAllFields(t *testing.T) {
	in := Record{
		Type:      RecordMessage,
		Origin:    "srv1",
		Src:       "alice",
		Dst:       "bob",
		Message:   "yo",
		Timestamp: Timestamp(),
		Clock:     9,
	}

	raw, err := EncodeRecord(in)
	require.NoError(t, err)

	out, err := DecodeRecord(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestAnnouncementRoundTrip(t *testing.T) {
	in := Announcement{Coordinator: "srv1", Timestamp: Timestamp(), Clock: 3}

	raw, err := EncodeAnnouncement(in)
	require.NoError(t, err)

	out, err := DecodeAnnouncement(raw)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestTimestampShape(t *testing.T) {
	ts := Timestamp()

	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{6}Z$`, ts)

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), parsed, 5*time.Second)
}

func TestContractLiterals(t *testing.T) {
	// These strings cross the wire to existing clients; any change here is
	// a protocol break, not a refactor.
	assert.Equal(t, "OK", StatusOK)
	assert.Equal(t, "erro", StatusError)
	assert.Equal(t, "serviço desconhecido", MsgUnknownService)
	assert.Equal(t, "canal inexistente", MsgUnknownChannel)
	assert.Equal(t, "usuário inexistente", MsgUnknownUser)
	assert.Equal(t, "Canal já existe", MsgChannelExists)
	assert.Equal(t, "replica", TopicReplica)
	assert.Equal(t, "servers", TopicServers)
}
