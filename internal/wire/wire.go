// Package wire defines the frame formats spoken by every participant of the
// messaging federation: the request/reply frames routed through the broker,
// the records published through the proxy, and the coordination frames
// exchanged between servers.
//
// All socket traffic is MessagePack-encoded. The same structures carry JSON
// tags because publish and message records are also persisted verbatim as
// line-delimited JSON in the append-only logs.
//
// Status values and user-facing error strings are part of the wire contract
// and must not be translated or reworded: existing clients match on them.
package wire

import (
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Reply status values.
const (
	StatusOK    = "OK"
	StatusError = "erro"
)

// User-facing error strings, fixed by the client contract.
const (
	MsgUnknownService = "serviço desconhecido"
	MsgUnknownChannel = "canal inexistente"
	MsgUnknownUser    = "usuário inexistente"
	MsgChannelExists  = "Canal já existe"
	MsgReservedName   = "nome de canal reservado"
	MsgMissingUser    = "usuário não informado"
	MsgMissingChannel = "canal não informado"
)

// Reserved pub/sub topics. User channels must never collide with these:
// replica carries inter-server write replication, servers carries election
// announcements.
const (
	TopicReplica = "replica"
	TopicServers = "servers"
)

// Record types appended to the durable logs and echoed on the replica topic.
const (
	RecordPublish = "publish"
	RecordMessage = "message"
)

// Frame is the single-payload request/reply envelope exchanged between
// clients, the broker, the application servers and the reference service.
type Frame struct {
	Service string `msgpack:"service" json:"service"`
	Data    Data   `msgpack:"data" json:"data"`
}

// Data carries the union of the fields used by any service. Absent fields
// are omitted on the wire; receivers treat missing and zero identically.
type Data struct {
	ID      string `msgpack:"id,omitempty" json:"id,omitempty"` // client correlation ID
	User    string `msgpack:"user,omitempty" json:"user,omitempty"`
	Channel string `msgpack:"channel,omitempty" json:"channel,omitempty"`
	Message string `msgpack:"message,omitempty" json:"message,omitempty"`
	Src     string `msgpack:"src,omitempty" json:"src,omitempty"`
	Dst     string `msgpack:"dst,omitempty" json:"dst,omitempty"`

	Status   string   `msgpack:"status,omitempty" json:"status,omitempty"`
	Users    []string `msgpack:"users,omitempty" json:"users,omitempty"`
	Channels []string `msgpack:"channels,omitempty" json:"channels,omitempty"`

	List     map[string]ServerInfo `msgpack:"list,omitempty" json:"list,omitempty"`
	Rank     int                   `msgpack:"rank,omitempty" json:"rank,omitempty"`
	Time     string                `msgpack:"time,omitempty" json:"time,omitempty"`
	Election string                `msgpack:"election,omitempty" json:"election,omitempty"`

	Timestamp string `msgpack:"timestamp,omitempty" json:"timestamp,omitempty"`
	Clock     uint64 `msgpack:"clock,omitempty" json:"clock,omitempty"`
}

// ServerInfo is one entry of the reference service's server map.
type ServerInfo struct {
	Rank     int    `msgpack:"rank" json:"rank"`
	LastBeat string `msgpack:"last_beat" json:"last_beat"`
}

// Record is a publish or direct-message event. It is sent to channel and
// user subscribers, appended to the originating server's log, and echoed on
// the replica topic for peers. Origin names the producing server and is
// never rewritten by replicators.
type Record struct {
	Type      string `msgpack:"type" json:"type"`
	Origin    string `msgpack:"origin" json:"origin"`
	Channel   string `msgpack:"channel,omitempty" json:"channel,omitempty"`
	User      string `msgpack:"user,omitempty" json:"user,omitempty"`
	Src       string `msgpack:"src,omitempty" json:"src,omitempty"`
	Dst       string `msgpack:"dst,omitempty" json:"dst,omitempty"`
	Message   string `msgpack:"message" json:"message"`
	Timestamp string `msgpack:"timestamp" json:"timestamp"`
	Clock     uint64 `msgpack:"clock" json:"clock"`
}

// Announcement is published on the servers topic when a server adopts a new
// coordinator after re-election.
type Announcement struct {
	Coordinator string `msgpack:"coordinator" json:"coordinator"`
	Timestamp   string `msgpack:"timestamp" json:"timestamp"`
	Clock       uint64 `msgpack:"clock" json:"clock"`
}

// Timestamp returns the current physical time in the ISO-8601 UTC form used
// on every frame, e.g. "2026-08-26T12:34:56.789012Z".
func Timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

// EncodeFrame serializes a request/reply frame for the wire.
func EncodeFrame(f Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

// DecodeFrame parses a request/reply frame received from the wire.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	err := msgpack.Unmarshal(raw, &f)
	return f, err
}

// EncodeRecord serializes a publish/message record for the pub/sub fabric.
func EncodeRecord(r Record) ([]byte, error) {
	return msgpack.Marshal(r)
}

// DecodeRecord parses a record received from a topic subscription.
func DecodeRecord(raw []byte) (Record, error) {
	var r Record
	err := msgpack.Unmarshal(raw, &r)
	return r, err
}

// EncodeAnnouncement serializes an election announcement.
func EncodeAnnouncement(a Announcement) ([]byte, error) {
	return msgpack.Marshal(a)
}

// DecodeAnnouncement parses an election announcement.
func DecodeAnnouncement(raw []byte) (Announcement, error) {
	var a Announcement
	err := msgpack.Unmarshal(raw, &a)
	return a, err
}
