// Package message defines the versioned records exchanged between the game
// client and the level server.
//
// Every variant is a flat struct embedding Header. Kind is the wire
// discriminant; the registry in this package maps it back to a constructor so
// a decoder never depends on Go type identity.
package message

// Local protocol version stamped into every outgoing message.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

// ScoreboardSize is the number of slots in a scoreboard.
const ScoreboardSize = 5

// Kind identifies a message variant on the wire.
type Kind uint16

const (
	KindUnknown Kind = iota
	KindSubmitLevel
	KindLevelSubmitted
	KindRequestLevels
	KindLevels
	KindRequestLevelData
	KindLevelData
	KindRequestScoreboard
	KindScoreboard
	KindCheckName
	KindConfirmName
	KindSubmitScore
)

// Header carries the protocol version the sender was built with.
type Header struct {
	VersionMajor uint16 `codec:"vmaj"`
	VersionMinor uint16 `codec:"vmin"`
}

// NewHeader returns a header stamped with the local protocol version.
func NewHeader() Header {
	return Header{VersionMajor: VersionMajor, VersionMinor: VersionMinor}
}

// Version returns the header itself so embedding types satisfy Message.
func (h Header) Version() Header {
	return h
}

// Message is implemented by every wire variant.
// Kind must not dereference its receiver: it is called on typed nil pointers
// to resolve the kind of a generic parameter.
type Message interface {
	Kind() Kind
	Version() Header
}

// ScoreboardEntry is one scoreboard line. Time is in milliseconds.
type ScoreboardEntry struct {
	Name string `codec:"name"`
	Time int64  `codec:"time"`
}

// Gate is the major/minor compatibility check applied to inbound messages.
type Gate struct {
	Major uint16
	Minor uint16
}

// DefaultGate returns a gate at the local protocol version.
func DefaultGate() Gate {
	return Gate{Major: VersionMajor, Minor: VersionMinor}
}

// Allows reports whether m may be dispatched. Messages from a newer major
// version, messages older than the gate's minor version and unversioned
// messages are rejected.
func (g Gate) Allows(m Message) bool {
	if m == nil {
		return false
	}
	v := m.Version()
	if v.VersionMajor == 0 {
		return false
	}
	if g.Major < v.VersionMajor {
		return false
	}
	return g.Minor <= v.VersionMinor
}
