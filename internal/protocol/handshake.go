package protocol

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/rclone/arsync/internal/syncerr"
	"github.com/rclone/arsync/internal/transport"
)

// State is the handshake's nine-state machine plus its terminal Failed
// state, reachable from any non-terminal state.
type State int

// States, in the order the spec names them.
const (
	Initial State = iota
	VersionSent
	VersionReceived
	VersionNegotiated
	CapabilitiesSent
	CapabilitiesReceived
	SeedSent
	SeedReceived
	Complete
	Failed
)

// FailureReason names why a handshake reached Failed.
type FailureReason string

// Failure reasons.
const (
	ReasonUnsupportedVersion FailureReason = "unsupported_version"
	ReasonTransport          FailureReason = "transport"
)

// Handshake drives one side of the nine-state negotiation over a
// transport.Stream. It never reads past the bytes it owes, so a
// mismatched version fails fast without consuming the peer's later
// message groups.
type Handshake struct {
	Stream           transport.Stream
	LocalVersion     uint32
	LocalCapability  uint32
	Role             Role // reported in the Session; seed generation depends on GenerateSeed alone
	GenerateSeed     bool

	state  State
	reason FailureReason
}

// NewHandshake builds a Handshake offering localVersion (clamped by the
// caller to [MinVersion, MaxVersion]) and localCapability as this peer's
// bitmask.
func NewHandshake(stream transport.Stream, localVersion, localCapability uint32, role Role, generateSeed bool) *Handshake {
	return &Handshake{
		Stream:          stream,
		LocalVersion:    localVersion,
		LocalCapability: localCapability,
		Role:            role,
		GenerateSeed:    generateSeed,
		state:           Initial,
	}
}

// State reports the handshake's current state.
func (h *Handshake) State() State { return h.state }

// Run executes the full negotiation and returns the resulting Session, or
// a ProtocolError if negotiation fails at any step.
func (h *Handshake) Run() (*Session, error) {
	version, err := h.negotiateVersion()
	if err != nil {
		return nil, err
	}
	capability, err := h.negotiateCapabilities()
	if err != nil {
		return nil, err
	}
	seed, err := h.negotiateSeed()
	if err != nil {
		return nil, err
	}
	h.state = Complete
	return &Session{
		Version:      version,
		Capabilities: capabilitiesFromMask(capability),
		Seed:         seed,
		Role:         h.Role,
	}, nil
}

func (h *Handshake) fail(reason FailureReason, err error) error {
	h.state = Failed
	h.reason = reason
	return syncerr.NewProtocolError(string(reason), err)
}

func (h *Handshake) negotiateVersion() (uint32, error) {
	if err := h.Stream.WriteAll(putUint32(h.LocalVersion)); err != nil {
		return 0, h.fail(ReasonTransport, err)
	}
	h.state = VersionSent

	peerBytes, err := h.Stream.ReadExact(4)
	if err != nil {
		return 0, h.fail(ReasonTransport, err)
	}
	peerVersion := getUint32(peerBytes)
	h.state = VersionReceived

	agreed := h.LocalVersion
	if peerVersion < agreed {
		agreed = peerVersion
	}
	if agreed < MinVersion || agreed > MaxVersion {
		return 0, h.fail(ReasonUnsupportedVersion, fmt.Errorf("agreed version %d outside [%d, %d]", agreed, MinVersion, MaxVersion))
	}
	h.state = VersionNegotiated
	return agreed, nil
}

func (h *Handshake) negotiateCapabilities() (uint32, error) {
	if err := h.Stream.WriteAll(putUint32(h.LocalCapability)); err != nil {
		return 0, h.fail(ReasonTransport, err)
	}
	h.state = CapabilitiesSent

	peerBytes, err := h.Stream.ReadExact(4)
	if err != nil {
		return 0, h.fail(ReasonTransport, err)
	}
	h.state = CapabilitiesReceived
	return h.LocalCapability & getUint32(peerBytes), nil
}

func (h *Handshake) negotiateSeed() (uint32, error) {
	if h.GenerateSeed {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, h.fail(ReasonTransport, err)
		}
		if err := h.Stream.WriteAll(b[:]); err != nil {
			return 0, h.fail(ReasonTransport, err)
		}
		h.state = SeedSent
		return binary.LittleEndian.Uint32(b[:]), nil
	}
	seedBytes, err := h.Stream.ReadExact(4)
	if err != nil {
		return 0, h.fail(ReasonTransport, err)
	}
	h.state = SeedReceived
	return getUint32(seedBytes), nil
}
