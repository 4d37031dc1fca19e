// Package protocol implements the handshake protocol (C8): version,
// capability, and seed exchange over a transport.Stream, producing a
// negotiated Session descriptor.
package protocol

import "encoding/binary"

// Supported protocol version range and the preferred value offered when
// a peer doesn't constrain it further.
const (
	MinVersion       = 27
	MaxVersion       = 40
	PreferredVersion = 31
)

// Capability bit positions (0..9); all others are reserved zero.
const (
	CapIncrementalChecksum = 1 << 0
	CapSymlink             = 1 << 1
	CapHardlink            = 1 << 2
	CapDeviceFile          = 1 << 3
	CapXattr               = 1 << 4
	CapACL                 = 1 << 5
	CapCompressionRequested = 1 << 6
	CapIncrementalRecursion = 1 << 7
	CapProtectArgs          = 1 << 8
	CapFileFlags            = 1 << 9
)

func putUint32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func getUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}
