package tddb

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a Bluetooth device address split into its NAP, UAP and LAP
// parts. LAP uses the low 24 bits.
type Address struct {
	NAP uint16
	UAP uint8
	LAP uint32
}

// ParseAddress parses the textual form "NN:NN:UU:LL:LL:LL", most
// significant byte first.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Address{}, fmt.Errorf("parse address %q: want 6 octets: %w", s, ErrInvalidParams)
	}

	var octets [6]byte

	for i, p := range parts {
		if len(p) != 2 {
			return Address{}, fmt.Errorf("parse address %q: octet %d: %w", s, i, ErrInvalidParams)
		}

		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return Address{}, fmt.Errorf("parse address %q: octet %d: %w", s, i, ErrInvalidParams)
		}

		octets[i] = byte(v)
	}

	return Address{
		NAP: uint16(octets[0])<<8 | uint16(octets[1]),
		UAP: octets[2],
		LAP: uint32(octets[3])<<16 | uint32(octets[4])<<8 | uint32(octets[5]),
	}, nil
}

func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		byte(a.NAP>>8), byte(a.NAP), a.UAP,
		byte(a.LAP>>16), byte(a.LAP>>8), byte(a.LAP))
}

// IsZero reports whether every part of the address is zero.
func (a Address) IsZero() bool {
	return a.NAP == 0 && a.UAP == 0 && a.LAP&0xFFFFFF == 0
}

// AddressType is the 2-bit address type stored with each device.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandom
	AddressPublicIdentity
	AddressRandomIdentity
)

var addressTypeNames = [...]string{
	AddressPublic:         "public",
	AddressRandom:         "random",
	AddressPublicIdentity: "public-id",
	AddressRandomIdentity: "random-id",
}

func (t AddressType) String() string {
	if int(t) < len(addressTypeNames) {
		return addressTypeNames[t]
	}

	return fmt.Sprintf("type(%d)", uint8(t))
}

// ParseAddressType parses the names printed by [AddressType.String].
func ParseAddressType(s string) (AddressType, error) {
	for i, name := range addressTypeNames {
		if strings.EqualFold(s, name) {
			return AddressType(i), nil
		}
	}

	return 0, fmt.Errorf("parse address type %q: %w", s, ErrInvalidParams)
}

// TypedAddr identifies a device: an address plus its type. Two devices with
// the same address but different types are distinct.
type TypedAddr struct {
	Type AddressType
	Addr Address
}

// ParseTypedAddr parses "ADDR" (public) or "ADDR/TYPE", e.g.
// "00:1A:7D:DA:71:13/random".
func ParseTypedAddr(s string) (TypedAddr, error) {
	addrPart, typePart, hasType := strings.Cut(s, "/")

	addr, err := ParseAddress(addrPart)
	if err != nil {
		return TypedAddr{}, err
	}

	typ := AddressPublic

	if hasType {
		typ, err = ParseAddressType(typePart)
		if err != nil {
			return TypedAddr{}, err
		}
	}

	return TypedAddr{Type: typ, Addr: addr}, nil
}

func (t TypedAddr) String() string {
	return t.Addr.String() + "/" + t.Type.String()
}

// Source is an attribute namespace owned by one subsystem.
type Source uint8

const (
	SourceGAP Source = iota
	SourceSecurity
	SourceGATT
	SourceDirect

	// SourceMax is the number of known sources.
	SourceMax
)

var sourceNames = [...]string{
	SourceGAP:      "gap",
	SourceSecurity: "security",
	SourceGATT:     "gatt",
	SourceDirect:   "direct",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}

	return fmt.Sprintf("source(%d)", uint8(s))
}

// ParseSource parses a source name or its number.
func ParseSource(s string) (Source, error) {
	for i, name := range sourceNames {
		if strings.EqualFold(s, name) {
			return Source(i), nil
		}
	}

	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("parse source %q: %w", s, ErrInvalidSupplier)
	}

	return Source(n), nil
}

// Attribute keys per source.
const (
	KeyGAPDefault    uint16 = 0
	KeySecurityBREDR uint16 = 0
	KeySecurityLE    uint16 = 1
	KeyGATTCache     uint16 = 0
	KeyDirectAttr    uint16 = 0

	keySecurityCount = 2
)

// Fixed record sizes of the security source.
const (
	// LEKeysSize is the size in bytes of the LE keys record including the
	// trailing signing block.
	LEKeysSize = 76

	// LESignBlockSize is the size of the signing block (CSRK and counter)
	// at the end of the LE keys record. Records written before the block
	// existed are exactly this much shorter.
	LESignBlockSize = 20
)

// UpdateFlag selects what PrioritiseDevice does.
type UpdateFlag uint8

const (
	// UpdateMRU marks the device most recently used.
	UpdateMRU UpdateFlag = 1 << 0

	// UpdatePrioritise sets the priority bit.
	UpdatePrioritise UpdateFlag = 1 << 1

	// UpdateDeprioritise clears the priority bit and places the device just
	// ahead of the most recently used non-priority device.
	UpdateDeprioritise UpdateFlag = 1 << 2
)

// Filter selects which devices DeleteAll keeps.
type Filter uint8

const (
	// FilterExcludeNone deletes every device.
	FilterExcludeNone Filter = 0

	// FilterExcludePriority keeps priority devices.
	FilterExcludePriority Filter = 1 << 0
)

// DeviceInfo describes one device in rank order.
type DeviceInfo struct {
	TypedAddr

	Rank     int
	Priority bool
}

// EntryInfo is returned by the by-rank read operations.
type EntryInfo struct {
	Addr     TypedAddr
	Priority bool

	// Length is the stored length in bytes, rounded up to a whole word.
	Length int
}
