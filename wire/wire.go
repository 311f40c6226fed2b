// Package wire defines the fixed-size binary records exchanged between Car
// and Fob and stored in EEPROM/flash. All records are little-endian
// (ENDIAN=1) and have no schema or tags: offsets are fixed by position, the
// way the original firmware's C structs were.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Field sizes, named the way driver/otp names its bootrom constants instead
// of inlining them.
const (
	PrivKeySize = 32 // P256Priv: a raw scalar.
	PubKeySize  = 64 // P256Pub: uncompressed X||Y, no 0x04 prefix.
	SigSize     = 64 // Signature: r||s.

	ChallengeSize = 64
	NumFeatures   = 3

	// ResponseSize = sig(64) + 3*package(64) = 256.
	ResponseSize = SigSize + NumFeatures*SigSize

	// PairPacketSize = car_privkey(32) + pin(4).
	PairPacketSize = PrivKeySize + 4

	// CarDataSize = car_pubkey(64) + host_pubkey(64).
	CarDataSize = PubKeySize + PubKeySize

	// FobRecordSize = paired(4) + pin(4) + car_privkey(32) + 3*package(64).
	FobRecordSize = 4 + 4 + PrivKeySize + NumFeatures*SigSize
)

// Sentinels marking an empty or unpaired slot.
const (
	UnpairedSentinel uint32 = 0xFFFFFFFF
	PairedSentinel   uint32 = 0x20202020
)

// P256Priv is a raw ECDSA-P256 private scalar.
type P256Priv [PrivKeySize]byte

// P256Pub is an uncompressed ECDSA-P256 public point, X||Y.
type P256Pub [PubKeySize]byte

// Signature is an ECDSA-P256 signature, r||s.
type Signature [SigSize]byte

// Package is a Host-issued ECDSA-P256 signature over
// SHA256(car_pubkey || feature_index), authorizing one feature on one car.
// The all-0xFF value means "slot empty."
type Package = Signature

// emptyPackage is the all-0xFF sentinel value for an unused feature slot.
var emptyPackage = func() Package {
	var p Package
	for i := range p {
		p[i] = 0xFF
	}
	return p
}()

// IsEmpty reports whether p is the all-0xFF "slot empty" sentinel.
func (p Package) IsEmpty() bool {
	return p == emptyPackage
}

// EmptyPackage returns the all-0xFF sentinel value for an unused slot.
func EmptyPackage() Package {
	return emptyPackage
}

// Challenge is the 64 random bytes a Car sends a Fob to start an unlock
// attempt. Ephemeral, zeroized after use.
type Challenge [ChallengeSize]byte

// Zero overwrites c in place. Call on every exit path per §5.
func (c *Challenge) Zero() {
	clear(c[:])
}

// Response is a Fob's reply to a Challenge: its signature over the
// challenge plus its three (possibly-empty) installed feature packages.
type Response struct {
	UnlockSig Signature
	Feature   [NumFeatures]Package
}

// Zero overwrites r in place. Call on every exit path per §5.
func (r *Response) Zero() {
	clear(r.UnlockSig[:])
	for i := range r.Feature {
		clear(r.Feature[i][:])
	}
}

func (r Response) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ResponseSize)
	n := copy(buf, r.UnlockSig[:])
	for _, f := range r.Feature {
		n += copy(buf[n:], f[:])
	}
	return buf, nil
}

func (r *Response) UnmarshalBinary(data []byte) error {
	if len(data) != ResponseSize {
		return fmt.Errorf("wire: response: want %d bytes, got %d", ResponseSize, len(data))
	}
	n := copy(r.UnlockSig[:], data)
	for i := range r.Feature {
		n += copy(r.Feature[i][:], data[n:])
	}
	return nil
}

// PairPacket carries a paired fob's signing key and PIN to an unpaired fob
// during pairing. Transient on the wire; zeroized after use.
type PairPacket struct {
	CarPrivKey P256Priv
	PIN        uint32
}

// Zero overwrites p in place. Call on every exit path per §5.
func (p *PairPacket) Zero() {
	clear(p.CarPrivKey[:])
	p.PIN = 0
}

func (p PairPacket) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PairPacketSize)
	n := copy(buf, p.CarPrivKey[:])
	binary.LittleEndian.PutUint32(buf[n:], p.PIN)
	return buf, nil
}

func (p *PairPacket) UnmarshalBinary(data []byte) error {
	if len(data) != PairPacketSize {
		return fmt.Errorf("wire: pair packet: want %d bytes, got %d", PairPacketSize, len(data))
	}
	n := copy(p.CarPrivKey[:], data)
	p.PIN = binary.LittleEndian.Uint32(data[n:])
	return nil
}

// CarData is the Car's EEPROM-resident identity: its own P256 keypair's
// public half and the Host's public key, used to verify unlock and feature
// signatures respectively. Written once by provisioning.
type CarData struct {
	CarPubKey  P256Pub
	HostPubKey P256Pub
}

func (c CarData) MarshalBinary() ([]byte, error) {
	buf := make([]byte, CarDataSize)
	n := copy(buf, c.CarPubKey[:])
	copy(buf[n:], c.HostPubKey[:])
	return buf, nil
}

func (c *CarData) UnmarshalBinary(data []byte) error {
	if len(data) != CarDataSize {
		return fmt.Errorf("wire: car data: want %d bytes, got %d", CarDataSize, len(data))
	}
	n := copy(c.CarPubKey[:], data)
	copy(c.HostPubKey[:], data[n:])
	return nil
}

// FobRecord is the common shape of a fob's persistent secret state: the
// EEPROM record a provisioning tool writes for an OG-PFOB, and the flash
// record every fob (paired or not) keeps. Having one wire shape for both is
// what lets §4.9's bootstrap copy an OG-PFOB's EEPROM record into flash with
// a plain byte copy, and is why a Derived Paired Fob is indistinguishable at
// runtime from an OG-PFOB except for *where* the bytes live.
type FobRecord struct {
	Paired     uint32
	PIN        uint32
	CarPrivKey P256Priv
	Feature    [NumFeatures]Package
}

// IsPaired reports whether r's Paired field is the paired sentinel. Any
// value other than PairedSentinel (including UnpairedSentinel and erased
// 0xFFFFFFFF) is treated as unpaired.
func (r FobRecord) IsPaired() bool {
	return r.Paired == PairedSentinel
}

func (r FobRecord) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FobRecordSize)
	binary.LittleEndian.PutUint32(buf[0:], r.Paired)
	binary.LittleEndian.PutUint32(buf[4:], r.PIN)
	n := 8
	n += copy(buf[n:], r.CarPrivKey[:])
	for _, f := range r.Feature {
		n += copy(buf[n:], f[:])
	}
	return buf, nil
}

func (r *FobRecord) UnmarshalBinary(data []byte) error {
	if len(data) != FobRecordSize {
		return fmt.Errorf("wire: fob record: want %d bytes, got %d", FobRecordSize, len(data))
	}
	r.Paired = binary.LittleEndian.Uint32(data[0:])
	r.PIN = binary.LittleEndian.Uint32(data[4:])
	n := 8
	n += copy(r.CarPrivKey[:], data[n:])
	for i := range r.Feature {
		n += copy(r.Feature[i][:], data[n:])
	}
	return nil
}

// Zero overwrites r's secret fields in place.
func (r *FobRecord) Zero() {
	clear(r.CarPrivKey[:])
	r.PIN = 0
}

// EEPROM layout constants for the Car.
const (
	UnlockEEPROMLoc  = 0x7C0
	UnlockEEPROMSize = 64
	FeatureEnd       = UnlockEEPROMLoc
	FeatureSize      = 64
)

// FeatureEEPROMOffset returns the EEPROM offset of feature slot i (0-based),
// slots growing downward from the unlock message.
func FeatureEEPROMOffset(i int) int {
	return FeatureEnd - (i+1)*FeatureSize
}

// CarEEPROMSize is the size of a Car's whole EEPROM image: CarData at
// offset 0, followed by the unlock message and feature slots ending at
// UnlockEEPROMLoc+UnlockEEPROMSize.
const CarEEPROMSize = UnlockEEPROMLoc + UnlockEEPROMSize

// Flash layout constants.
const (
	EntropyPoolSize = 1024
)
