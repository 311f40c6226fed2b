// Package provision builds and loads the factory secrets bundle: the YAML
// file an offline signer uses to write EEPROM images for one Car and its
// first paired fob, and later to sign feature packages against that Car's
// public key.
package provision

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"carfob.dev/crypto"
	"carfob.dev/wire"
)

// hexBytes32 is a fixed-length byte array that marshals to and from YAML as a
// hex string, the way Config's key fields are plain strings pointing at key
// material elsewhere — here the bytes are small enough to live inline.
type hexBytes32 [32]byte

func (h hexBytes32) MarshalYAML() (interface{}, error) {
	return hex.EncodeToString(h[:]), nil
}

func (h *hexBytes32) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("provision: decode hex: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("provision: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

type hexBytes64 [64]byte

func (h hexBytes64) MarshalYAML() (interface{}, error) {
	return hex.EncodeToString(h[:]), nil
}

func (h *hexBytes64) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("provision: decode hex: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("provision: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

type hexBytes1024 [wire.EntropyPoolSize]byte

func (h hexBytes1024) MarshalYAML() (interface{}, error) {
	return hex.EncodeToString(h[:]), nil
}

func (h *hexBytes1024) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("provision: decode hex: %w", err)
	}
	if len(b) != len(h) {
		return fmt.Errorf("provision: want %d bytes, got %d", len(h), len(b))
	}
	copy(h[:], b)
	return nil
}

// KeysBundle holds the Car's and the Host's P256 keypairs.
type KeysBundle struct {
	CarPrivKey  hexBytes32 `yaml:"car_privkey"`
	CarPubKey   hexBytes64 `yaml:"car_pubkey"`
	HostPrivKey hexBytes32 `yaml:"host_privkey"`
	HostPubKey  hexBytes64 `yaml:"host_pubkey"`
}

// EntropyBundle holds the per-device factory-injected S_ENTROPY pools, one
// per physical board, since sharing a pool between two devices would defeat
// the scheme's freshness guarantees.
type EntropyBundle struct {
	Car    hexBytes1024 `yaml:"car"`
	OGPFOB hexBytes1024 `yaml:"og_pfob"`
}

// Bundle is the complete set of secrets a factory run needs to provision one
// Car and its first paired fob (an OG-PFOB), and later to sign feature
// packages for that Car.
type Bundle struct {
	CarID   string        `yaml:"car_id"`
	Keys    KeysBundle    `yaml:"keys"`
	PIN     uint32        `yaml:"pin"`
	Entropy EntropyBundle `yaml:"entropy"`
}

// GenerateBundle creates a fresh Bundle: new Car and Host keypairs, a random
// PIN, and random per-device entropy pools. r is the entropy source;
// production callers pass crypto.Rand.
func GenerateBundle(r io.Reader, carID string) (*Bundle, error) {
	carPriv, carPub, err := crypto.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("provision: generate car key: %w", err)
	}
	hostPriv, hostPub, err := crypto.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("provision: generate host key: %w", err)
	}

	var pinBuf [4]byte
	if _, err := io.ReadFull(r, pinBuf[:]); err != nil {
		return nil, fmt.Errorf("provision: generate pin: %w", err)
	}
	// PIN is a decimal code entered on a keypad, not raw key material:
	// fold the random bytes down to a 6-digit range.
	pin := (uint32(pinBuf[0])<<24 | uint32(pinBuf[1])<<16 | uint32(pinBuf[2])<<8 | uint32(pinBuf[3])) % 1_000_000

	b := &Bundle{
		CarID: carID,
		PIN:   pin,
	}
	b.Keys.CarPrivKey = hexBytes32(carPriv)
	b.Keys.CarPubKey = hexBytes64(carPub)
	b.Keys.HostPrivKey = hexBytes32(hostPriv)
	b.Keys.HostPubKey = hexBytes64(hostPub)

	if _, err := io.ReadFull(r, b.Entropy.Car[:]); err != nil {
		return nil, fmt.Errorf("provision: generate car entropy: %w", err)
	}
	if _, err := io.ReadFull(r, b.Entropy.OGPFOB[:]); err != nil {
		return nil, fmt.Errorf("provision: generate fob entropy: %w", err)
	}
	return b, nil
}

// Load reads and strictly parses a Bundle from path: unknown fields are
// rejected the same way minter's config loader rejects them, since a typo'd
// field here means a device silently gets zero key material instead of a
// load error.
func Load(path string) (*Bundle, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provision: read bundle: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	var b Bundle
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("provision: parse bundle: %w", err)
	}
	return &b, nil
}

// Save writes b to path as YAML, 0600 since the file holds private key
// material.
func Save(path string, b *Bundle) error {
	out, err := yaml.Marshal(b)
	if err != nil {
		return fmt.Errorf("provision: marshal bundle: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}

// Zero overwrites every secret field of b in place.
func (b *Bundle) Zero() {
	clear(b.Keys.CarPrivKey[:])
	clear(b.Keys.HostPrivKey[:])
	clear(b.Entropy.Car[:])
	clear(b.Entropy.OGPFOB[:])
	b.PIN = 0
}

// DeviceSecrets is the small per-device constant a real build would embed
// as a secrets.h-equivalent at compile time: just the factory entropy pool.
// It is kept in its own file, separate from the EEPROM image, because
// S_ENTROPY is injected at build time rather than read from EEPROM/flash.
type DeviceSecrets struct {
	SEntropy hexBytes1024 `yaml:"s_entropy"`
}

// CarSecrets returns the Car's DeviceSecrets from this Bundle.
func (b *Bundle) CarSecrets() DeviceSecrets {
	return DeviceSecrets{SEntropy: b.Entropy.Car}
}

// OGPFOBSecrets returns the first paired fob's DeviceSecrets from this Bundle.
func (b *Bundle) OGPFOBSecrets() DeviceSecrets {
	return DeviceSecrets{SEntropy: b.Entropy.OGPFOB}
}

// GenerateDeviceSecrets creates a fresh DeviceSecrets for a blank OG-UFOB:
// unlike the Car and its first paired fob, a replica fob's entropy pool is
// manufactured independently of any particular car.
func GenerateDeviceSecrets(r io.Reader) (DeviceSecrets, error) {
	var s DeviceSecrets
	if _, err := io.ReadFull(r, s.SEntropy[:]); err != nil {
		return s, fmt.Errorf("provision: generate device entropy: %w", err)
	}
	return s, nil
}

// LoadDeviceSecrets reads and strictly parses DeviceSecrets from path.
func LoadDeviceSecrets(path string) (DeviceSecrets, error) {
	var s DeviceSecrets
	content, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("provision: read device secrets: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return s, fmt.Errorf("provision: parse device secrets: %w", err)
	}
	return s, nil
}

// SaveDeviceSecrets writes s to path as YAML, 0600.
func SaveDeviceSecrets(path string, s DeviceSecrets) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("provision: marshal device secrets: %w", err)
	}
	return os.WriteFile(path, out, 0o600)
}

// Zero overwrites s's entropy pool in place.
func (s *DeviceSecrets) Zero() {
	clear(s.SEntropy[:])
}
