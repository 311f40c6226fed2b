// Package entropy manages the 1 KiB flash-resident entropy pool that seeds
// package drbg on a clock-less, RNG-less device.
package entropy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"carfob.dev/drbg"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// ErrBadPool is returned when the pool matches the "never provisioned"
// pattern and no DRBG may be instantiated from it.
var ErrBadPool = errors.New("entropy: pool is bad (unprovisioned)")

// Tick is a monotonically-changing per-boot sample (the SysTick counter on
// real hardware) used as DRBG personalization. This
// MUST vary across boots; a fixed string like the draft's "Spartans" would
// let two resets instantiate the DRBG with identical seed material.
type Tick uint32

// Bytes renders t as little-endian personalization bytes.
func (t Tick) Bytes() []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(t))
	return b[:]
}

// IsBad reports whether pool matches the erased-flash-or-zero-filled pattern
// the scheme defines as "never provisioned": its first five 32-bit
// words satisfy pool[0:4]==pool[4:8] && pool[8:12]==pool[12:16] &&
// pool[0:4]==pool[16:20].
func IsBad(pool []byte) bool {
	if len(pool) < 20 {
		return true
	}
	return bytesEqual(pool[0:4], pool[4:8]) &&
		bytesEqual(pool[8:12], pool[12:16]) &&
		bytesEqual(pool[0:4], pool[16:20])
}

func bytesEqual(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Manager owns a device's entropy sector and the DRBG it seeds. It is not
// safe for concurrent use: the single cooperative loop is its only caller.
type Manager struct {
	flash      store.Flash
	sectorAddr uint32
	drbg       *drbg.State
	ready      bool
}

// New returns a Manager bound to the given flash sector. No I/O happens
// until Bootstrap is called.
func New(flash store.Flash, sectorAddr uint32) *Manager {
	return &Manager{flash: flash, sectorAddr: sectorAddr}
}

// Bootstrap runs the DRBG bootstrap sequence:
//
//  1. Read the pool; if bad, write the device's provisioned seed
//     (the factory-injected S_ENTROPY constant) and re-read.
//  2. If still bad, fail — the device was never provisioned.
//  3. Instantiate an HMAC-DRBG from pool, nonce, and tick.Bytes().
//  4. Generate a fresh 1024-byte pool into next_pool.
//  5. Atomically replace the flash sector with next_pool: this commits
//     before first use, so a mid-attempt reset can never reuse seed material.
//  6. Mark the manager ready.
func (m *Manager) Bootstrap(sEntropy [wire.EntropyPoolSize]byte, nonce []byte, tick Tick) error {
	pool := make([]byte, wire.EntropyPoolSize)
	if err := m.flash.Read(m.sectorAddr, pool); err != nil {
		return fmt.Errorf("entropy: read pool: %w", err)
	}
	if IsBad(pool) {
		if err := m.flash.Replace(m.sectorAddr, sEntropy[:]); err != nil {
			return fmt.Errorf("entropy: provision pool: %w", err)
		}
		if err := m.flash.Read(m.sectorAddr, pool); err != nil {
			return fmt.Errorf("entropy: read pool: %w", err)
		}
		if IsBad(pool) {
			return ErrBadPool
		}
	}

	d := drbg.New(pool, nonce, tick.Bytes())
	nextPool := make([]byte, wire.EntropyPoolSize)
	if err := d.Generate(nextPool, nil); err != nil {
		return fmt.Errorf("entropy: generate next pool: %w", err)
	}
	if err := m.flash.Replace(m.sectorAddr, nextPool); err != nil {
		return fmt.Errorf("entropy: commit next pool: %w", err)
	}

	m.drbg = d
	m.ready = true
	return nil
}

// Ready reports whether Bootstrap has completed successfully.
func (m *Manager) Ready() bool {
	return m.ready
}

// DRBG returns the bootstrapped generator. Callers must check Ready first;
// DRBG returns nil otherwise.
func (m *Manager) DRBG() *drbg.State {
	if !m.ready {
		return nil
	}
	return m.drbg
}

// Reader adapts the bootstrapped DRBG to io.Reader, so it can serve as the
// entropy source for crypto.GenerateKey/crypto.Sign or any other io.Reader
// consumer on a clock-less, RNG-less device. Callers must check Ready first;
// reads past that point return an error rather than panicking on a nil DRBG.
func (m *Manager) Reader() io.Reader {
	return drbgReader{m}
}

type drbgReader struct {
	m *Manager
}

func (r drbgReader) Read(p []byte) (int, error) {
	if !r.m.ready {
		return 0, errors.New("entropy: read before Bootstrap")
	}
	if err := r.m.drbg.Generate(p, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}
