package entropy

import (
	"bytes"
	"testing"

	"carfob.dev/store"
	"carfob.dev/wire"
)

// sEntropyFixture returns a provisioned-looking S_ENTROPY constant. The bytes
// vary with position: a uniform fill would itself match IsBad's pattern.
func sEntropyFixture(fill byte) [wire.EntropyPoolSize]byte {
	var s [wire.EntropyPoolSize]byte
	for i := range s {
		s[i] = fill + byte(i)
	}
	return s
}

func TestIsBadDetectsErasedPool(t *testing.T) {
	pool := bytes.Repeat([]byte{0xFF}, wire.EntropyPoolSize)
	if !IsBad(pool) {
		t.Fatal("erased pool not detected as bad")
	}
}

func TestIsBadDetectsZeroFilledPool(t *testing.T) {
	pool := make([]byte, wire.EntropyPoolSize)
	if !IsBad(pool) {
		t.Fatal("zero-filled pool not detected as bad")
	}
}

func TestIsBadAcceptsProvisionedPool(t *testing.T) {
	pool := make([]byte, wire.EntropyPoolSize)
	for i := range pool {
		pool[i] = byte(i * 7)
	}
	if IsBad(pool) {
		t.Fatal("plausible provisioned pool flagged as bad")
	}
}

func TestBootstrapProvisionsBadPool(t *testing.T) {
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	flash := backend.FlashRegion("entropy", wire.EntropyPoolSize)
	m := New(flash, 0)

	sEntropy := sEntropyFixture(0x42)
	if err := m.Bootstrap(sEntropy, []byte("nonce"), Tick(1)); err != nil {
		t.Fatal(err)
	}
	if !m.Ready() {
		t.Fatal("manager not ready after successful bootstrap")
	}
	if m.DRBG() == nil {
		t.Fatal("DRBG nil after successful bootstrap")
	}
}

func TestBootstrapCommitsBeforeFirstUse(t *testing.T) {
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	flash := backend.FlashRegion("entropy", wire.EntropyPoolSize)
	sEntropy := sEntropyFixture(0x7A)

	m1 := New(flash, 0)
	if err := m1.Bootstrap(sEntropy, []byte("nonce"), Tick(1)); err != nil {
		t.Fatal(err)
	}
	committed := make([]byte, wire.EntropyPoolSize)
	if err := flash.Read(0, committed); err != nil {
		t.Fatal(err)
	}
	if IsBad(committed) {
		t.Fatal("committed pool still looks bad after bootstrap")
	}

	// A second bootstrap (simulating a reboot) must not reuse the same
	// seed material: its committed pool must differ from the first.
	m2 := New(flash, 0)
	if err := m2.Bootstrap(sEntropy, []byte("nonce"), Tick(2)); err != nil {
		t.Fatal(err)
	}
	rotated := make([]byte, wire.EntropyPoolSize)
	if err := flash.Read(0, rotated); err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(committed, rotated) {
		t.Fatal("pool did not rotate across bootstraps")
	}
}

func TestBootstrapFailsWhenUnprovisioned(t *testing.T) {
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	flash := backend.FlashRegion("entropy", wire.EntropyPoolSize)
	m := New(flash, 0)

	// A bad-looking S_ENTROPY constant itself (factory bug) should still
	// surface ErrBadPool rather than silently proceeding.
	var sEntropy [wire.EntropyPoolSize]byte // all-zero: also "bad"
	if err := m.Bootstrap(sEntropy, []byte("nonce"), Tick(1)); err == nil {
		t.Fatal("expected bootstrap to fail on bad S_ENTROPY constant")
	}
	if m.Ready() {
		t.Fatal("manager reported ready after failed bootstrap")
	}
}

func TestDRBGNilBeforeReady(t *testing.T) {
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	flash := backend.FlashRegion("entropy", wire.EntropyPoolSize)
	m := New(flash, 0)
	if m.DRBG() != nil {
		t.Fatal("DRBG non-nil before bootstrap")
	}
}
