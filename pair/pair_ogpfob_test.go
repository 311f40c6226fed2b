//go:build ogpfob

package pair

import (
	"testing"

	"carfob.dev/boardlink"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// Built with -tags ogpfob, so role.Current resolves to role.OGPFOB and
// Replica's OG-UFOB-only guard can be exercised directly.
func TestReplicaRefusesWhenNotOriginallyUnpaired(t *testing.T) {
	_, fobSim := boardlink.NewSimulator()
	link := boardlink.New(fobSim)
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	flash := backend.FlashRegion("fob-state", wire.FobRecordSize)

	if Replica(link, flash, 0) {
		t.Fatal("an OG-PFOB-built fob accepted a replica pairing")
	}
}
