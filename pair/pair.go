// Package pair implements the two halves of the fob-to-fob pairing
// protocol: the Primary side (an already-paired fob, PIN-gated) and the
// Replica side (an unpaired, originally-built OG-UFOB fob).
package pair

import (
	"time"

	"carfob.dev/boardlink"
	"carfob.dev/role"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// WrongPINDelay is the anti-brute-force penalty the Primary sleeps after a
// mismatched PIN, applied regardless of where the PIN came from.
const WrongPINDelay = 5 * time.Second

// Secret is the Primary's view of its own stored credentials: the car key
// and PIN it will hand to a Replica.
type Secret struct {
	CarPrivKey wire.P256Priv
	PIN        uint32
}

// sleep is overridable so tests don't actually wait out WrongPINDelay.
var sleep = time.Sleep

// Primary runs the host-driven P_PAIR_CMD handler. hostPIN is the 4-byte PIN
// the host supplied; secret is loaded from the fob's own persistent state.
// On a PIN match, Primary emits PAIR_START and the PairPacket over link and
// reports true; on mismatch it sleeps WrongPINDelay and reports false
// without ever consulting the Replica.
func Primary(link *boardlink.Link, hostPIN uint32, secret Secret) bool {
	if hostPIN != secret.PIN {
		sleep(WrongPINDelay)
		return false
	}
	packet := wire.PairPacket{CarPrivKey: secret.CarPrivKey, PIN: secret.PIN}
	defer packet.Zero()
	payload, err := packet.MarshalBinary()
	if err != nil {
		return false
	}
	if _, err := link.WritePairPacket(payload); err != nil {
		return false
	}
	return true
}

// Replica runs the board-link-driven U_PAIR_CMD handler. It blocks until a
// PAIR_START frame arrives, then overwrites the fob's flash record in place:
// PIN and car_privkey from the packet, Paired set to the paired sentinel,
// and the existing feature slots left untouched.
//
// Replica itself refuses (reports false without reading the link) unless
// role.Current.OriginallyUnpaired(). It does not check whether the fob is
// already paired; the caller enforces that guard before invoking Replica.
func Replica(link *boardlink.Link, flash store.Flash, sectorAddr uint32) bool {
	if !role.Current.OriginallyUnpaired() {
		return false
	}
	payload, err := link.RecvPairPacket()
	if err != nil {
		return false
	}
	var packet wire.PairPacket
	if err := packet.UnmarshalBinary(payload); err != nil {
		return false
	}
	defer packet.Zero()

	var rec wire.FobRecord
	buf := make([]byte, wire.FobRecordSize)
	if err := flash.Read(sectorAddr, buf); err != nil {
		return false
	}
	if err := rec.UnmarshalBinary(buf); err != nil {
		return false
	}

	rec.Paired = wire.PairedSentinel
	rec.PIN = packet.PIN
	rec.CarPrivKey = packet.CarPrivKey

	out, err := rec.MarshalBinary()
	if err != nil {
		return false
	}
	return flash.Replace(sectorAddr, out) == nil
}
