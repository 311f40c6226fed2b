// Package car implements the Car controller's unlock state machine:
// Idle -> Challenging -> AwaitingResponse -> Verifying -> Emitting -> Idle.
package car

import (
	"time"

	"carfob.dev/boardlink"
	"carfob.dev/crypto"
	"carfob.dev/hostlink"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// ResponseTimeout and ResponseWindows bound recv_response's total budget:
// 8 one-second windows.
const (
	ResponseTimeout = time.Second
	ResponseWindows = 8
)

// Device is a Car's runtime state: its board link to the fob, its host
// UART, its EEPROM-resident identity, and the DRBG-backed challenge source.
type Device struct {
	Link     *boardlink.Link
	Host     *hostlink.Link
	CarData  wire.CarData
	EEPROM   store.EEPROM
	NextRand func([]byte) error // fills a buffer with fresh pseudorandom bytes

	// ResponseTimeout and ResponseWindows override the default 8x1s budget
	// recv_response waits for a reply; zero means use the package defaults.
	// Tests shrink these to avoid a real 8-second wait on the timeout path.
	ResponseTimeout time.Duration
	ResponseWindows int
}

// TryUnlock runs one iteration of the Car's main loop. All six steps must
// succeed for a successful unlock; any false short-circuits straight back
// to idle. The chained boolean expression is load-bearing as a
// fault-injection hardening measure: a single glitched predicate yields an
// early false and skips every later emit_* call, because Go's && never
// evaluates its right operand once the left one is false. Do not refactor
// this into separate if-statements with an accumulated bool — that would
// let a glitch that corrupts the accumulator, rather than a branch, still
// reach emission.
func (d *Device) TryUnlock(pollByte func() (byte, bool)) bool {
	var c wire.Challenge
	defer c.Zero()
	var r wire.Response
	return d.Link.PollUnlockRequest(pollByte) &&
		d.genChallenge(&c) &&
		d.Link.SendChallenge(c) == nil &&
		d.recvResponse(&r) &&
		d.verifyResponse(c, r) &&
		d.emitUnlockMessage() == nil &&
		d.emitFeatureMessages(r) == nil
}

func (d *Device) genChallenge(c *wire.Challenge) bool {
	return d.NextRand(c[:]) == nil
}

func (d *Device) recvResponse(r *wire.Response) bool {
	timeout, windows := d.ResponseTimeout, d.ResponseWindows
	if timeout == 0 {
		timeout = ResponseTimeout
	}
	if windows == 0 {
		windows = ResponseWindows
	}
	resp, err := d.Link.RecvResponse(timeout, windows)
	if err != nil {
		return false
	}
	*r = resp
	return true
}

// verifyResponse implements the two-part check: the unlock signature
// over SHA256(challenge), and every non-sentinel feature signature over
// SHA256(car_pubkey || feature_index).
func (d *Device) verifyResponse(c wire.Challenge, r wire.Response) bool {
	digest := crypto.SHA256(c[:])
	if !crypto.Verify(d.CarData.CarPubKey, digest, r.UnlockSig) {
		return false
	}
	for i, pkg := range r.Feature {
		if pkg.IsEmpty() {
			continue
		}
		fd := crypto.FeatureDigest(d.CarData.CarPubKey, uint8(i+1))
		if !crypto.Verify(d.CarData.HostPubKey, fd, pkg) {
			return false
		}
	}
	return true
}

// emitUnlockMessage reads the 64-byte unlock blob from EEPROM and writes it
// to the host UART, zeroizing the local buffer on every exit path.
func (d *Device) emitUnlockMessage() error {
	var blob [wire.UnlockEEPROMSize]byte
	defer clear(blob[:])
	if err := d.EEPROM.Read(wire.UnlockEEPROMLoc, blob[:]); err != nil {
		return err
	}
	return d.Host.WriteUnlockBlob(blob[:])
}

// emitFeatureMessages writes each non-sentinel feature's EEPROM slot to the
// host UART, in slot order 0->2 regardless of package contents. The unlock
// blob is always emitted first by TryUnlock's ordering.
func (d *Device) emitFeatureMessages(r wire.Response) error {
	for i, pkg := range r.Feature {
		if pkg.IsEmpty() {
			continue
		}
		var blob [wire.FeatureSize]byte
		if err := d.EEPROM.Read(wire.FeatureEEPROMOffset(i), blob[:]); err != nil {
			clear(blob[:])
			return err
		}
		err := d.Host.WriteFeatureBlob(blob[:])
		clear(blob[:])
		if err != nil {
			return err
		}
	}
	return nil
}
