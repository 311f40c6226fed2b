// Package fob implements the Key Fob controller: the host command
// dispatcher, the SW1 unlock trigger, and response generation.
package fob

import (
	"carfob.dev/boardlink"
	"carfob.dev/crypto"
	"carfob.dev/entropy"
	"carfob.dev/hostlink"
	"carfob.dev/pair"
	"carfob.dev/role"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// Device is a Fob's runtime state.
type Device struct {
	Link  *boardlink.Link // inter-board link to the Car (or a peer fob)
	Host  *hostlink.Link
	Flash store.Flash

	// FlashSectorAddr is where the fob's persistent FobRecord lives.
	FlashSectorAddr uint32

	Button  Button
	Entropy *entropy.Manager

	// SEntropy and Tick feed a lazy entropy.Manager.Bootstrap call the
	// first time GenResponse needs randomness.
	SEntropy [wire.EntropyPoolSize]byte
	Tick     entropy.Tick
}

// Bootstrap copies an OG-PFOB's EEPROM-resident FobRecord into flash on
// first boot, if the flash sector still looks erased. A Derived Paired Fob
// never runs this path: its flash record was written directly by
// pair.Replica. An OG-UFOB that hasn't yet paired also skips it: its flash
// sector starts erased and stays that way until pairing.
func (d *Device) Bootstrap(eeprom store.EEPROM) error {
	if role.Current != role.OGPFOB {
		return nil
	}
	buf := make([]byte, wire.FobRecordSize)
	if err := d.Flash.Read(d.FlashSectorAddr, buf); err != nil {
		return err
	}
	if !store.IsErased(buf) {
		return nil // already bootstrapped on a prior boot
	}
	if err := eeprom.Read(0, buf); err != nil {
		return err
	}
	return d.Flash.Replace(d.FlashSectorAddr, buf)
}

// getSecret reads the current FobRecord from flash. Defined once here
// rather than via a role-switched trait: both OG-PFOB (post-Bootstrap) and
// a Derived Paired Fob keep the identical record shape in the identical
// place, so there is nothing left for compile-time role to select at this
// layer.
func (d *Device) getSecret() (wire.FobRecord, error) {
	var rec wire.FobRecord
	buf := make([]byte, wire.FobRecordSize)
	if err := d.Flash.Read(d.FlashSectorAddr, buf); err != nil {
		return rec, err
	}
	err := rec.UnmarshalBinary(buf)
	return rec, err
}

func (d *Device) isPaired() bool {
	rec, err := d.getSecret()
	return err == nil && rec.IsPaired()
}

// TryHostCommand polls the host link once. It returns true if a command was
// read and handled (regardless of the command's own success/failure), false
// if the host line was quiet.
func (d *Device) TryHostCommand(pollByte func() (byte, bool)) bool {
	cmd, ok := d.Host.Poll(pollByte)
	if !ok {
		return false
	}
	switch cmd {
	case hostlink.EnableCmd:
		d.enableFeature()
	case hostlink.PPairCmd:
		d.primaryPair()
	case hostlink.UPairCmd:
		d.replicaPair()
	}
	return true
}

// enableFeature installs a manufacturer-signed Package into feature slot
// feature_num = n-1, paired fobs only. No authenticity check happens here:
// the fob is a dumb courier, and the Car verifies the package's signature
// at unlock time.
func (d *Device) enableFeature() bool {
	if !d.isPaired() {
		return false
	}
	idx, pkg, err := d.Host.ReadFeatureInstall()
	if err != nil {
		return false
	}
	if idx < 0 || idx >= wire.NumFeatures {
		return true // n out of range: one-shot command still consumed its payload
	}
	rec, err := d.getSecret()
	if err != nil {
		return false
	}
	rec.Feature[idx] = wire.Package(pkg)
	buf, err := rec.MarshalBinary()
	if err != nil {
		return false
	}
	return d.Flash.Replace(d.FlashSectorAddr, buf) == nil
}

// primaryPair runs the PIN-gated Primary side of pairing: paired fobs only.
func (d *Device) primaryPair() bool {
	if !d.isPaired() {
		return false
	}
	hostPIN, err := d.Host.ReadPIN()
	if err != nil {
		return false
	}
	rec, err := d.getSecret()
	if err != nil {
		return false
	}
	secret := pair.Secret{CarPrivKey: rec.CarPrivKey, PIN: rec.PIN}
	return pair.Primary(d.Link, hostPIN, secret)
}

// replicaPair runs the Replica side of pairing: requires an unpaired fob
// that was built originally unpaired.
func (d *Device) replicaPair() bool {
	if d.isPaired() {
		return false
	}
	return pair.Replica(d.Link, d.Flash, d.FlashSectorAddr)
}

// TryButton runs one main-loop iteration of the SW1 unlock trigger. It only
// executes the unlock exchange when SW1 is debounced-pressed and the fob is
// paired; an unpaired fob's SW1 press is a no-op.
func (d *Device) TryButton() bool {
	if !TryButtonPress(d.Button) || !d.isPaired() {
		return false
	}
	if err := d.Link.SendUnlockRequest(); err != nil {
		return false
	}
	c, err := d.Link.RecvChallenge()
	if err != nil {
		return false
	}
	defer c.Zero()
	r, err := d.GenResponse(c)
	if err != nil {
		return false
	}
	return d.Link.SendResponse(r) == nil
}

// GenResponse ECDSA-signs SHA256(c) with the fob's car_privkey and copies in
// its installed feature packages verbatim. It lazily initializes the DRBG
// on first use and zeroizes the private-key buffer on every exit path.
func (d *Device) GenResponse(c wire.Challenge) (wire.Response, error) {
	var r wire.Response
	rec, err := d.getSecret()
	if err != nil {
		return r, err
	}
	defer rec.Zero()

	if !d.Entropy.Ready() {
		if err := d.Entropy.Bootstrap(d.SEntropy, rec.CarPrivKey[:], d.Tick); err != nil {
			return r, err
		}
	}

	digest := crypto.SHA256(c[:])
	sig, err := crypto.Sign(d.Entropy.Reader(), rec.CarPrivKey, digest)
	if err != nil {
		return r, err
	}
	r.UnlockSig = sig
	r.Feature = rec.Feature
	return r, nil
}
