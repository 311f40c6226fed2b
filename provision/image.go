package provision

import (
	"fmt"
	"io"

	"carfob.dev/crypto"
	"carfob.dev/wire"
)

// CarEEPROMImage returns the factory EEPROM image for a Car: the CarData
// record, the well-known unlock message at its fixed offset, and empty
// feature slots. unlockMessage is padded/truncated to UnlockEEPROMSize.
func (b *Bundle) CarEEPROMImage(unlockMessage []byte) ([]byte, error) {
	img := make([]byte, wire.CarEEPROMSize)
	for i := range img {
		img[i] = 0xFF
	}

	data := wire.CarData{
		CarPubKey:  wire.P256Pub(b.Keys.CarPubKey),
		HostPubKey: wire.P256Pub(b.Keys.HostPubKey),
	}
	enc, err := data.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("provision: encode car data: %w", err)
	}
	copy(img, enc)

	msg := make([]byte, wire.UnlockEEPROMSize)
	for i := range msg {
		msg[i] = 0xFF
	}
	copy(msg, unlockMessage)
	copy(img[wire.UnlockEEPROMLoc:], msg)

	for i := 0; i < wire.NumFeatures; i++ {
		off := wire.FeatureEEPROMOffset(i)
		empty := wire.EmptyPackage()
		copy(img[off:], empty[:])
	}
	return img, nil
}

// OGPFOBEEPROMImage returns the factory EEPROM image for the Car's first
// paired fob (an OG-PFOB): a FobRecord marked paired, holding the Car's
// private key and this Bundle's PIN, with every feature slot empty. A
// provisioning run never enables features at manufacture time; features are
// granted afterward via SignFeature and hostlink's enable command.
func (b *Bundle) OGPFOBEEPROMImage() ([]byte, error) {
	rec := wire.FobRecord{
		Paired:     wire.PairedSentinel,
		PIN:        b.PIN,
		CarPrivKey: wire.P256Priv(b.Keys.CarPrivKey),
	}
	for i := range rec.Feature {
		rec.Feature[i] = wire.EmptyPackage()
	}
	return rec.MarshalBinary()
}

// SignFeature returns the Package authorizing feature slot slotIndex on this
// Bundle's Car, signed under the Host's private key. slotIndex is the
// 0-based slot a fob stores the package in (the same index enableFeature
// writes to); the digest itself is computed over slotIndex+1, matching
// car.Device.verifyResponse's feature-number convention.
func (b *Bundle) SignFeature(r io.Reader, slotIndex int) (wire.Package, error) {
	var pkg wire.Package
	if slotIndex < 0 || slotIndex >= wire.NumFeatures {
		return pkg, fmt.Errorf("provision: feature slot %d out of range", slotIndex)
	}
	digest := crypto.FeatureDigest(wire.P256Pub(b.Keys.CarPubKey), uint8(slotIndex+1))
	sig, err := crypto.Sign(r, wire.P256Priv(b.Keys.HostPrivKey), digest)
	if err != nil {
		return pkg, fmt.Errorf("provision: sign feature slot %d: %w", slotIndex, err)
	}
	return sig, nil
}
