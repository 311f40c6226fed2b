package car

import (
	"bytes"
	"testing"
	"time"

	"carfob.dev/boardlink"
	"carfob.dev/crypto"
	"carfob.dev/hostlink"
	"carfob.dev/store"
	"carfob.dev/wire"
)

// fixedChallengeRand fills every challenge buffer with the same deterministic
// byte sequence, so scenario 1's "64 fixed bytes 00 01 02 ... 3F" challenge is
// reproducible without a real DRBG.
func fixedChallengeRand(buf []byte) error {
	for i := range buf {
		buf[i] = byte(i)
	}
	return nil
}

func newTestDevice(t *testing.T, carPub, hostPub wire.P256Pub) (*Device, *boardlink.Link, *bytes.Buffer) {
	t.Helper()
	carSim, fobSim := boardlink.NewSimulator()
	carLink := boardlink.New(carSim)
	fobLink := boardlink.New(fobSim)

	var hostBuf bytes.Buffer
	backend, err := store.NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	eeprom := backend.EEPROMRegion("car-eeprom", wire.UnlockEEPROMLoc+wire.UnlockEEPROMSize)

	unlockBlob := bytes.Repeat([]byte{0x5A}, wire.UnlockEEPROMSize)
	featureBlob := bytes.Repeat([]byte{0x11}, wire.FeatureSize)
	img := make([]byte, wire.UnlockEEPROMLoc+wire.UnlockEEPROMSize)
	copy(img[wire.UnlockEEPROMLoc:], unlockBlob)
	copy(img[wire.FeatureEEPROMOffset(1):], featureBlob)
	if err := backend.WriteEEPROMOnce("car-eeprom", img); err != nil {
		t.Fatal(err)
	}

	d := &Device{
		Link:     carLink,
		Host:     hostlink.New(&hostBuf),
		CarData:  wire.CarData{CarPubKey: carPub, HostPubKey: hostPub},
		EEPROM:   eeprom,
		NextRand: fixedChallengeRand,
	}
	return d, fobLink, &hostBuf
}

func TestTryUnlockHappyPath(t *testing.T) {
	carPriv, carPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	_, hostPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	d, fobLink, hostBuf := newTestDevice(t, carPub, hostPub)

	resultCh := make(chan bool, 1)
	go func() { resultCh <- d.TryUnlock(func() (byte, bool) { return boardlink.UnlockReq, true }) }()

	c, err := fobLink.RecvChallenge()
	if err != nil {
		t.Fatal(err)
	}
	digest := crypto.SHA256(c[:])
	sig, err := crypto.Sign(crypto.Rand, carPriv, digest)
	if err != nil {
		t.Fatal(err)
	}
	resp := wire.Response{UnlockSig: sig}
	resp.Feature[0] = wire.EmptyPackage()
	resp.Feature[1] = wire.EmptyPackage()
	resp.Feature[2] = wire.EmptyPackage()
	if err := fobLink.SendResponse(resp); err != nil {
		t.Fatal(err)
	}

	if !<-resultCh {
		t.Fatal("expected happy-path unlock to succeed")
	}
	if hostBuf.Len() != wire.UnlockEEPROMSize {
		t.Fatalf("expected host-UART output length %d, got %d", wire.UnlockEEPROMSize, hostBuf.Len())
	}
}

func TestTryUnlockOneActiveFeature(t *testing.T) {
	carPriv, carPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	hostPriv, hostPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	d, fobLink, hostBuf := newTestDevice(t, carPub, hostPub)

	resultCh := make(chan bool, 1)
	go func() { resultCh <- d.TryUnlock(func() (byte, bool) { return boardlink.UnlockReq, true }) }()

	c, err := fobLink.RecvChallenge()
	if err != nil {
		t.Fatal(err)
	}
	unlockSig, err := crypto.Sign(crypto.Rand, carPriv, crypto.SHA256(c[:]))
	if err != nil {
		t.Fatal(err)
	}
	featureSig, err := crypto.Sign(crypto.Rand, hostPriv, crypto.FeatureDigest(carPub, 2))
	if err != nil {
		t.Fatal(err)
	}
	resp := wire.Response{UnlockSig: unlockSig}
	resp.Feature[0] = wire.EmptyPackage()
	resp.Feature[1] = featureSig // slot index 1 -> feature_num 2
	resp.Feature[2] = wire.EmptyPackage()
	if err := fobLink.SendResponse(resp); err != nil {
		t.Fatal(err)
	}

	if !<-resultCh {
		t.Fatal("expected one-active-feature unlock to succeed")
	}
	if hostBuf.Len() != 2*wire.UnlockEEPROMSize {
		t.Fatalf("expected host-UART output length %d, got %d", 2*wire.UnlockEEPROMSize, hostBuf.Len())
	}
	if !bytes.Equal(hostBuf.Bytes()[wire.UnlockEEPROMSize:], bytes.Repeat([]byte{0x11}, wire.FeatureSize)) {
		t.Fatal("feature bytes did not match EEPROM content at the expected slot")
	}
}

func TestTryUnlockForgedResponseFails(t *testing.T) {
	_, carPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	_, hostPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	d, fobLink, hostBuf := newTestDevice(t, carPub, hostPub)

	resultCh := make(chan bool, 1)
	go func() { resultCh <- d.TryUnlock(func() (byte, bool) { return boardlink.UnlockReq, true }) }()

	if _, err := fobLink.RecvChallenge(); err != nil {
		t.Fatal(err)
	}
	var resp wire.Response // zeroed unlock_sig: forged
	resp.Feature[0] = wire.EmptyPackage()
	resp.Feature[1] = wire.EmptyPackage()
	resp.Feature[2] = wire.EmptyPackage()
	if err := fobLink.SendResponse(resp); err != nil {
		t.Fatal(err)
	}

	if <-resultCh {
		t.Fatal("expected forged response to fail verification")
	}
	if hostBuf.Len() != 0 {
		t.Fatalf("expected no host-UART output, got %d bytes", hostBuf.Len())
	}
}

func TestTryUnlockTimesOutWhenFobSilent(t *testing.T) {
	_, carPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	_, hostPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	d, _, hostBuf := newTestDevice(t, carPub, hostPub)
	d.Link = boardlink.New(mustSim(t))
	d.ResponseTimeout = time.Millisecond
	d.ResponseWindows = 2

	ok := d.TryUnlock(func() (byte, bool) { return boardlink.UnlockReq, true })
	if ok {
		t.Fatal("expected timeout to fail the unlock attempt")
	}
	if hostBuf.Len() != 0 {
		t.Fatal("expected no host-UART output on timeout")
	}
}

func mustSim(t *testing.T) *boardlink.Simulator {
	t.Helper()
	sim, _ := boardlink.NewSimulator()
	return sim
}

func TestFeatureDigestRejectsSwappedCarKey(t *testing.T) {
	_, carPubA, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	_, carPubB, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	hostPriv, hostPub, err := crypto.GenerateKey(crypto.Rand)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := crypto.Sign(crypto.Rand, hostPriv, crypto.FeatureDigest(carPubA, 1))
	if err != nil {
		t.Fatal(err)
	}
	if crypto.Verify(hostPub, crypto.FeatureDigest(carPubB, 1), sig) {
		t.Fatal("feature signed for car A verified for car B")
	}
}
