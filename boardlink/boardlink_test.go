package boardlink

import (
	"bytes"
	"testing"
	"time"

	"carfob.dev/wire"
)

func TestChallengeRoundTrip(t *testing.T) {
	carSim, fobSim := NewSimulator()
	carLink := New(carSim)
	fobLink := New(fobSim)

	var want wire.Challenge
	for i := range want {
		want[i] = byte(i)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- carLink.SendChallenge(want) }()

	got, err := fobLink.RecvChallenge()
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Fatal("received challenge did not match sent challenge")
	}
}

func TestResponseRoundTrip(t *testing.T) {
	carSim, fobSim := NewSimulator()
	carLink := New(carSim)
	fobLink := New(fobSim)

	var want wire.Response
	for i := range want.UnlockSig {
		want.UnlockSig[i] = byte(i)
	}
	want.Feature[0] = wire.EmptyPackage()
	want.Feature[1] = wire.EmptyPackage()
	want.Feature[2] = wire.EmptyPackage()

	errCh := make(chan error, 1)
	go func() { errCh <- fobLink.SendResponse(want) }()

	got, err := carLink.RecvResponse(time.Second, 8)
	if err != nil {
		t.Fatal(err)
	}
	if err := <-errCh; err != nil {
		t.Fatal(err)
	}
	if got.UnlockSig != want.UnlockSig {
		t.Fatal("unlock signature mismatch after round trip")
	}
}

func TestRecvResponseSkipsNoise(t *testing.T) {
	carSim, fobSim := NewSimulator()
	carLink := New(carSim)

	go func() {
		// Garbage bytes, including a CHAL_START that must not be
		// mistaken for RESP_START, precede the real frame.
		fobSim.Write([]byte{0x00, 0xAA, ChalStart, 0x01})
		var r wire.Response
		payload, _ := r.MarshalBinary()
		frame := append([]byte{RespStart}, payload...)
		fobSim.Write(frame)
	}()

	_, err := carLink.RecvResponse(time.Second, 8)
	if err != nil {
		t.Fatal(err)
	}
}

func TestRecvResponseTimesOut(t *testing.T) {
	carSim, _ := NewSimulator()
	carLink := New(carSim)

	_, err := carLink.RecvResponse(5*time.Millisecond, 2)
	if err != ErrTimeout {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestPollUnlockRequestNonBlocking(t *testing.T) {
	carSim, fobSim := NewSimulator()
	carLink := New(carSim)

	if carLink.PollUnlockRequest(carSim.TryReadByte) {
		t.Fatal("poll reported a request before any byte was sent")
	}

	fobLink := New(fobSim)
	if err := fobLink.SendUnlockRequest(); err != nil {
		t.Fatal(err)
	}
	// Give the buffered channel write a moment to land.
	time.Sleep(time.Millisecond)
	if !carLink.PollUnlockRequest(carSim.TryReadByte) {
		t.Fatal("poll did not see the buffered unlock request")
	}
}

func TestPairPacketFrame(t *testing.T) {
	var p wire.PairPacket
	p.PIN = 0xA1B2C3D4
	payload, err := p.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	frame := append([]byte{PairStart}, payload...)
	if frame[0] != PairStart {
		t.Fatal("pair frame missing magic byte")
	}
	if !bytes.Equal(frame[1:], payload) {
		t.Fatal("pair frame payload mismatch")
	}
}
