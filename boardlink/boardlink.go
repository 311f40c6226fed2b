// Package boardlink implements the framed, half-duplex byte transport
// between Car and Fob over a point-to-point serial line.
// Four message kinds are distinguished by a single leading magic byte; all
// payloads are fixed-length.
package boardlink

import (
	"errors"
	"io"
	"runtime"
	"time"

	"github.com/tarm/serial"

	"carfob.dev/wire"
)

// Magic bytes identifying each framed message kind.
const (
	UnlockReq  byte = 0x56 // Fob -> Car, no payload.
	ChalStart  byte = 0x57 // Car -> Fob, 64-byte Challenge.
	RespStart  byte = 0x58 // Fob -> Car, 256-byte Response.
	PairStart  byte = 0x21 // PFob -> UFob, PairPacket payload.
)

// ErrTimeout is returned by RecvResponse when no matching frame arrives
// within the time budget.
var ErrTimeout = errors.New("boardlink: timeout waiting for response")

// byteTryer is satisfied by a transport that can attempt a non-blocking
// single-byte read, used to drive PollUnlockRequest and hostlink.Poll from
// real hardware the same way Simulator.TryReadByte drives them in tests.
type byteTryer interface {
	TryReadByte() (byte, bool)
}

// Link is the framed transport both Car and Fob drive. It wraps a raw
// byte stream (a real serial port, or a Simulator in tests) with the
// magic-byte framing and fixed-payload-size discipline the protocol
// requires.
type Link struct {
	rw io.ReadWriter
}

// New wraps an already-open byte stream as a Link.
func New(rw io.ReadWriter) *Link {
	return &Link{rw: rw}
}

// pollReadTimeout is the short per-read deadline a real serial port is
// opened with, so TryReadByte never blocks the caller's main loop.
const pollReadTimeout = 5 * time.Millisecond

// pollablePort adapts *serial.Port, which has no non-blocking read mode of
// its own, into a byteTryer: the port is opened with a short ReadTimeout, so
// a read that finds nothing returns (0, false) instead of blocking.
type pollablePort struct {
	port *serial.Port
}

func (p *pollablePort) Read(b []byte) (int, error)  { return p.port.Read(b) }
func (p *pollablePort) Write(b []byte) (int, error) { return p.port.Write(b) }

func (p *pollablePort) TryReadByte() (byte, bool) {
	var b [1]byte
	n, err := p.port.Read(b[:])
	if err != nil || n == 0 {
		return 0, false
	}
	return b[0], true
}

// TryReadByte performs one non-blocking read, for use as the pollByte
// argument to PollUnlockRequest and hostlink.Link.Poll. It reports false if
// the underlying transport cannot do a non-blocking read (only Simulator
// and a port opened via Open support it).
func (l *Link) TryReadByte() (byte, bool) {
	t, ok := l.rw.(byteTryer)
	if !ok {
		return 0, false
	}
	return t.TryReadByte()
}

// Open opens a serial port for the inter-board link: 115200 baud, 8-N-1, the
// hardware parameters the inter-board link uses. If dev is empty, it tries the
// platform's conventional USB-serial device paths in order, the way
// driver/mjolnir's Open tries COM3 on Windows and /dev/ttyUSB0/1 on Linux.
func Open(dev string) (*Link, error) {
	const baudRate = 115200

	var devices []string
	if dev != "" {
		devices = append(devices, dev)
	} else {
		switch runtime.GOOS {
		case "windows":
			devices = append(devices, "COM3")
		case "linux":
			devices = append(devices, "/dev/ttyUSB0", "/dev/ttyUSB1")
		}
	}
	if len(devices) == 0 {
		return nil, errors.New("boardlink: no device specified")
	}

	var firstErr error
	for _, d := range devices {
		c := &serial.Config{Name: d, Baud: baudRate, ReadTimeout: pollReadTimeout}
		port, err := serial.OpenPort(c)
		if err == nil {
			return New(&pollablePort{port: port}), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	return err
}

// PollUnlockRequest is non-blocking: it reports true iff a byte is
// immediately available and equals UnlockReq. pollByte must itself be
// non-blocking (see Simulator.TryReadByte); a real serial port opened via
// Open has a short read timeout, so Link.TryReadByte serves here too.
func (l *Link) PollUnlockRequest(pollByte func() (byte, bool)) bool {
	b, ok := pollByte()
	return ok && b == UnlockReq
}

// SendUnlockRequest writes the bare UnlockReq magic byte, Fob -> Car.
func (l *Link) SendUnlockRequest() error {
	_, err := l.rw.Write([]byte{UnlockReq})
	return err
}

// SendChallenge writes ChalStart followed by the 64-byte challenge.
func (l *Link) SendChallenge(c wire.Challenge) error {
	frame := make([]byte, 1+wire.ChallengeSize)
	frame[0] = ChalStart
	copy(frame[1:], c[:])
	_, err := l.rw.Write(frame)
	return err
}

// RecvChallenge blocks until ChalStart is seen, discarding any other bytes
// first (framing policy: drop until magic matches), then reads the fixed
// 64-byte payload.
func (l *Link) RecvChallenge() (wire.Challenge, error) {
	var c wire.Challenge
	if err := l.syncTo(ChalStart); err != nil {
		return c, err
	}
	if err := readFull(l.rw, c[:]); err != nil {
		return c, err
	}
	return c, nil
}

// SendResponse writes RespStart followed by the 256-byte response.
func (l *Link) SendResponse(r wire.Response) error {
	payload, err := r.MarshalBinary()
	if err != nil {
		return err
	}
	frame := make([]byte, 1+len(payload))
	frame[0] = RespStart
	copy(frame[1:], payload)
	_, err = l.rw.Write(frame)
	return err
}

// WritePairPacket writes PairStart followed by a marshaled PairPacket,
// Primary -> Replica.
func (l *Link) WritePairPacket(payload []byte) (int, error) {
	frame := make([]byte, 1+len(payload))
	frame[0] = PairStart
	copy(frame[1:], payload)
	return l.rw.Write(frame)
}

// RecvPairPacket blocks until PairStart is seen, discarding anything prior,
// then reads the fixed PairPacketSize payload.
func (l *Link) RecvPairPacket() ([]byte, error) {
	if err := l.syncTo(PairStart); err != nil {
		return nil, err
	}
	payload := make([]byte, wire.PairPacketSize)
	if err := readFull(l.rw, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// readByte reads a single byte for syncTo; io.ReadFull into a one-byte
// buffer works for any io.Reader, real or simulated.
func (l *Link) readByte() (byte, error) {
	var b [1]byte
	if err := readFull(l.rw, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// syncTo discards bytes until it reads one equal to magic. Per the framing
// policy, boardlink never re-syncs mid-payload: once a magic byte
// matches, every following byte belongs to that frame's fixed payload.
func (l *Link) syncTo(magic byte) error {
	for {
		b, err := l.readByte()
		if err != nil {
			return err
		}
		if b == magic {
			return nil
		}
	}
}

// recvResult carries RecvResponse's outcome across the goroutine boundary.
type recvResult struct {
	resp wire.Response
	err  error
}

// RecvResponse scans for RespStart and reads the fixed 256-byte Response
// payload, within an overall budget of windows × windowTimeout (the Car
// passes 8 one-second windows).
// The underlying transport has no per-read deadline (a Simulator's channel,
// or an io.ReadWriter with no SetReadDeadline), so the budget is enforced by
// racing the blocking read against a single timer — the Car's one unlock
// attempt still runs to completion or times out, matching the SysTick
// countdown the source firmware uses, without spawning concurrent attempt
// handlers.
func (l *Link) RecvResponse(windowTimeout time.Duration, windows int) (wire.Response, error) {
	var resp wire.Response
	done := make(chan recvResult, 1)
	go func() {
		if err := l.syncTo(RespStart); err != nil {
			done <- recvResult{resp, err}
			return
		}
		payload := make([]byte, wire.ResponseSize)
		err := readFull(l.rw, payload)
		if err == nil {
			err = resp.UnmarshalBinary(payload)
		}
		done <- recvResult{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-time.After(windowTimeout * time.Duration(windows)):
		return resp, ErrTimeout
	}
}
