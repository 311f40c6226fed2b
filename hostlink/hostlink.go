// Package hostlink implements the Host <-> Fob command dispatch line: a
// non-blocking poll on a single command byte, each command guarded by a
// runtime role check and reading its own fixed payload once selected.
package hostlink

import (
	"io"
	"time"

	"github.com/tarm/serial"
)

// Command bytes a host may send a fob.
const (
	EnableCmd byte = 0x10 // enable_feature; requires a paired fob.
	PPairCmd  byte = 0x20 // primary_pair; requires a paired fob.
	UPairCmd  byte = 0x30 // replica_pair; requires an unpaired OG-UFOB.
)

// Link is the host-facing serial line a fob polls each loop iteration.
type Link struct {
	rw io.ReadWriter
}

// New wraps an already-open byte stream as a Link.
func New(rw io.ReadWriter) *Link {
	return &Link{rw: rw}
}

// pollReadTimeout is the short per-read deadline Open's port is opened
// with, mirroring boardlink.Open.
const pollReadTimeout = 5 * time.Millisecond

// pollablePort adapts *serial.Port into a non-blocking single-byte reader,
// the same adaptation boardlink.Open uses for the inter-board line.
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

// Open opens the host-facing serial line at 115200 baud, 8-N-1.
func Open(dev string) (*Link, error) {
	c := &serial.Config{Name: dev, Baud: 115200, ReadTimeout: pollReadTimeout}
	port, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	return New(&pollablePort{port: port}), nil
}

// byteTryer is satisfied by a transport that can attempt a non-blocking
// single-byte read.
type byteTryer interface {
	TryReadByte() (byte, bool)
}

// TryReadByte performs one non-blocking read, for use as the pollByte
// argument to Poll. It reports false if the underlying transport cannot do
// a non-blocking read.
func (l *Link) TryReadByte() (byte, bool) {
	t, ok := l.rw.(byteTryer)
	if !ok {
		return 0, false
	}
	return t.TryReadByte()
}

// Poll is non-blocking: it reports the next command byte if one is already
// buffered, or ok=false if the host line is quiet. pollByte itself must be
// non-blocking, mirroring boardlink.Link.PollUnlockRequest.
func (l *Link) Poll(pollByte func() (byte, bool)) (byte, bool) {
	return pollByte()
}

// ReadPIN reads the 4-byte host_pin payload for P_PAIR_CMD.
func (l *Link) ReadPIN() (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(l.rw, buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// ReadFeatureInstall reads ENABLE_CMD's payload: the 1-based feature number
// followed by the 64-byte package to install.
func (l *Link) ReadFeatureInstall() (featureIndex int, pkg [64]byte, err error) {
	var n [1]byte
	if _, err = io.ReadFull(l.rw, n[:]); err != nil {
		return 0, pkg, err
	}
	if _, err = io.ReadFull(l.rw, pkg[:]); err != nil {
		return 0, pkg, err
	}
	return int(n[0]) - 1, pkg, nil
}

// WriteUnlockBlob writes the 64-byte unlock blob to the host UART.
func (l *Link) WriteUnlockBlob(blob []byte) error {
	_, err := l.rw.Write(blob)
	return err
}

// WriteFeatureBlob writes one feature EEPROM slot's bytes to the host UART.
func (l *Link) WriteFeatureBlob(blob []byte) error {
	_, err := l.rw.Write(blob)
	return err
}
