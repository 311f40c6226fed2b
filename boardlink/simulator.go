package boardlink

// Simulator is an in-memory half-duplex byte pipe standing in for the
// physical inter-board serial line in tests, the way driver/mjolnir's
// Simulator stood in for the plotter's UART. Each direction is a buffered
// byte channel shared with the peer Simulator, so no mutex is needed and no
// goroutine runs behind it.
type Simulator struct {
	toCar   chan byte
	toFob   chan byte
	closeCh chan struct{}
}

// NewSimulator returns a pair of linked Simulators: writes to one appear as
// reads on the other.
func NewSimulator() (car, fob *Simulator) {
	toCar := make(chan byte, 4096)
	toFob := make(chan byte, 4096)
	closeCh := make(chan struct{})
	return &Simulator{toCar: toCar, toFob: toFob, closeCh: closeCh},
		&Simulator{toCar: toFob, toFob: toCar, closeCh: closeCh}
}

// Read blocks until len(p) bytes have arrived from the peer.
func (s *Simulator) Read(p []byte) (int, error) {
	for i := range p {
		select {
		case b := <-s.toCar:
			p[i] = b
		case <-s.closeCh:
			return i, errClosed
		}
	}
	return len(p), nil
}

// Write sends p to the peer, blocking only as long as the channel buffer
// requires.
func (s *Simulator) Write(p []byte) (int, error) {
	for i, b := range p {
		select {
		case s.toFob <- b:
		case <-s.closeCh:
			return i, errClosed
		}
	}
	return len(p), nil
}

// TryReadByte is PollUnlockRequest's non-blocking poll: it reports ok=false
// immediately if no byte is buffered.
func (s *Simulator) TryReadByte() (b byte, ok bool) {
	select {
	case v := <-s.toCar:
		return v, true
	default:
		return 0, false
	}
}

var errClosed = simError("boardlink: simulator closed")

type simError string

func (e simError) Error() string { return string(e) }
