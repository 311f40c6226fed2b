//go:build linux && arm

package fob

import (
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/bcm283x"
)

// GPIOButton samples SW1 over a periph.io GPIO pin, the way wshat.go reads
// its joystick pins, but pulled up and polled rather than edge-triggered:
// the fob's main loop owns the debounce timing, not a per-pin goroutine.
type GPIOButton struct {
	pin gpio.PinIn
}

// OpenSW1 initializes the host GPIO controller and configures SW1 with an
// internal pull-up.
func OpenSW1() (*GPIOButton, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	pin := bcm283x.GPIO21
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, err
	}
	return &GPIOButton{pin: pin}, nil
}

func (b *GPIOButton) SampleLow() bool {
	return b.pin.Read() == gpio.Low
}
