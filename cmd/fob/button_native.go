//go:build linux && arm

package main

import "carfob.dev/fob"

func openButton() (fob.Button, error) {
	return fob.OpenSW1()
}
