// Command fob runs a Key Fob controller's main loop: on every boot it
// bootstraps its persistent state (copying a manufacturer-provisioned
// EEPROM record into flash on an OG-PFOB's first boot), then polls the host
// command line and the SW1 button forever.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"carfob.dev/boardlink"
	"carfob.dev/entropy"
	"carfob.dev/fob"
	"carfob.dev/hostlink"
	"carfob.dev/provision"
	"carfob.dev/role"
	"carfob.dev/store"
	"carfob.dev/wire"
)

var (
	boardDev  = flag.String("boardlink", "", "serial device for the inter-board link (empty: autodetect)")
	hostDev   = flag.String("hostlink", "", "serial device for the host command line")
	eepromDir = flag.String("eeprom-dir", "fob-eeprom", "directory holding an OG-PFOB's factory-provisioned record")
	flashDir  = flag.String("flash-dir", "fob-flash", "directory holding this fob's flash-resident state and entropy pool")
	secretsIn = flag.String("secrets", "fob-secrets.yaml", "path to this fob's factory-injected entropy secrets")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()
	log.SetFlags(log.Flags() &^ (log.Ldate | log.Ltime))
	log.Printf("fob: loading (role=%s)...\n", role.Current)

	secrets, err := provision.LoadDeviceSecrets(*secretsIn)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	defer secrets.Zero()

	eepromBackend, err := store.NewFileBackend(*eepromDir)
	if err != nil {
		return err
	}
	eeprom := eepromBackend.EEPROMRegion("fob-eeprom", wire.FobRecordSize)

	flashBackend, err := store.NewFileBackend(*flashDir)
	if err != nil {
		return err
	}
	stateFlash := flashBackend.FlashRegion("fob-state", wire.FobRecordSize)
	entropyFlash := flashBackend.FlashRegion("fob-entropy", wire.EntropyPoolSize)

	boardLink, err := boardlink.Open(*boardDev)
	if err != nil {
		return fmt.Errorf("open board link: %w", err)
	}
	hostLink, err := hostlink.Open(*hostDev)
	if err != nil {
		return fmt.Errorf("open host link: %w", err)
	}
	button, err := openButton()
	if err != nil {
		return fmt.Errorf("open sw1: %w", err)
	}

	d := &fob.Device{
		Link:     boardLink,
		Host:     hostLink,
		Flash:    stateFlash,
		Button:   button,
		Entropy:  entropy.New(entropyFlash, 0),
		SEntropy: [wire.EntropyPoolSize]byte(secrets.SEntropy),
		Tick:     entropy.Tick(uint32(time.Now().UnixNano())),
	}

	if err := d.Bootstrap(eeprom); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	log.Println("fob: entering main loop")
	for {
		if !d.TryHostCommand(hostLink.TryReadByte) {
			d.TryButton()
		}
	}
}
