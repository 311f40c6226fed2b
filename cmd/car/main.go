// Command car runs the Car controller's main loop: on every boot it loads
// its EEPROM-resident identity and then polls the inter-board link for
// unlock requests forever. Its entropy pool is bootstrapped lazily, when the
// first unlock request needs a challenge.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"carfob.dev/boardlink"
	"carfob.dev/car"
	"carfob.dev/entropy"
	"carfob.dev/hostlink"
	"carfob.dev/provision"
	"carfob.dev/store"
	"carfob.dev/wire"
)

var (
	boardDev   = flag.String("boardlink", "", "serial device for the inter-board link (empty: autodetect)")
	hostDev    = flag.String("hostlink", "", "serial device for the host UART")
	eepromDir  = flag.String("eeprom-dir", "car-eeprom", "directory holding the car's EEPROM image")
	flashDir   = flag.String("flash-dir", "car-flash", "directory holding the car's flash-resident entropy pool")
	secretsOut = flag.String("secrets", "car-secrets.yaml", "path to the car's factory-injected entropy secrets")
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
	log.Println("car: loading...")

	secrets, err := provision.LoadDeviceSecrets(*secretsOut)
	if err != nil {
		return fmt.Errorf("load secrets: %w", err)
	}
	defer secrets.Zero()

	eepromBackend, err := store.NewFileBackend(*eepromDir)
	if err != nil {
		return err
	}
	eeprom := eepromBackend.EEPROMRegion("car-eeprom", wire.CarEEPROMSize)

	var carDataBuf [wire.CarDataSize]byte
	if err := eeprom.Read(0, carDataBuf[:]); err != nil {
		return fmt.Errorf("read car data: %w", err)
	}
	var carData wire.CarData
	if err := carData.UnmarshalBinary(carDataBuf[:]); err != nil {
		return fmt.Errorf("decode car data: %w", err)
	}

	flashBackend, err := store.NewFileBackend(*flashDir)
	if err != nil {
		return err
	}
	flash := flashBackend.FlashRegion("car-entropy", wire.EntropyPoolSize)
	ent := entropy.New(flash, 0)

	boardLink, err := boardlink.Open(*boardDev)
	if err != nil {
		return fmt.Errorf("open board link: %w", err)
	}
	hostLink, err := hostlink.Open(*hostDev)
	if err != nil {
		return fmt.Errorf("open host link: %w", err)
	}

	tick := entropy.Tick(uint32(time.Now().UnixNano()))
	d := &car.Device{
		Link:    boardLink,
		Host:    hostLink,
		CarData: carData,
		EEPROM:  eeprom,
		NextRand: func(buf []byte) error {
			if !ent.Ready() {
				// The car's own public key is this car's device-specific
				// personalization material: stable across boots, unique
				// to this car.
				if err := ent.Bootstrap(secrets.SEntropy, carData.CarPubKey[:], tick); err != nil {
					return err
				}
			}
			_, err := ent.Reader().Read(buf)
			return err
		},
	}

	log.Println("car: entering unlock loop")
	for {
		d.TryUnlock(d.Link.TryReadByte)
	}
}
