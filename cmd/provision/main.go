// Command provision is the offline factory tool: it generates a secrets
// bundle for one Car and its first paired fob, writes their EEPROM images
// and per-device entropy secrets, and signs feature packages against a
// bundle's Car key.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"carfob.dev/crypto"
	"carfob.dev/provision"
)

var (
	genCmd = flag.NewFlagSet("gen-bundle", flag.ExitOnError)
	genCar = genCmd.String("car-id", "", "car identifier recorded in the bundle")
	genOut = genCmd.String("out", "bundle.yaml", "path to write the generated bundle")

	carCmd        = flag.NewFlagSet("init-car", flag.ExitOnError)
	carBundle     = carCmd.String("bundle", "bundle.yaml", "path to the secrets bundle")
	carOut        = carCmd.String("out", "car.eeprom", "path to write the car EEPROM image")
	carSecretsOut = carCmd.String("secrets-out", "car-secrets.yaml", "path to write the car's entropy secrets")
	carMsg        = carCmd.String("unlock-message", "", "well-known unlock message, padded/truncated to 64 bytes")

	fobCmd        = flag.NewFlagSet("init-fob", flag.ExitOnError)
	fobBundle     = fobCmd.String("bundle", "bundle.yaml", "path to the secrets bundle")
	fobOut        = fobCmd.String("out", "fob.eeprom", "path to write the OG-PFOB EEPROM image")
	fobSecretsOut = fobCmd.String("secrets-out", "fob-secrets.yaml", "path to write the fob's entropy secrets")

	ufobCmd = flag.NewFlagSet("gen-ufob-secrets", flag.ExitOnError)
	ufobOut = ufobCmd.String("out", "ufob-secrets.yaml", "path to write a blank OG-UFOB's entropy secrets")

	signCmd     = flag.NewFlagSet("sign-feature", flag.ExitOnError)
	signBundle  = signCmd.String("bundle", "bundle.yaml", "path to the secrets bundle")
	signFeature = signCmd.Int("feature", -1, "feature index to sign (1-3)")
)

func main() {
	if len(os.Args) <= 1 {
		fmt.Fprintf(os.Stderr, "provision: specify a command: gen-bundle, init-car, init-fob, gen-ufob-secrets, sign-feature\n")
		os.Exit(2)
	}
	args := os.Args[2:]
	var err error
	switch cmd := os.Args[1]; cmd {
	case "gen-bundle":
		if perr := genCmd.Parse(args); perr != nil {
			genCmd.Usage()
		}
		err = genBundle()
	case "init-car":
		if perr := carCmd.Parse(args); perr != nil {
			carCmd.Usage()
		}
		err = initCar()
	case "init-fob":
		if perr := fobCmd.Parse(args); perr != nil {
			fobCmd.Usage()
		}
		err = initFob()
	case "gen-ufob-secrets":
		if perr := ufobCmd.Parse(args); perr != nil {
			ufobCmd.Usage()
		}
		err = genUFOBSecrets()
	case "sign-feature":
		if perr := signCmd.Parse(args); perr != nil {
			signCmd.Usage()
		}
		err = signFeatureCmd()
	default:
		fmt.Fprintf(os.Stderr, "provision: unknown command: %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "provision: %v\n", err)
		os.Exit(1)
	}
}

func genBundle() error {
	if *genCar == "" {
		return fmt.Errorf("gen-bundle: specify -car-id")
	}
	b, err := provision.GenerateBundle(crypto.Rand, *genCar)
	if err != nil {
		return err
	}
	defer b.Zero()
	if err := provision.Save(*genOut, b); err != nil {
		return err
	}
	fmt.Printf("wrote %s for car %s (pin %06d)\n", *genOut, b.CarID, b.PIN)
	return nil
}

func initCar() error {
	b, err := provision.Load(*carBundle)
	if err != nil {
		return err
	}
	defer b.Zero()
	img, err := b.CarEEPROMImage([]byte(*carMsg))
	if err != nil {
		return err
	}
	if err := os.WriteFile(*carOut, img, 0o644); err != nil {
		return err
	}
	secrets := b.CarSecrets()
	defer secrets.Zero()
	return provision.SaveDeviceSecrets(*carSecretsOut, secrets)
}

func initFob() error {
	b, err := provision.Load(*fobBundle)
	if err != nil {
		return err
	}
	defer b.Zero()
	img, err := b.OGPFOBEEPROMImage()
	if err != nil {
		return err
	}
	if err := os.WriteFile(*fobOut, img, 0o644); err != nil {
		return err
	}
	secrets := b.OGPFOBSecrets()
	defer secrets.Zero()
	return provision.SaveDeviceSecrets(*fobSecretsOut, secrets)
}

func genUFOBSecrets() error {
	secrets, err := provision.GenerateDeviceSecrets(crypto.Rand)
	if err != nil {
		return err
	}
	defer secrets.Zero()
	return provision.SaveDeviceSecrets(*ufobOut, secrets)
}

func signFeatureCmd() error {
	if *signFeature < 1 || *signFeature > 3 {
		return fmt.Errorf("sign-feature: specify -feature <1-3>")
	}
	b, err := provision.Load(*signBundle)
	if err != nil {
		return err
	}
	defer b.Zero()
	pkg, err := b.SignFeature(crypto.Rand, *signFeature-1)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(pkg[:]))
	return nil
}
