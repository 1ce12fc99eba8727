// Command nostrcli is a thin, flag-free wrapper around the relaypool
// packages: keygen, convert, and info subcommands, dispatched by hand on
// os.Args[1] the way the teacher's cmd/ binaries each expose one
// single-purpose main() with no CLI framework.
package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/nostrkit/relaypool/keys"
	"github.com/nostrkit/relaypool/logging"
	"github.com/nostrkit/relaypool/nip19"
)

func main() {
	logging.Init()

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "keygen":
		err = runKeygen(os.Args[2:])
	case "convert":
		err = runConvert(os.Args[2:])
	case "info":
		err = runInfo(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "nostrcli:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nostrcli <keygen|convert|info> [args]")
	fmt.Fprintln(os.Stderr, "  keygen                    generate a new keypair")
	fmt.Fprintln(os.Stderr, "  convert <npub|nsec|note>  convert a bech32 identifier to hex")
	fmt.Fprintln(os.Stderr, "  convert <hex> <npub|nsec|note>  convert hex to a bech32 identifier")
	fmt.Fprintln(os.Stderr, "  info <privkey-hex>        print the public key and npub for a private key")
}

func runKeygen(args []string) error {
	kp, err := keys.Generate()
	if err != nil {
		return err
	}
	npub, err := nip19.EncodeNpub(kp.PublicKey)
	if err != nil {
		return err
	}
	nsec, err := nip19.EncodeNsec(kp.PrivateKey)
	if err != nil {
		return err
	}
	fmt.Println("private key (hex):", kp.PrivateKey)
	fmt.Println("public key (hex): ", kp.PublicKey)
	fmt.Println("nsec:             ", nsec)
	fmt.Println("npub:             ", npub)
	return nil
}

func runConvert(args []string) error {
	if len(args) == 1 {
		return decodeIdentifier(args[0])
	}
	if len(args) == 2 {
		return encodeIdentifier(args[0], args[1])
	}
	return fmt.Errorf("convert: expected 1 or 2 arguments, got %d", len(args))
}

func decodeIdentifier(identifier string) error {
	if len(identifier) < 4 {
		return fmt.Errorf("convert: %q is too short to be a bech32 identifier", identifier)
	}
	switch identifier[:4] {
	case "npub":
		pub, err := nip19.DecodeNpub(identifier)
		if err != nil {
			return err
		}
		fmt.Println(pub)
	case "nsec":
		priv, err := nip19.DecodeNsec(identifier)
		if err != nil {
			return err
		}
		fmt.Println(priv)
	case "note":
		id, err := nip19.DecodeNote(identifier)
		if err != nil {
			return err
		}
		fmt.Println(id)
	default:
		return fmt.Errorf("convert: unsupported identifier prefix in %q", identifier)
	}
	return nil
}

func encodeIdentifier(hexValue, target string) error {
	if _, err := hex.DecodeString(hexValue); err != nil {
		return fmt.Errorf("convert: %q is not valid hex: %w", hexValue, err)
	}
	var (
		encoded string
		err     error
	)
	switch target {
	case "npub":
		encoded, err = nip19.EncodeNpub(hexValue)
	case "nsec":
		encoded, err = nip19.EncodeNsec(hexValue)
	case "note":
		encoded, err = nip19.EncodeNote(hexValue)
	default:
		return fmt.Errorf("convert: unsupported target %q", target)
	}
	if err != nil {
		return err
	}
	fmt.Println(encoded)
	return nil
}

func runInfo(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("info: expected a private key hex argument")
	}
	pub, err := keys.PublicKeyFromPrivateKeyHex(args[0])
	if err != nil {
		return err
	}
	npub, err := nip19.EncodeNpub(pub)
	if err != nil {
		return err
	}
	fmt.Println("public key (hex):", pub)
	fmt.Println("npub:            ", npub)
	return nil
}
