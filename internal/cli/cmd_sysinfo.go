package cli

import (
	"context"
	"encoding/hex"
	"fmt"

	flag "github.com/spf13/pflag"
)

func sysinfoCmd() *Command {
	fs := flag.NewFlagSet("sysinfo", flag.ContinueOnError)
	signCounter := fs.Uint32("sign-counter", 0, "Set the local sign counter")
	div := fs.Uint16("div", 0, "Set the diversifier")
	er := fs.String("er", "", "Set the encryption root (16 bytes hex)")
	ir := fs.String("ir", "", "Set the identity root (16 bytes hex)")
	hash := fs.String("hash", "", "Set the GATT database hash (16 bytes hex)")

	return &Command{
		Flags: fs,
		Usage: "sysinfo [--er HEX] [--ir HEX] [--div N] [--sign-counter N] [--hash HEX]",
		Short: "Show or update the system record",
		Long: `Show or update the system record.

Fields not given keep their stored value. A missing or unreadable record
reads as all zeros.`,
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 0, 0, "sysinfo")
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			info, err := dir.GetSystemInfo()
			if err != nil {
				return err
			}

			changed := false

			if fs.Changed("er") {
				err = parseHexWords(*er, info.ER[:])
				if err != nil {
					return fmt.Errorf("--er: %w", err)
				}

				changed = true
			}

			if fs.Changed("ir") {
				err = parseHexWords(*ir, info.IR[:])
				if err != nil {
					return fmt.Errorf("--ir: %w", err)
				}

				changed = true
			}

			if fs.Changed("hash") {
				b, parseErr := parseHex(*hash)
				if parseErr != nil {
					return fmt.Errorf("--hash: %w", parseErr)
				}

				if len(b) != len(info.Hash) {
					return fmt.Errorf("--hash: %d bytes, want %d", len(b), len(info.Hash))
				}

				copy(info.Hash[:], b)

				changed = true
			}

			if fs.Changed("div") {
				info.Div = *div
				changed = true
			}

			if fs.Changed("sign-counter") {
				info.SignCounter = *signCounter
				changed = true
			}

			if changed {
				err = dir.SetSystemInfo(info)
				if err != nil {
					return err
				}
			}

			o.Println("er=" + formatHexWords(info.ER[:]))
			o.Println("ir=" + formatHexWords(info.IR[:]))
			o.Printf("div=%d\n", info.Div)
			o.Printf("sign_counter=%d\n", info.SignCounter)
			o.Println("hash=" + hex.EncodeToString(info.Hash[:]))

			return nil
		},
	}
}
