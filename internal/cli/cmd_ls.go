package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

const defaultLimit = 16

func lsCmd() *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	limit := fs.IntP("limit", "n", defaultLimit, "Maximum devices to show")

	return &Command{
		Flags: fs,
		Usage: "ls [--limit N]",
		Short: "List devices, most recently used first",
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 0, 0, "ls [--limit N]")
			if err != nil {
				return err
			}

			if *limit < 0 {
				return errors.New("--limit must be non-negative")
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			devices, total, err := dir.ListDevices(*limit)
			if err != nil {
				return err
			}

			for _, d := range devices {
				mark := ""
				if d.Priority {
					mark = "  priority"
				}

				o.Printf("%2d  %s%s\n", d.Rank, d.TypedAddr, mark)
			}

			if len(devices) < total {
				o.Printf("(%d of %d devices)\n", len(devices), total)
			}

			return nil
		},
	}
}

func countCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("count", flag.ContinueOnError),
		Usage: "count",
		Short: "Print the number of devices",
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 0, 0, "count")
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			n, err := dir.CountDevices()
			if err != nil {
				return err
			}

			o.Println(n)

			return nil
		},
	}
}

func existsCmd() *Command {
	const usage = "exists <addr> [<source> <key>]"

	return &Command{
		Flags: flag.NewFlagSet("exists", flag.ContinueOnError),
		Usage: usage,
		Short: "Print whether a device, or one of its attributes, exists",
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 1, 3, usage)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				return fmt.Errorf("%w: usage: tddb %s", errMissingArgs, usage)
			}

			dev, err := tddb.ParseTypedAddr(args[0])
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			var ok bool

			if len(args) == 1 {
				ok, err = dir.DeviceExists(dev)
			} else {
				src, key, parseErr := parseAttr(args[1], args[2])
				if parseErr != nil {
					return parseErr
				}

				ok, err = dir.EntryExists(dev, src, key)
			}

			if err != nil {
				return err
			}

			o.Println(ok)

			return nil
		},
	}
}
