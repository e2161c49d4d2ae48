package cli

import (
	"context"
	"encoding/hex"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

func writeCmd() *Command {
	const usage = "write <addr> <source> <key> <hex>"

	return &Command{
		Flags: flag.NewFlagSet("write", flag.ContinueOnError),
		Usage: usage,
		Short: "Store an attribute, adding the device if needed",
		Long: `Store an attribute, adding the device if needed.

A new device takes the least recently used rank. When the directory is
full the least recently used non-priority device is evicted. An empty
value ("") erases the attribute.`,
		Exec: func(ctx context.Context, _ *IO, s *session, args []string) error {
			err := wantArgs(args, 4, 4, usage)
			if err != nil {
				return err
			}

			dev, err := tddb.ParseTypedAddr(args[0])
			if err != nil {
				return err
			}

			src, key, err := parseAttr(args[1], args[2])
			if err != nil {
				return err
			}

			value, err := parseHex(args[3])
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			return dir.WriteEntry(dev, src, key, value)
		},
	}
}

func readCmd() *Command {
	const usage = "read (<addr> | --rank N) <source> <key> [--size N]"

	fs := flag.NewFlagSet("read", flag.ContinueOnError)
	rank := fs.IntP("rank", "r", -1, "Read from the device with this rank instead of an address")
	size := fs.Int("size", 0, "Require the stored length to match `N` bytes")

	return &Command{
		Flags: fs,
		Usage: usage,
		Short: "Print an attribute as hex",
		Long: `Print an attribute as hex.

Without --size the stored value is printed whatever its length. With
--size the stored length must match exactly; an LE keys record written
without its signing block is extended and rewritten.`,
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			byRank := fs.Changed("rank")

			want := 3
			if byRank {
				want = 2
			}

			err := wantArgs(args, want, want, usage)
			if err != nil {
				return err
			}

			if *size < 0 {
				return errors.New("--size must be non-negative")
			}

			src, key, err := parseAttr(args[want-2], args[want-1])
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			if byRank {
				return readByRank(o, dir, *rank, src, key, *size)
			}

			dev, err := tddb.ParseTypedAddr(args[0])
			if err != nil {
				return err
			}

			if *size > 0 {
				buf := make([]byte, *size)

				err = dir.GetEntry(dev, src, key, buf)
				if err != nil {
					return err
				}

				o.Println(hex.EncodeToString(buf))

				return nil
			}

			n, err := dir.ReadEntry(dev, src, key, nil)
			if err != nil {
				return err
			}

			if n == 0 {
				o.Println("")

				return nil
			}

			buf := make([]byte, n)

			_, err = dir.ReadEntry(dev, src, key, buf)
			if err != nil {
				return err
			}

			o.Println(hex.EncodeToString(buf))

			return nil
		},
	}
}

func readByRank(o *IO, dir *tddb.Directory, rank int, src tddb.Source, key uint16, size int) error {
	if size > 0 {
		buf := make([]byte, size)

		addr, err := dir.GetEntryByIndex(rank, src, key, buf)
		if err != nil {
			return err
		}

		o.Println(addr, hex.EncodeToString(buf))

		return nil
	}

	info, err := dir.ReadEntryByIndex(rank, src, key, nil)
	if err != nil {
		return err
	}

	if info.Length == 0 {
		o.Println(info.Addr, "")

		return nil
	}

	buf := make([]byte, info.Length)

	info, err = dir.ReadEntryByIndex(rank, src, key, buf)
	if err != nil {
		return err
	}

	o.Println(info.Addr, hex.EncodeToString(buf))

	return nil
}

func rmCmd() *Command {
	const usage = "rm <addr> [<source> <key>]"

	return &Command{
		Flags: flag.NewFlagSet("rm", flag.ContinueOnError),
		Usage: usage,
		Short: "Delete a device, or one of its attributes",
		Long: `Delete a device, or one of its attributes.

Priority devices cannot be deleted; clear their priority first with
"tddb prio <addr> --clear".`,
		Exec: func(ctx context.Context, _ *IO, s *session, args []string) error {
			err := wantArgs(args, 1, 3, usage)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				return wantArgs(args, 3, 3, usage)
			}

			dev, err := tddb.ParseTypedAddr(args[0])
			if err != nil {
				return err
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			if len(args) == 1 {
				return dir.DeleteDevice(dev)
			}

			src, key, err := parseAttr(args[1], args[2])
			if err != nil {
				return err
			}

			return dir.DeleteEntry(dev, src, key)
		},
	}
}
