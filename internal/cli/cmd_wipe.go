package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

func wipeCmd() *Command {
	fs := flag.NewFlagSet("wipe", flag.ContinueOnError)
	keepPriority := fs.Bool("keep-priority", false, "Keep priority devices")

	return &Command{
		Flags: fs,
		Usage: "wipe [--keep-priority]",
		Short: "Delete every device",
		Exec: func(ctx context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 0, 0, "wipe [--keep-priority]")
			if err != nil {
				return err
			}

			filter := tddb.FilterExcludeNone
			if *keepPriority {
				filter = tddb.FilterExcludePriority
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			err = dir.DeleteAll(filter)
			if err != nil {
				return err
			}

			n, err := dir.CountDevices()
			if err != nil {
				return err
			}

			o.Printf("%d devices left\n", n)

			return nil
		},
	}
}
