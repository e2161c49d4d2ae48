package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

var errPrioFlags = errors.New("--set and --clear are mutually exclusive")

func prioCmd() *Command {
	const usage = "prio <addr> [--mru] [--set|--clear]"

	fs := flag.NewFlagSet("prio", flag.ContinueOnError)
	mru := fs.Bool("mru", false, "Mark the device most recently used")
	set := fs.Bool("set", false, "Make the device a priority device")
	unset := fs.Bool("clear", false, "Clear the priority bit")

	return &Command{
		Flags: fs,
		Usage: usage,
		Short: "Change a device's rank or priority",
		Long: `Change a device's rank or priority.

With no flags the device is marked most recently used. --set also makes
it most recently used. --clear places it just ahead of the most recently
used non-priority device.`,
		Exec: func(ctx context.Context, _ *IO, s *session, args []string) error {
			err := wantArgs(args, 1, 1, usage)
			if err != nil {
				return err
			}

			if *set && *unset {
				return errPrioFlags
			}

			dev, err := tddb.ParseTypedAddr(args[0])
			if err != nil {
				return err
			}

			var flags tddb.UpdateFlag

			if *mru || (!*set && !*unset) {
				flags |= tddb.UpdateMRU
			}

			if *set {
				flags |= tddb.UpdatePrioritise
			}

			if *unset {
				flags |= tddb.UpdateDeprioritise
			}

			dir, err := s.directory(ctx)
			if err != nil {
				return err
			}

			return dir.PrioritiseDevice(dev, flags)
		},
	}
}
