package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

func initCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("init", flag.ContinueOnError),
		Usage: "init",
		Short: "Open the store, migrating or resetting it, and report its state",
		Long: `Open the store, migrating or resetting it, and report its state.

An empty store or one with an unknown version is reset to an empty
directory. A legacy store opened with the extended layout is migrated.`,
		Exec: execInit,
	}
}

func execInit(ctx context.Context, o *IO, s *session, _ []string) error {
	dir, err := s.directory(ctx)
	if err != nil {
		return err
	}

	count, err := dir.CountDevices()
	if err != nil {
		return err
	}

	if dir.InitState() == tddb.InitMigrationHalted {
		o.Warn("migration halted part way", "some attributes may be missing; re-pair affected devices")
	}

	o.Printf("layout=%s\n", dir.Layout())
	o.Printf("version=%s\n", dir.Version())
	o.Printf("state=%s\n", dir.InitState())
	o.Printf("devices=%d/%d\n", count, dir.MaxDevices())

	return nil
}
