package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/internal/config"
)

func printConfigCmd() *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and which files it was loaded from.",
		Exec: func(_ context.Context, o *IO, s *session, args []string) error {
			err := wantArgs(args, 0, 0, "print-config")
			if err != nil {
				return err
			}

			return execPrintConfig(o, s.cfg)
		},
	}
}

func execPrintConfig(o *IO, cfg config.Config) error {
	text, err := config.Format(cfg)
	if err != nil {
		return err
	}

	o.Println(text)
	o.Println("store_path=" + cfg.StoreAbs)
	o.Println("")
	o.Println("# sources")

	if cfg.Sources.Global == "" && cfg.Sources.Project == "" {
		o.Println("(defaults only)")

		return nil
	}

	if cfg.Sources.Global != "" {
		o.Println("global_config=" + cfg.Sources.Global)
	}

	if cfg.Sources.Project != "" {
		o.Println("project_config=" + cfg.Sources.Project)
	}

	return nil
}
