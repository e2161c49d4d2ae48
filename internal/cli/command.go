package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/pkg/tddb"
)

// Command is one tddb subcommand.
type Command struct {
	// Flags holds the subcommand's own flags; nil means none.
	Flags *flag.FlagSet

	// Usage is the synopsis after "tddb", starting with the command name.
	Usage string

	// Short is the summary in the command list.
	Short string

	// Long is the text of "tddb <cmd> --help". Short stands in when empty.
	Long string

	// Exec runs with the positional arguments left after flag parsing.
	Exec func(ctx context.Context, o *IO, s *session, args []string) error
}

// Name is the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine is the command's row in the top-level usage.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-40s %s", c.Usage, c.Short)
}

// PrintHelp writes the synopsis, description and flag table.
func (c *Command) PrintHelp(o *IO) {
	text := c.Long
	if text == "" {
		text = c.Short
	}

	o.Printf("Usage: tddb %s\n\n%s\n", c.Usage, text)

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	o.Printf("\nFlags:\n%s", c.Flags.FlagUsages())
}

// Run parses args into the flag set and calls Exec. It returns the exit
// code: 0 on success or --help, 1 on a flag or command error.
func (c *Command) Run(ctx context.Context, o *IO, s *session, args []string) int {
	if c.Flags == nil {
		c.Flags = flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	}

	// Errors are reported below; pflag must not print its own copy.
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)

	switch {
	case errors.Is(err, flag.ErrHelp):
		c.PrintHelp(o)

		return 0
	case err != nil:
		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	err = c.Exec(ctx, o, s, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", describe(err))

		return 1
	}

	return 0
}

// describe renders err, followed by its directory result code when the
// error came from the directory.
func describe(err error) string {
	code := tddb.Result(err)
	if code == tddb.ResultTaskFailed && !errors.Is(err, tddb.ErrTaskFailed) {
		return err.Error()
	}

	return fmt.Sprintf("%v (result %d: %s)", err, uint8(code), code)
}
