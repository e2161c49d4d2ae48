// Package cli implements the tddb command.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/tddb/internal/config"
	"github.com/calvinalkan/tddb/internal/logging"
)

const helpFlag = "--help"

// Run is the main entry point. Returns exit code.
//
// args includes the program name. A value on sigCh cancels the running
// command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	if len(args) < 2 {
		printUsage(out)

		return 0
	}

	global, err := parseGlobalFlags(args[1:])
	if err != nil {
		fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	if global.help || len(global.remaining) == 0 {
		printUsage(out)

		return 0
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDir:    global.workDir,
		ConfigPath: global.configPath,
		Overrides:  global.overrides,
		Env:        env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)

		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}, errOut, cfg.StoreAbs)

	s := newSession(cfg, logger)
	defer func() {
		closeErr := s.Close()
		if closeErr != nil {
			fprintln(errOut, "error: close:", closeErr)
		}
	}()

	name, cmdArgs := global.remaining[0], global.remaining[1:]

	if name == "shell" {
		return runShell(ctx, in, out, errOut, env, s)
	}

	return dispatch(ctx, NewIO(out, errOut), s, name, cmdArgs)
}

// dispatch runs one command line against s.
func dispatch(ctx context.Context, o *IO, s *session, name string, args []string) int {
	cmd := findCommand(name)
	if cmd == nil {
		o.ErrPrintln("error: unknown command:", name)

		return 1
	}

	code := cmd.Run(ctx, o, s, args)

	if finish := o.Finish(); code == 0 {
		code = finish
	}

	return code
}

// commands returns a fresh command table. Flag sets keep parsed values, so
// every invocation gets its own.
func commands() []*Command {
	return []*Command{
		initCmd(),
		lsCmd(),
		countCmd(),
		existsCmd(),
		writeCmd(),
		readCmd(),
		rmCmd(),
		wipeCmd(),
		prioCmd(),
		sysinfoCmd(),
		printConfigCmd(),
	}
}

func findCommand(name string) *Command {
	for _, c := range commands() {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

type globalFlags struct {
	workDir    string
	configPath string
	overrides  config.Config
	help       bool
	remaining  []string
}

var errFlagValue = errors.New("invalid flag value")

func parseGlobalFlags(args []string) (globalFlags, error) {
	var g globalFlags

	fs := flag.NewFlagSet("tddb", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	fs.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	fs.StringVarP(&g.configPath, "config", "c", "", "Use the given config `file`")
	fs.StringVarP(&g.overrides.Store, "store", "s", "", "Store `path`")
	fs.StringVarP(&g.overrides.Backend, "backend", "b", "", "Store backend: file, sqlite, bolt or mem")
	fs.IntVar(&g.overrides.MaxDevices, "max-devices", 0, "Maximum number of devices")
	fs.StringVar(&g.overrides.Layout, "layout", "", "Layout: legacy or extended")
	fs.StringSliceVar(&g.overrides.Features, "features", nil, "Feature names written to the system record")
	fs.StringVar(&g.overrides.LogLevel, "log-level", "", "Log level: debug, info, warn or error")
	fs.StringVar(&g.overrides.LogFormat, "log-format", "", "Log format: text or json")
	fs.BoolVarP(&g.help, "help", "h", false, "Show help")

	err := fs.Parse(args)
	if err != nil {
		return globalFlags{}, err
	}

	if fs.Changed("max-devices") && g.overrides.MaxDevices <= 0 {
		return globalFlags{}, fmt.Errorf("%w: --max-devices must be positive", errFlagValue)
	}

	g.remaining = fs.Args()

	return g, nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer) {
	var b strings.Builder

	b.WriteString(`tddb - trusted device directory

Usage: tddb [options] <command> [args]

Options:
  -C, --cwd <dir>          Run as if started in <dir>
  -c, --config <file>      Use the given config file
  -s, --store <path>       Store path
  -b, --backend <name>     file, sqlite, bolt or mem
      --max-devices <n>    Maximum number of devices
      --layout <name>      legacy or extended
      --features <list>    Feature names for the system record
      --log-level <level>  debug, info, warn or error
      --log-format <fmt>   text or json

Commands:
`)

	for _, c := range commands() {
		b.WriteString(c.HelpLine())
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "  %-40s %s", "shell", "Interactive shell on one open directory")

	fprintln(w, b.String())
}
