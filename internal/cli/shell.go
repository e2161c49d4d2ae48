package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// lineReader reads shell input one line at a time.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// scanReader reads lines from a non-terminal input such as a pipe.
type scanReader struct {
	sc *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	err := r.sc.Err()
	if err == nil {
		err = io.EOF
	}

	return "", err
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

// runShell runs commands read from in against one open directory, so the
// cache and lock are held across lines. Line editing and history are
// only enabled when in is the process's stdin.
func runShell(ctx context.Context, in io.Reader, out, errOut io.Writer, env map[string]string, s *session) int {
	var (
		lr      lineReader
		history string
	)

	if in == os.Stdin {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		state.SetCompleter(completeCommand)

		history = historyPath(env)
		loadHistory(state, history)

		lr = state
	} else {
		if in == nil {
			in = strings.NewReader("")
		}

		lr = &scanReader{sc: bufio.NewScanner(in)}
	}

	defer func() {
		if state, ok := lr.(*liner.State); ok {
			saveHistory(state, history)
		}

		_ = lr.Close()
	}()

	o := NewIO(out, errOut)

	for ctx.Err() == nil {
		line, err := lr.Prompt("tddb> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				return 0
			}

			fprintln(errOut, "error: read input:", err)

			return 1
		}

		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		lr.AppendHistory(line)

		switch fields[0] {
		case "exit", "quit", "q":
			return 0
		case "help", "?":
			printUsage(out)
		case "shell":
			o.ErrPrintln("error: already in a shell")
		default:
			dispatch(ctx, o, s, fields[0], fields[1:])
		}
	}

	return 1
}

func completeCommand(line string) []string {
	var matches []string

	for _, c := range commands() {
		if strings.HasPrefix(c.Name(), line) {
			matches = append(matches, c.Name())
		}
	}

	return matches
}

func historyPath(env map[string]string) string {
	if state := env["XDG_STATE_HOME"]; state != "" {
		return filepath.Join(state, "tddb", "history")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".tddb_history")
	}

	return ""
}

func loadHistory(state *liner.State, path string) {
	if path == "" {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = state.ReadHistory(f)
}

func saveHistory(state *liner.State, path string) {
	if path == "" {
		return
	}

	_ = os.MkdirAll(filepath.Dir(path), 0o750)

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = state.WriteHistory(f)
}
