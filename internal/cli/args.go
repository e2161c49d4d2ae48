package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/calvinalkan/tddb/pkg/ps"
	"github.com/calvinalkan/tddb/pkg/tddb"
)

var (
	errMissingArgs = errors.New("missing arguments")
	errExtraArgs   = errors.New("too many arguments")
)

// wantArgs checks that args has between lo and hi entries.
func wantArgs(args []string, lo, hi int, usage string) error {
	switch {
	case len(args) < lo:
		return fmt.Errorf("%w: usage: tddb %s", errMissingArgs, usage)
	case len(args) > hi:
		return fmt.Errorf("%w: usage: tddb %s", errExtraArgs, usage)
	default:
		return nil
	}
}

// parseAttr parses a source name or number and a key number.
func parseAttr(srcArg, keyArg string) (tddb.Source, uint16, error) {
	src, err := tddb.ParseSource(srcArg)
	if err != nil {
		return 0, 0, err
	}

	key, err := strconv.ParseUint(keyArg, 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("parse key %q: %w", keyArg, tddb.ErrInvalidKey)
	}

	return src, uint16(key), nil
}

// parseHex decodes hex, ignoring ':' and '-' separators.
func parseHex(s string) ([]byte, error) {
	clean := strings.NewReplacer(":", "", "-", "", " ", "").Replace(s)

	b, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("parse hex %q: %w", s, err)
	}

	return b, nil
}

// parseHexWords decodes exactly 2·len(dst) bytes of hex into dst.
func parseHexWords(s string, dst []uint16) error {
	b, err := parseHex(s)
	if err != nil {
		return err
	}

	if len(b) != ps.WordSize*len(dst) {
		return fmt.Errorf("parse hex %q: %d bytes, want %d", s, len(b), ps.WordSize*len(dst))
	}

	copy(dst, ps.BytesToWords(b))

	return nil
}

func formatHexWords(words []uint16) string {
	return hex.EncodeToString(ps.WordsToBytes(words))
}
