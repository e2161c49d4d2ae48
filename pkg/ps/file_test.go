package ps_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/tddb/pkg/ps"
)

func Test_OpenFile_Returns_ErrBusy_When_Image_Is_Already_Open(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "busy.tdps")

	first, err := ps.OpenFile(path)
	require.NoError(t, err)

	_, err = ps.OpenFile(path)
	require.ErrorIs(t, err, ps.ErrBusy)

	require.NoError(t, first.Close())

	second, err := ps.OpenFile(path)
	require.NoError(t, err, "lock must be released by Close")
	require.NoError(t, second.Close())
}

func Test_OpenFile_Returns_ErrCorrupt_When_Image_Is_Damaged(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(b []byte) []byte
	}{
		{
			name:   "BadMagic",
			mutate: func(b []byte) []byte { b[0] = 'X'; return b },
		},
		{
			name:   "FlippedRecordByte",
			mutate: func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b },
		},
		{
			name:   "Truncated",
			mutate: func(b []byte) []byte { return b[:len(b)-2] },
		},
		{
			name:   "TooShort",
			mutate: func(b []byte) []byte { return b[:8] },
		},
		{
			// The header count is outside the checksum.
			name: "HugeRecordCount",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[0x08:], 0xFFFFFFFF)
				return b
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "corrupt.tdps")

			f, err := ps.OpenFile(path)
			require.NoError(t, err)
			_, err = f.Store(0x0065, []uint16{1, 2, 3})
			require.NoError(t, err)
			require.NoError(t, f.Close())

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			require.NoError(t, os.WriteFile(path, tt.mutate(data), 0o600))

			_, err = ps.OpenFile(path)
			require.ErrorIs(t, err, ps.ErrCorrupt)
		})
	}
}

func Test_File_Does_Not_Create_Image_When_Nothing_Is_Stored(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lazy.tdps")

	f, err := ps.OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}
