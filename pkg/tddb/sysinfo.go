package tddb

import (
	"encoding/binary"
	"fmt"
)

// SystemInfo is the directory-wide security record.
type SystemInfo struct {
	// ER is the encryption root.
	ER [8]uint16

	// IR is the identity root.
	IR [8]uint16

	SignCounter uint32
	Div         uint16

	// Hash is the GATT database hash.
	Hash [16]byte
}

// systemRecordWords is the encoded size of the system record:
// version (2), ER (8), IR (8), sign counter (2), div (1), hash (8).
const systemRecordWords = 29

func encodeSystemRecord(version Features, info *SystemInfo) []uint16 {
	w := make([]uint16, 0, systemRecordWords)

	w = append(w, uint16(version), uint16(version>>16))
	w = append(w, info.ER[:]...)
	w = append(w, info.IR[:]...)
	w = append(w, uint16(info.SignCounter), uint16(info.SignCounter>>16))
	w = append(w, info.Div)

	for i := 0; i < len(info.Hash); i += 2 {
		w = append(w, binary.LittleEndian.Uint16(info.Hash[i:]))
	}

	return w
}

func decodeSystemRecord(w []uint16) (Features, SystemInfo, error) {
	if len(w) != systemRecordWords {
		return 0, SystemInfo{}, fmt.Errorf("decode system record: %d words, want %d: %w",
			len(w), systemRecordWords, ErrReadFailed)
	}

	var info SystemInfo

	version := Features(w[0]) | Features(w[1])<<16
	copy(info.ER[:], w[2:10])
	copy(info.IR[:], w[10:18])
	info.SignCounter = uint32(w[18]) | uint32(w[19])<<16
	info.Div = w[20]

	for i, word := range w[21:29] {
		binary.LittleEndian.PutUint16(info.Hash[2*i:], word)
	}

	return version, info, nil
}

// readSystemRecord returns the persisted version and system info.
func (d *Directory) readSystemRecord() (Features, SystemInfo, error) {
	w := make([]uint16, systemRecordWords+1)

	n, err := d.store.Retrieve(KeySystem, w)
	if err != nil {
		return 0, SystemInfo{}, fmt.Errorf("read system record: %w", err)
	}

	if n == 0 {
		return 0, SystemInfo{}, fmt.Errorf("read system record: %w", errNoRecord)
	}

	return decodeSystemRecord(w[:n])
}

func (d *Directory) writeSystemRecord(version Features, info *SystemInfo) error {
	w := encodeSystemRecord(version, info)

	n, err := d.store.Store(KeySystem, w)
	if err != nil {
		return fmt.Errorf("write system record: %w", err)
	}

	if n != len(w) {
		return fmt.Errorf("write system record: wrote %d of %d words", n, len(w))
	}

	return nil
}

// SetSystemInfo persists info together with the directory's version.
func (d *Directory) SetSystemInfo(info SystemInfo) error {
	err := d.lock()
	if err != nil {
		return err
	}
	defer d.mu.Unlock()

	err = d.writeSystemRecord(d.version, &info)
	if err != nil {
		d.logger.Error("tddb set system info failed", "error", err)

		return storeErr(ErrWriteFailed, err)
	}

	return nil
}

// GetSystemInfo returns the persisted system info. A missing or
// wrong-sized record is [ErrReadFailed].
func (d *Directory) GetSystemInfo() (SystemInfo, error) {
	err := d.lock()
	if err != nil {
		return SystemInfo{}, err
	}
	defer d.mu.Unlock()

	_, info, err := d.readSystemRecord()
	if err != nil {
		d.logger.Error("tddb get system info failed", "error", err)

		return SystemInfo{}, storeErr(ErrReadFailed, err)
	}

	return info, nil
}
