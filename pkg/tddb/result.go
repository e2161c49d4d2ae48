package tddb

import (
	"errors"
	"fmt"
)

// ResultCode is the numeric result of a directory call, for callers that
// exchange status codes rather than Go errors.
type ResultCode uint8

// Result codes. The numbering is part of the persisted/wire contract of
// existing callers and must not change.
const (
	ResultSuccess ResultCode = iota
	ResultNoDevice
	ResultInvalidSupplier
	ResultInvalidKey
	ResultInvalidParams
	ResultSlotsExhausted
	ResultWriteFailed
	ResultReadFailed
	ResultDeleteFailed
	ResultTaskFailed
	ResultUpdateFailed
)

var resultNames = [...]string{
	ResultSuccess:         "success",
	ResultNoDevice:        "no device",
	ResultInvalidSupplier: "invalid supplier",
	ResultInvalidKey:      "invalid key",
	ResultInvalidParams:   "invalid params",
	ResultSlotsExhausted:  "slots exhausted",
	ResultWriteFailed:     "write failed",
	ResultReadFailed:      "read failed",
	ResultDeleteFailed:    "delete failed",
	ResultTaskFailed:      "task failed",
	ResultUpdateFailed:    "update failed",
}

func (r ResultCode) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}

	return fmt.Sprintf("result(%d)", uint8(r))
}

// resultOrder lists sentinels in the order they are matched. ErrFull is
// reported as slots exhausted because it only escapes WriteEntry that way.
var resultOrder = []struct {
	err  error
	code ResultCode
}{
	{ErrNoDevice, ResultNoDevice},
	{ErrInvalidSupplier, ResultInvalidSupplier},
	{ErrInvalidKey, ResultInvalidKey},
	{ErrInvalidParams, ResultInvalidParams},
	{ErrSlotsExhausted, ResultSlotsExhausted},
	{ErrFull, ResultSlotsExhausted},
	{ErrWriteFailed, ResultWriteFailed},
	{ErrReadFailed, ResultReadFailed},
	{ErrDeleteFailed, ResultDeleteFailed},
	{ErrTaskFailed, ResultTaskFailed},
	{ErrUpdateFailed, ResultUpdateFailed},
}

// Result maps err to its [ResultCode]. A nil error is [ResultSuccess];
// errors that carry no directory sentinel (including [ErrClosed]) map to
// [ResultTaskFailed].
func Result(err error) ResultCode {
	if err == nil {
		return ResultSuccess
	}

	for _, r := range resultOrder {
		if errors.Is(err, r.err) {
			return r.code
		}
	}

	return ResultTaskFailed
}
