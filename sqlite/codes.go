// Package sqlite holds the database engine's result codes and VFS flag
// constants that cross the storage bridge.
package sqlite

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ResultCode is a primary or extended engine result code.
type ResultCode int32

// Primary result codes.
const (
	OK       ResultCode = 0
	ERROR    ResultCode = 1
	BUSY     ResultCode = 5
	LOCKED   ResultCode = 6
	NOMEM    ResultCode = 7
	READONLY ResultCode = 8
	IOERR    ResultCode = 10
	CORRUPT  ResultCode = 11
	NOTFOUND ResultCode = 12
	FULL     ResultCode = 13
	CANTOPEN ResultCode = 14
	MISUSE   ResultCode = 21
	RANGE    ResultCode = 25
)

// Extended I/O error codes.
const (
	IOERR_READ              = IOERR | 1<<8
	IOERR_SHORT_READ        = IOERR | 2<<8
	IOERR_WRITE             = IOERR | 3<<8
	IOERR_FSYNC             = IOERR | 4<<8
	IOERR_DIR_FSYNC         = IOERR | 5<<8
	IOERR_TRUNCATE          = IOERR | 6<<8
	IOERR_FSTAT             = IOERR | 7<<8
	IOERR_UNLOCK            = IOERR | 8<<8
	IOERR_RDLOCK            = IOERR | 9<<8
	IOERR_DELETE            = IOERR | 10<<8
	IOERR_NOMEM             = IOERR | 12<<8
	IOERR_ACCESS            = IOERR | 13<<8
	IOERR_CHECKRESERVEDLOCK = IOERR | 14<<8
	IOERR_LOCK              = IOERR | 15<<8
	IOERR_CLOSE             = IOERR | 16<<8
	IOERR_DELETE_NOENT      = IOERR | 23<<8
)

var resultNames = map[ResultCode]string{
	OK:                      "SQLITE_OK",
	ERROR:                   "SQLITE_ERROR",
	BUSY:                    "SQLITE_BUSY",
	LOCKED:                  "SQLITE_LOCKED",
	NOMEM:                   "SQLITE_NOMEM",
	READONLY:                "SQLITE_READONLY",
	IOERR:                   "SQLITE_IOERR",
	CORRUPT:                 "SQLITE_CORRUPT",
	NOTFOUND:                "SQLITE_NOTFOUND",
	FULL:                    "SQLITE_FULL",
	CANTOPEN:                "SQLITE_CANTOPEN",
	MISUSE:                  "SQLITE_MISUSE",
	RANGE:                   "SQLITE_RANGE",
	IOERR_READ:              "SQLITE_IOERR_READ",
	IOERR_SHORT_READ:        "SQLITE_IOERR_SHORT_READ",
	IOERR_WRITE:             "SQLITE_IOERR_WRITE",
	IOERR_FSYNC:             "SQLITE_IOERR_FSYNC",
	IOERR_DIR_FSYNC:         "SQLITE_IOERR_DIR_FSYNC",
	IOERR_TRUNCATE:          "SQLITE_IOERR_TRUNCATE",
	IOERR_FSTAT:             "SQLITE_IOERR_FSTAT",
	IOERR_UNLOCK:            "SQLITE_IOERR_UNLOCK",
	IOERR_RDLOCK:            "SQLITE_IOERR_RDLOCK",
	IOERR_DELETE:            "SQLITE_IOERR_DELETE",
	IOERR_NOMEM:             "SQLITE_IOERR_NOMEM",
	IOERR_ACCESS:            "SQLITE_IOERR_ACCESS",
	IOERR_CHECKRESERVEDLOCK: "SQLITE_IOERR_CHECKRESERVEDLOCK",
	IOERR_LOCK:              "SQLITE_IOERR_LOCK",
	IOERR_CLOSE:             "SQLITE_IOERR_CLOSE",
	IOERR_DELETE_NOENT:      "SQLITE_IOERR_DELETE_NOENT",
}

// String returns the symbolic name, or the numeric value for unknown codes.
func (c ResultCode) String() string {
	if s, ok := resultNames[c]; ok {
		return s
	}
	return "SQLITE_" + strconv.Itoa(int(c))
}

// Primary strips the extended bits.
func (c ResultCode) Primary() ResultCode {
	return c & 0xff
}

// Error makes a non-OK code usable as a Go error.
func (c ResultCode) Error() string {
	return c.String()
}

// Err returns nil for OK and the code itself otherwise.
func (c ResultCode) Err() error {
	if c == OK {
		return nil
	}
	return c
}

// ParseResultCode accepts a symbolic name (with or without the SQLITE_ prefix) or a number.
func ParseResultCode(s string) (ResultCode, error) {
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return ResultCode(n), nil
	}
	for c, name := range resultNames {
		if name == s || name == "SQLITE_"+s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown result code %q", s)
}

// MarshalJSON encodes the code by name.
func (c ResultCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a name or a number.
func (c *ResultCode) UnmarshalJSON(b []byte) error {
	var n int32
	if err := json.Unmarshal(b, &n); err == nil {
		*c = ResultCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseResultCode(s)
	if err != nil {
		return err
	}
	*c = v
	return nil
}
