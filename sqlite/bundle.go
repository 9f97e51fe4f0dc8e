package sqlite

// Codes is the set of constants the storage worker needs for status
// translation. It travels in the init message so the worker never
// hardcodes engine values.
type Codes struct {
	OK              ResultCode `json:"ok"`
	IOErr           ResultCode `json:"ioerr"`
	NotFound        ResultCode `json:"notfound"`
	IOErrRead       ResultCode `json:"ioerr_read"`
	IOErrShortRead  ResultCode `json:"ioerr_short_read"`
	IOErrWrite      ResultCode `json:"ioerr_write"`
	IOErrTruncate   ResultCode `json:"ioerr_truncate"`
	IOErrDelete     ResultCode `json:"ioerr_delete"`
	IOErrAccess     ResultCode `json:"ioerr_access"`
	IOErrOpen       ResultCode `json:"ioerr_open"` // zero means IOErr
	OpenCreate      OpenFlag   `json:"open_create"`
	OpenReadOnly    OpenFlag   `json:"open_readonly"`
	OpenDeleteClose OpenFlag   `json:"open_deleteonclose"`
}

// DefaultCodes returns the engine's stock values.
func DefaultCodes() Codes {
	return Codes{
		OK:              OK,
		IOErr:           IOERR,
		NotFound:        NOTFOUND,
		IOErrRead:       IOERR_READ,
		IOErrShortRead:  IOERR_SHORT_READ,
		IOErrWrite:      IOERR_WRITE,
		IOErrTruncate:   IOERR_TRUNCATE,
		IOErrDelete:     IOERR_DELETE,
		IOErrAccess:     IOERR_ACCESS,
		OpenCreate:      OPEN_CREATE,
		OpenReadOnly:    OPEN_READONLY,
		OpenDeleteClose: OPEN_DELETEONCLOSE,
	}
}

// OpenErr is the code reported when xOpen fails.
func (c Codes) OpenErr() ResultCode {
	if c.IOErrOpen != 0 {
		return c.IOErrOpen
	}
	return c.IOErr
}

// Validate reports the first required code left at zero.
func (c Codes) Validate() (missing string, ok bool) {
	checks := []struct {
		name string
		v    int32
	}{
		{"ioerr", int32(c.IOErr)},
		{"notfound", int32(c.NotFound)},
		{"ioerr_read", int32(c.IOErrRead)},
		{"ioerr_short_read", int32(c.IOErrShortRead)},
		{"ioerr_write", int32(c.IOErrWrite)},
		{"ioerr_truncate", int32(c.IOErrTruncate)},
		{"ioerr_delete", int32(c.IOErrDelete)},
		{"ioerr_access", int32(c.IOErrAccess)},
		{"open_create", int32(c.OpenCreate)},
		{"open_readonly", int32(c.OpenReadOnly)},
		{"open_deleteonclose", int32(c.OpenDeleteClose)},
	}
	for _, ch := range checks {
		if ch.v == 0 {
			return ch.name, false
		}
	}
	return "", true
}
