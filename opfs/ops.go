package opfs

import "sort"

// Op names a worker operation.
type Op string

const (
	OpMkdir     Op = "mkdir"
	OpXAccess   Op = "xAccess"
	OpXClose    Op = "xClose"
	OpXDelete   Op = "xDelete"
	OpXFileSize Op = "xFileSize"
	OpXOpen     Op = "xOpen"
	OpXRead     Op = "xRead"
	OpXSync     Op = "xSync"
	OpXTruncate Op = "xTruncate"
	OpXWrite    Op = "xWrite"
)

// AllOps lists every operation the worker implements, alphabetically.
var AllOps = []Op{
	OpMkdir,
	OpXAccess,
	OpXClose,
	OpXDelete,
	OpXFileSize,
	OpXOpen,
	OpXRead,
	OpXSync,
	OpXTruncate,
	OpXWrite,
}

// DefaultOpIDs numbers AllOps from 1. 0 is reserved for "no operation".
func DefaultOpIDs() map[string]int32 {
	ids := make(map[string]int32, len(AllOps))
	for i, op := range AllOps {
		ids[string(op)] = int32(i + 1)
	}
	return ids
}

// OpNames returns the names of ids sorted by ID.
func OpNames(ids map[string]int32) []string {
	names := make([]string, 0, len(ids))
	for name := range ids {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return ids[names[i]] < ids[names[j]] })
	return names
}
