package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wasm-sqlite/sqlite"
	"github.com/wippyai/wasm-sqlite/vfs"
)

type paramInfo struct {
	name    string
	witType wit.Type
	// def is used when the argument is omitted; empty means required.
	def string
}

type command struct {
	name       string
	help       string
	resultType string
	params     []paramInfo
	run        func(ctx context.Context, v *vfs.VFS, args []any) (string, error)
}

var commands = []command{
	{
		name:   "mkdir",
		help:   "create a directory and its parents",
		params: []paramInfo{{name: "name", witType: wit.String{}}},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			return "", v.MkdirAll(args[0].(string))
		},
	},
	{
		name: "rm",
		help: "remove a file or directory",
		params: []paramInfo{
			{name: "name", witType: wit.String{}},
			{name: "recursive", witType: wit.Bool{}, def: "false"},
		},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			return "", v.Unlink(args[0].(string), args[1].(bool))
		},
	},
	{
		name:       "exists",
		help:       "report whether an entry exists",
		resultType: "bool",
		params:     []paramInfo{{name: "name", witType: wit.String{}}},
		run: func(ctx context.Context, v *vfs.VFS, args []any) (string, error) {
			ok, err := v.EntryExists(ctx, args[0].(string))
			return strconv.FormatBool(ok), err
		},
	},
	{
		name: "put",
		help: "write data to a file; @path reads a local file, - reads stdin",
		params: []paramInfo{
			{name: "name", witType: wit.String{}},
			{name: "data", witType: wit.String{}},
		},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			data, err := loadData(args[1].(string))
			if err != nil {
				return "", err
			}
			if err := v.CreateFile(args[0].(string), data, -1); err != nil {
				return "", err
			}
			return fmt.Sprintf("%d bytes", len(data)), nil
		},
	},
	{
		name:       "cat",
		help:       "print a file",
		resultType: "string",
		params:     []paramInfo{{name: "name", witType: wit.String{}}},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			data, err := v.Export(args[0].(string))
			return string(data), err
		},
	},
	{
		name:       "sum",
		help:       "print the xxhash digest of a file",
		resultType: "u64",
		params:     []paramInfo{{name: "name", witType: wit.String{}}},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			sum, err := v.Digest(args[0].(string))
			return fmt.Sprintf("%016x", sum), err
		},
	},
	{
		name:       "size",
		help:       "print the size of a file",
		resultType: "s64",
		params:     []paramInfo{{name: "name", witType: wit.String{}}},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			f, err := v.OpenFile(args[0].(string), sqlite.OPEN_READONLY)
			if err != nil {
				return "", err
			}
			defer f.Close()
			size, err := f.Size()
			return strconv.FormatInt(size, 10), err
		},
	},
	{
		name:       "bench",
		help:       "write then read back pages of a scratch database",
		resultType: "string",
		params: []paramInfo{
			{name: "pages", witType: wit.U32{}, def: "1000"},
			{name: "page_size", witType: wit.U32{}, def: "4096"},
		},
		run: func(_ context.Context, v *vfs.VFS, args []any) (string, error) {
			return bench(v, int(args[0].(uint32)), int(args[1].(uint32)))
		},
	},
	{
		name:       "metrics",
		help:       "print operation counters collected so far",
		resultType: "string",
		run: func(_ context.Context, v *vfs.VFS, _ []any) (string, error) {
			out, err := json.MarshalIndent(struct {
				Sync   map[string]vfs.OpStats `json:"sync"`
				Worker any                    `json:"worker"`
			}{v.Stats(), v.WorkerMetrics()}, "", "  ")
			return string(out), err
		},
	},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// parseArgs converts raw strings to the command's parameter types.
func (c command) parseArgs(raw []string) ([]any, error) {
	if len(raw) > len(c.params) {
		return nil, fmt.Errorf("%s takes at most %d arguments", c.name, len(c.params))
	}
	args := make([]any, len(c.params))
	for i, p := range c.params {
		s := p.def
		if i < len(raw) && raw[i] != "" {
			s = raw[i]
		}
		if s == "" {
			return nil, fmt.Errorf("%s: missing %s", c.name, p.name)
		}
		v, err := convertArg(s, p.witType)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", c.name, p.name, err)
		}
		args[i] = v
	}
	return args, nil
}

func convertArg(value string, t wit.Type) (any, error) {
	switch t.(type) {
	case wit.String:
		return value, nil
	case wit.U32:
		v, err := strconv.ParseUint(value, 10, 32)
		return uint32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 10, 64)
	case wit.Bool:
		return strconv.ParseBool(value)
	default:
		return value, nil
	}
}

func loadData(arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(os.Stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}

func bench(v *vfs.VFS, pages, pageSize int) (string, error) {
	if pages <= 0 || pageSize <= 0 {
		return "", fmt.Errorf("pages and page_size must be positive")
	}
	name := "/bench/" + vfs.RandomFilename(0) + ".db"
	f, err := v.OpenFile(name, sqlite.OPEN_READWRITE|sqlite.OPEN_CREATE|sqlite.OPEN_DELETEONCLOSE)
	if err != nil {
		return "", err
	}
	defer f.Close()

	rng := rand.New(rand.NewChaCha8([32]byte{}))
	page := make([]byte, pageSize)
	for i := range page {
		page[i] = byte(rng.Uint32())
	}

	start := time.Now()
	for i := range pages {
		if _, err := f.WriteAt(page, int64(i)*int64(pageSize)); err != nil {
			return "", err
		}
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	writeTime := time.Since(start)

	start = time.Now()
	for range pages {
		if _, err := f.ReadAt(page, int64(rng.IntN(pages))*int64(pageSize)); err != nil {
			return "", err
		}
	}
	readTime := time.Since(start)

	total := float64(pages*pageSize) / (1 << 20)
	return fmt.Sprintf("%d pages of %d bytes\nwrite: %v (%.1f MiB/s)\nread:  %v (%.1f MiB/s)",
		pages, pageSize,
		writeTime.Round(time.Microsecond), total/writeTime.Seconds(),
		readTime.Round(time.Microsecond), total/readTime.Seconds()), nil
}
