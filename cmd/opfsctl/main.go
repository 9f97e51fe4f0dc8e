package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/wasm-sqlite/opfs"
	"github.com/wippyai/wasm-sqlite/storage"
	"github.com/wippyai/wasm-sqlite/storage/localfs"
	"github.com/wippyai/wasm-sqlite/storage/memfs"
	"github.com/wippyai/wasm-sqlite/vfs"
)

func main() {
	var (
		root        = flag.String("root", "", "Local directory to serve (empty for an in-memory store)")
		verbose     = flag.Int("v", 1, "Verbosity: 0 off, 1 errors, 2 warnings, 3 debug")
		uring       = flag.Bool("uring", false, "Use io_uring access handles (Linux, requires -root)")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Usage = usage
	flag.Parse()

	if !*interactive && flag.NArg() == 0 {
		usage()
		os.Exit(1)
	}

	log := newLogger(*verbose)
	defer log.Sync()

	v, err := install(*root, *uring, *verbose, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *interactive {
		err = runInteractive(v, describe(*root))
	} else {
		err = run(context.Background(), v, flag.Args())
	}
	if cerr := v.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: opfsctl [-root dir] [-v n] [-uring] <command> [args...]")
	fmt.Fprintln(os.Stderr, "       opfsctl [-root dir] -i  (interactive mode)")
	fmt.Fprintln(os.Stderr, "\nCommands:")
	for _, c := range commands {
		var params []string
		for _, p := range c.params {
			if p.def != "" {
				params = append(params, "["+p.name+"]")
			} else {
				params = append(params, "<"+p.name+">")
			}
		}
		fmt.Fprintf(os.Stderr, "  %-8s %-24s %s\n", c.name, strings.Join(params, " "), c.help)
	}
	fmt.Fprintln(os.Stderr, "\nFlags:")
	flag.PrintDefaults()
}

func newLogger(verbose int) *zap.Logger {
	if verbose <= 0 {
		return zap.NewNop()
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return opfs.LoggerForVerbosity(log, verbose)
}

func install(root string, uring bool, verbose int, log *zap.Logger) (*vfs.VFS, error) {
	var backend storage.Backend
	if root == "" {
		if uring {
			return nil, fmt.Errorf("-uring requires -root")
		}
		backend = memfs.New()
	} else {
		opts := []localfs.Option{localfs.WithLogger(log)}
		if uring {
			opts = append(opts, localfs.WithIOUring(64))
		}
		fs, err := localfs.New(root, opts...)
		if err != nil {
			return nil, err
		}
		backend = fs
	}
	if verbose <= 0 {
		verbose = -1
	}
	return vfs.Install(context.Background(), backend, &vfs.Config{
		Logger:  log,
		Verbose: verbose,
	})
}

func describe(root string) string {
	if root == "" {
		return "in-memory"
	}
	return root
}

func run(ctx context.Context, v *vfs.VFS, argv []string) error {
	c, ok := findCommand(argv[0])
	if !ok {
		return fmt.Errorf("unknown command %q", argv[0])
	}
	raw := argv[1:]
	if c.name == "rm" && len(raw) > 0 && raw[0] == "-r" {
		raw = append(raw[1:min(len(raw), 2)], "true")
		if len(raw) == 1 {
			raw = []string{"", "true"}
		}
	}
	args, err := c.parseArgs(raw)
	if err != nil {
		return err
	}
	out, err := c.run(ctx, v, args)
	if err != nil {
		return err
	}
	if out != "" {
		fmt.Print(out)
		if !strings.HasSuffix(out, "\n") && term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Println()
		}
	}
	return nil
}
