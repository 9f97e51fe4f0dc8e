package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseStorage,
				Kind:   KindIO,
				Op:     "xTruncate",
				Path:   []string{"db", "main.db"},
				Detail: "read-only handle",
			},
			contains: []string{"[storage]", "io", "xTruncate", "db/main.db", "read-only handle"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseS11n,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[s11n]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseShm,
				Kind:   KindAllocation,
				Detail: "mmap failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[shm]", "allocation", "mmap failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseStorage,
		Kind:  KindIO,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should reach the cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{Phase: PhaseS11n, Kind: KindInvalidData, Detail: "bad tag"}

	if !err.Is(&Error{Phase: PhaseS11n, Kind: KindInvalidData}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseVFS, Kind: KindInvalidData}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseS11n, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseStorage, KindIO).
		Op("xWrite").
		Path("a", "b").
		Value(42).
		Cause(cause).
		Detail("wrote %d of %d", 1, 2).
		Build()

	if err.Phase != PhaseStorage || err.Kind != KindIO {
		t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
	}
	if err.Op != "xWrite" {
		t.Errorf("Op = %q", err.Op)
	}
	if len(err.Path) != 2 || err.Path[0] != "a" || err.Path[1] != "b" {
		t.Errorf("Path = %v, want [a b]", err.Path)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v", err.Cause)
	}
	if err.Detail != "wrote 1 of 2" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidTag", func(t *testing.T) {
		err := InvalidTag(9, 2)
		if err.Phase != PhaseS11n || err.Kind != KindInvalidData {
			t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
		}
		if !strings.Contains(err.Detail, "9") || !strings.Contains(err.Detail, "2") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("IO", func(t *testing.T) {
		err := IO("xRead", "/x/y.db", errors.New("boom"))
		if err.Kind != KindIO || err.Op != "xRead" {
			t.Errorf("Kind/Op = %v/%v", err.Kind, err.Op)
		}
		if len(err.Path) != 2 || err.Path[1] != "y.db" {
			t.Errorf("Path = %v", err.Path)
		}
	})

	t.Run("IO without path", func(t *testing.T) {
		err := IO("xSync", "", nil)
		if err.Path != nil {
			t.Errorf("Path = %v, want nil", err.Path)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseShm, 4096, nil)
		if err.Kind != KindAllocation || !strings.Contains(err.Detail, "4096") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseS11n, 10, 5)
		if err.Kind != KindOutOfBounds || err.Value != 10 {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if NotFound(PhaseVFS, "file 3").Kind != KindNotFound {
			t.Error("wrong kind")
		}
	})

	t.Run("Closed", func(t *testing.T) {
		if !strings.Contains(Closed(PhaseVFS, "vfs").Error(), "closed") {
			t.Error("missing closed text")
		}
	})
}

func TestMissingOpsError(t *testing.T) {
	err := &MissingOpsError{Ops: []string{"xOpen", "xRead"}}
	if !strings.Contains(err.Error(), "xOpen, xRead") {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, &Error{Phase: PhaseInit, Kind: KindInvalidInput}) {
		t.Error("should match init invalid input")
	}

	single := &MissingOpsError{Ops: []string{"mkdir"}}
	if single.Error() != "missing operation ID: mkdir" {
		t.Errorf("Error() = %q", single.Error())
	}
}

func TestIsAs(t *testing.T) {
	sentinel := &Error{Phase: PhaseStorage, Kind: KindNotFound}
	err := IO("xOpen", "/a", errors.New("gone"))
	err.Kind = KindNotFound

	if !Is(err, sentinel) {
		t.Error("Is should match by phase and kind")
	}
	var target *Error
	if !As(err, &target) || target.Op != "xOpen" {
		t.Errorf("As = %v", target)
	}
}
