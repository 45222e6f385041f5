package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"syscall"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "op and path",
			err:  NotFound("getattr", "projects/alpha/missing"),
			want: "getattr projects/alpha/missing: NOT_FOUND",
		},
		{
			name: "op path and cause",
			err:  InvalidPath("classify", "a/../b", "parent directory segment"),
			want: "classify a/../b: INVALID_PATH: parent directory segment",
		},
		{
			name: "op only",
			err:  New(CodeIOFailure, "statfs", ""),
			want: "statfs: IO_FAILURE",
		},
		{
			name: "op and cause without path",
			err:  Wrap(CodeIOFailure, "scan", "", stderrors.New("device error")),
			want: "scan: IO_FAILURE: device error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	inner := NotFound("open", "projects/alpha/finance/budget.txt")
	wrapped := fmt.Errorf("operation failed: %w", inner)

	if !stderrors.Is(wrapped, &Error{Code: CodeNotFound}) {
		t.Error("errors.Is did not match wrapped NOT_FOUND")
	}
	if stderrors.Is(wrapped, &Error{Code: CodeAlreadyExists}) {
		t.Error("errors.Is matched a different code")
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Code
	}{
		{"nil", nil, ""},
		{"taxonomy", PermissionDenied("create", "p", "oracle veto"), CodePermissionDenied},
		{"wrapped taxonomy", fmt.Errorf("ctx: %w", AlreadyExists("mkdir", "p")), CodeAlreadyExists},
		{"foreign error", stderrors.New("boom"), CodeIOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFromStore(t *testing.T) {
	t.Parallel()

	if got := FromStore("stat", "p", nil); got != nil {
		t.Errorf("FromStore(nil) = %v, want nil", got)
	}
	if got := FromStore("stat", "p", fs.ErrNotExist); got.Code != CodeNotFound {
		t.Errorf("FromStore(ErrNotExist) code = %v, want %v", got.Code, CodeNotFound)
	}
	if got := FromStore("mkdir", "p", fs.ErrExist); got.Code != CodeAlreadyExists {
		t.Errorf("FromStore(ErrExist) code = %v, want %v", got.Code, CodeAlreadyExists)
	}
	if got := FromStore("write", "p", syscall.ENOSPC); got.Code != CodeIOFailure {
		t.Errorf("FromStore(ENOSPC) code = %v, want %v", got.Code, CodeIOFailure)
	}
}

func TestToErrno(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"nil", nil, 0},
		{"invalid path", InvalidPath("classify", "../x", "traversal"), syscall.EINVAL},
		{"not found", NotFound("getattr", "x"), syscall.ENOENT},
		{"already exists", AlreadyExists("create", "x"), syscall.EEXIST},
		{"permission denied", PermissionDenied("unlink", "x", "virtual entry"), syscall.EACCES},
		{"io failure without errno", IOFailure("read", "x", stderrors.New("boom")), syscall.EIO},
		{"io failure keeps wrapped errno", IOFailure("rmdir", "x", syscall.ENOTEMPTY), syscall.ENOTEMPTY},
		{"io failure keeps EACCES", IOFailure("mkdir", "x", syscall.EACCES), syscall.EACCES},
		{"bare errno", syscall.ENOSPC, syscall.ENOSPC},
		{"foreign error", stderrors.New("boom"), syscall.EIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToErrno(tt.err); got != tt.want {
				t.Errorf("ToErrno() = %v, want %v", got, tt.want)
			}
		})
	}
}
