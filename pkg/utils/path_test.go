package utils

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestValidateSegment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		segment     string
		wantErr     bool
		errContains string
	}{
		{
			name:    "plain name",
			segment: "finance",
		},
		{
			name:    "file name with extension",
			segment: "budget.txt",
		},
		{
			name:    "hidden names pass here",
			segment: ".blueprint",
		},
		{
			name:    "literal percent name",
			segment: "50%off",
		},
		{
			name:        "empty",
			segment:     "",
			wantErr:     true,
			errContains: "empty segment",
		},
		{
			name:        "dot",
			segment:     ".",
			wantErr:     true,
			errContains: "directory reference",
		},
		{
			name:        "parent reference",
			segment:     "..",
			wantErr:     true,
			errContains: "directory reference",
		},
		{
			name:        "embedded slash",
			segment:     "a/b",
			wantErr:     true,
			errContains: "separator",
		},
		{
			name:        "embedded backslash",
			segment:     `a\b`,
			wantErr:     true,
			errContains: "separator",
		},
		{
			name:        "drive prefix",
			segment:     "C:evil",
			wantErr:     true,
			errContains: "drive-prefixed",
		},
		{
			name:        "encoded parent reference",
			segment:     "%2e%2e",
			wantErr:     true,
			errContains: "encoded traversal",
		},
		{
			name:        "encoded slash",
			segment:     "a%2fb",
			wantErr:     true,
			errContains: "encoded traversal",
		},
		{
			name:        "encoded backslash",
			segment:     "a%5cb",
			wantErr:     true,
			errContains: "encoded traversal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSegment(tt.segment)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSegment(%q) error = %v, wantErr %v", tt.segment, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestSplitPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr bool
	}{
		{name: "empty", path: "", want: nil},
		{name: "root", path: "/", want: nil},
		{name: "leading slash", path: "/projects/alpha", want: []string{"projects", "alpha"}},
		{name: "trailing slash", path: "projects/alpha/", want: []string{"projects", "alpha"}},
		{name: "plain relative", path: "finance/budget.txt", want: []string{"finance", "budget.txt"}},
		{name: "empty interior segment", path: "a//b", wantErr: true},
		{name: "parent segment", path: "a/../b", wantErr: true},
		{name: "dot segment", path: "a/./b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SplitPath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SplitPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
			if err == nil && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitPath(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestSecureJoin(t *testing.T) {
	t.Parallel()

	base := filepath.Join("/srv", "plate")

	t.Run("joins inside base", func(t *testing.T) {
		got, err := SecureJoin(base, "projects", "alpha")
		if err != nil {
			t.Fatalf("SecureJoin() error = %v", err)
		}
		want := filepath.Join(base, "projects", "alpha")
		if got != want {
			t.Errorf("SecureJoin() = %q, want %q", got, want)
		}
	})

	t.Run("base itself", func(t *testing.T) {
		got, err := SecureJoin(base)
		if err != nil {
			t.Fatalf("SecureJoin() error = %v", err)
		}
		if got != filepath.Clean(base) {
			t.Errorf("SecureJoin() = %q, want %q", got, filepath.Clean(base))
		}
	})

	t.Run("rejects escape", func(t *testing.T) {
		if _, err := SecureJoin(base, "..", "etc"); err == nil {
			t.Error("SecureJoin() accepted a traversal escape")
		}
	})

	t.Run("rejects empty base", func(t *testing.T) {
		if _, err := SecureJoin(""); err == nil {
			t.Error("SecureJoin() accepted an empty base")
		}
	})
}

func TestIsHidden(t *testing.T) {
	t.Parallel()

	if !IsHidden(".blueprintfs") {
		t.Error("IsHidden(.blueprintfs) = false")
	}
	if IsHidden("finance") {
		t.Error("IsHidden(finance) = true")
	}
}
