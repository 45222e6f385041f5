//go:build !linux && !darwin

package local

import (
	"errors"

	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// statfsFromSystem has no host call on this platform; the caller falls back
// to synthetic statistics.
func statfsFromSystem(root string) (*types.FSStats, error) {
	return nil, errors.New("statfs not supported on this platform")
}
