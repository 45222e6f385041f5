//go:build darwin

package local

import (
	"golang.org/x/sys/unix"

	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// statfsFromSystem queries the kernel for the filesystem holding root.
// Darwin's statfs carries no name-length field, so the POSIX NAME_MAX
// constant is reported.
func statfsFromSystem(root string) (*types.FSStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return nil, err
	}
	return &types.FSStats{
		BlockSize:   st.Bsize,
		Blocks:      st.Blocks,
		BlocksFree:  st.Bfree,
		BlocksAvail: st.Bavail,
		Files:       st.Files,
		FilesFree:   st.Ffree,
		NameMax:     fallbackNameMax,
	}, nil
}
