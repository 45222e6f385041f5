//go:build linux

package local

import (
	"golang.org/x/sys/unix"

	"github.com/blueprintfs/blueprintfs/pkg/types"
)

// statfsFromSystem queries the kernel for the filesystem holding root.
func statfsFromSystem(root string) (*types.FSStats, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err != nil {
		return nil, err
	}
	nameMax := uint32(st.Namelen)
	if nameMax == 0 {
		nameMax = fallbackNameMax
	}
	return &types.FSStats{
		BlockSize:   uint32(st.Bsize),
		Blocks:      st.Blocks,
		BlocksFree:  st.Bfree,
		BlocksAvail: st.Bavail,
		Files:       st.Files,
		FilesFree:   st.Ffree,
		NameMax:     nameMax,
	}, nil
}
