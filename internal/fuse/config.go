package fuse

import "time"

// attrBlockSize is the block size reported for individual entries.
const attrBlockSize = 4096

// safeInt64ToUint64 safely converts int64 to uint64, preventing negative values
func safeInt64ToUint64(i int64) uint64 {
	if i < 0 {
		return 0
	}
	return uint64(i)
}

// safeIntToUint32 safely converts int to uint32, preventing overflow
func safeIntToUint32(i int) uint32 {
	if i < 0 {
		return 0
	}
	if i > 0xFFFFFFFF {
		return 0xFFFFFFFF
	}
	return uint32(i)
}

// MountConfig contains mount-specific configuration.
type MountConfig struct {
	// Point is the directory the filesystem is mounted on.
	Point string `yaml:"point"`

	FSName  string `yaml:"fsname"`
	Subtype string `yaml:"subtype"`

	ReadOnly   bool `yaml:"read_only"`
	AllowOther bool `yaml:"allow_other"`
	AllowRoot  bool `yaml:"allow_root"`
	Debug      bool `yaml:"debug"`

	MaxWrite     int           `yaml:"max_write"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// DefaultMountConfig returns the mount defaults for a mount point. Attribute
// caching stays short because entries flip from virtual to physical on first
// write and stale kernel attributes would hide that.
func DefaultMountConfig(point string) *MountConfig {
	return &MountConfig{
		Point:        point,
		FSName:       "blueprintfs",
		Subtype:      "blueprintfs",
		MaxWrite:     128 * 1024,
		AttrTimeout:  time.Second,
		EntryTimeout: time.Second,
	}
}
