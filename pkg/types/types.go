package types

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Zone identifies which part of the overlay namespace a path belongs to.
type Zone int

const (
	// ZoneRoot is the synthetic mount root.
	ZoneRoot Zone = iota

	// ZoneProjectList is the synthetic directory listing all projects.
	ZoneProjectList

	// ZoneViewport is the read-only window onto a project's potential
	// tree; nothing below it can be materialized.
	ZoneViewport

	// ZoneProjectRelative is an ordinary path inside a project, subject
	// to the virtual/physical merge.
	ZoneProjectRelative
)

// String returns the zone name used in logs and metrics labels.
func (z Zone) String() string {
	switch z {
	case ZoneRoot:
		return "root"
	case ZoneProjectList:
		return "project-list"
	case ZoneViewport:
		return "viewport"
	case ZoneProjectRelative:
		return "project-relative"
	default:
		return "unknown"
	}
}

// Segment is one path element of a classified project-relative path.
// Virtual is true when no physical entry of this name exists at this depth
// and the potential tree declares the name.
type Segment struct {
	Name    string
	Virtual bool
}

// Classification is the stateless result of resolving one caller path.
// It is recomputed per call and never persisted.
type Classification struct {
	Zone    Zone
	Project string
	// Rel is the remaining relative path: project-relative for
	// ZoneProjectRelative, tree-relative for ZoneViewport, empty
	// otherwise. Always slash-separated and clean.
	Rel      string
	Segments []Segment
}

// AnyVirtual reports whether any segment is still unmaterialized.
func (c Classification) AnyVirtual() bool {
	for _, s := range c.Segments {
		if s.Virtual {
			return true
		}
	}
	return false
}

// LeafVirtual reports whether the final segment is still unmaterialized.
func (c Classification) LeafVirtual() bool {
	if len(c.Segments) == 0 {
		return false
	}
	return c.Segments[len(c.Segments)-1].Virtual
}

// AncestorVirtual reports whether a segment strictly above the leaf is
// still unmaterialized. A file cannot exist below such a segment.
func (c Classification) AncestorVirtual() bool {
	for i := 0; i < len(c.Segments)-1; i++ {
		if c.Segments[i].Virtual {
			return true
		}
	}
	return false
}

// InheritMode controls how a named configuration section (a template
// reference, typically) behaves across potential-tree rebuilds.
type InheritMode int

const (
	// InheritDynamic rescans the template on every rebuild. Default.
	InheritDynamic InheritMode = iota

	// InheritFixed scans the template once and reuses the snapshot.
	InheritFixed

	// InheritExcluded skips the template entirely.
	InheritExcluded
)

// String returns the mode name as it appears in configuration.
func (m InheritMode) String() string {
	switch m {
	case InheritDynamic:
		return "dynamic"
	case InheritFixed:
		return "fixed"
	case InheritExcluded:
		return "excluded"
	default:
		return "unknown"
	}
}

// ParseInheritMode parses a configuration mode name. Unspecified (empty)
// defaults to dynamic.
func ParseInheritMode(s string) (InheritMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dynamic":
		return InheritDynamic, nil
	case "fixed", "fix":
		return InheritFixed, nil
	case "excluded", "exclude":
		return InheritExcluded, nil
	default:
		return InheritDynamic, fmt.Errorf("invalid inherit mode: %q", s)
	}
}

// TemplateRef names one template declared by a project together with its
// rebuild behavior.
type TemplateRef struct {
	ID   string
	Mode InheritMode
}

// ProjectRoot anchors one merged potential tree and one physical subtree.
// Discovered once per session by marker walk-up; immutable until an
// explicit reload.
type ProjectRoot struct {
	// Name is the project identifier as it appears under the collection.
	Name string
	// Path is the absolute physical directory of the project.
	Path string
	// Templates is the ordered list of template references.
	Templates []TemplateRef
}

// EntryInfo is the physical metadata the store reports for one entry.
type EntryInfo struct {
	Name    string
	Size    int64
	Mode    os.FileMode
	ModTime time.Time
	IsDir   bool
}

// FSStats carries filesystem-level statistics for statfs.
type FSStats struct {
	BlockSize   uint32
	Blocks      uint64
	BlocksFree  uint64
	BlocksAvail uint64
	Files       uint64
	FilesFree   uint64
	NameMax     uint32
}

// MemoStats reports memo effectiveness for monitoring.
type MemoStats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Entries   int    `json:"entries"`
	Evictions uint64 `json:"evictions"`
}
