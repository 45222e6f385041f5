package types

import "testing"

func TestZoneString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		zone Zone
		want string
	}{
		{ZoneRoot, "root"},
		{ZoneProjectList, "project-list"},
		{ZoneViewport, "viewport"},
		{ZoneProjectRelative, "project-relative"},
		{Zone(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.zone.String(); got != tt.want {
			t.Errorf("Zone(%d).String() = %q, want %q", tt.zone, got, tt.want)
		}
	}
}

func TestParseInheritMode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    InheritMode
		wantErr bool
	}{
		{"", InheritDynamic, false},
		{"dynamic", InheritDynamic, false},
		{"Fixed", InheritFixed, false},
		{"fix", InheritFixed, false},
		{"excluded", InheritExcluded, false},
		{" exclude ", InheritExcluded, false},
		{"sometimes", InheritDynamic, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInheritMode(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseInheritMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseInheritMode(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassificationHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		segments     []Segment
		anyVirtual   bool
		leafVirtual  bool
		ancsVirtual  bool
	}{
		{
			name:     "empty",
			segments: nil,
		},
		{
			name:     "fully physical",
			segments: []Segment{{Name: "finance"}, {Name: "budget.txt"}},
		},
		{
			name:        "virtual leaf",
			segments:    []Segment{{Name: "finance"}, {Name: "reports", Virtual: true}},
			anyVirtual:  true,
			leafVirtual: true,
		},
		{
			name:        "virtual ancestor",
			segments:    []Segment{{Name: "finance", Virtual: true}, {Name: "budget.txt"}},
			anyVirtual:  true,
			ancsVirtual: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classification{Zone: ZoneProjectRelative, Segments: tt.segments}
			if got := c.AnyVirtual(); got != tt.anyVirtual {
				t.Errorf("AnyVirtual() = %v, want %v", got, tt.anyVirtual)
			}
			if got := c.LeafVirtual(); got != tt.leafVirtual {
				t.Errorf("LeafVirtual() = %v, want %v", got, tt.leafVirtual)
			}
			if got := c.AncestorVirtual(); got != tt.ancsVirtual {
				t.Errorf("AncestorVirtual() = %v, want %v", got, tt.ancsVirtual)
			}
		})
	}
}
