package constants

import "testing"

func TestIsBookkeepingFile(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "status at root", path: ".lane-status.json", want: true},
		{name: "notes in subdir", path: "docs/LANE_NOTES.md", want: true},
		{name: "progress nested", path: "a/b/PROGRESS.md", want: true},
		{name: "lane dir entry", path: ".lane", want: true},
		{name: "regular source", path: "src/app.ts", want: false},
		{name: "similar name", path: "src/PROGRESS.md.bak", want: false},
		{name: "empty", path: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBookkeepingFile(tt.path); got != tt.want {
				t.Errorf("IsBookkeepingFile(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestFormatLaneForCommit(t *testing.T) {
	tests := []struct {
		laneID string
		want   string
	}{
		{"api", "api"},
		{"api-auth", "api auth"},
		{"api_auth-flow", "api auth flow"},
		{"--weird__id--", "weird id"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.laneID, func(t *testing.T) {
			if got := FormatLaneForCommit(tt.laneID); got != tt.want {
				t.Errorf("FormatLaneForCommit(%q) = %q, want %q", tt.laneID, got, tt.want)
			}
		})
	}
}
