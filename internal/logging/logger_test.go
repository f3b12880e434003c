package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", Config{}, false},
		{"json debug", Config{Level: "debug", Format: "json"}, false},
		{"console", Config{Level: "INFO", Format: "console"}, false},
		{"pretty", Config{Level: "warning", Format: "pretty"}, false},
		{"unknown format", Config{Format: "xml"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Error("New() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if root.Named("test") == nil {
				t.Error("Named() returned nil")
			}
		})
	}
}

func TestNormalizeLevel(t *testing.T) {
	if got := normalizeLevel(" Warning "); got == "" {
		t.Error("normalizeLevel() should accept warning")
	}
	if got := normalizeLevel("loud"); got != "" {
		t.Errorf("normalizeLevel(loud) = %q, want empty", got)
	}
}

func TestNilRootFallsBackToNop(t *testing.T) {
	var r *Root
	r.Named("x").Info("ignored", "k", "v")
}
