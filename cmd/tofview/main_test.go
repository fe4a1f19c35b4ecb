package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/tofview/internal/camera"
)

func TestFlagDefaults(t *testing.T) {
	if *listen != ":8080" {
		t.Errorf("listen default = %q, want :8080", *listen)
	}
	if *cameraKind != "udp" {
		t.Errorf("camera default = %q, want udp", *cameraKind)
	}
	if *dbPath != "" {
		t.Errorf("db default = %q, want empty (journal off)", *dbPath)
	}
}

func TestNewOpener(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		dev     bool
		wantErr bool
		check   func(t *testing.T, v any)
	}{
		{name: "synthetic", kind: "synthetic", check: func(t *testing.T, v any) {
			if _, ok := v.(*camera.Synthetic); !ok {
				t.Errorf("got %T, want *camera.Synthetic", v)
			}
		}},
		{name: "dev overrides", kind: "udp", dev: true, check: func(t *testing.T, v any) {
			if _, ok := v.(*camera.Synthetic); !ok {
				t.Errorf("got %T, want *camera.Synthetic", v)
			}
		}},
		{name: "udp", kind: "udp", check: func(t *testing.T, v any) {
			if _, ok := v.(*camera.Network); !ok {
				t.Errorf("got %T, want *camera.Network", v)
			}
		}},
		{name: "pcap without file", kind: "pcap", wantErr: true},
		{name: "unknown", kind: "kinect", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := newOpener(tt.kind, tt.dev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, o)
			}
		})
	}
}

func TestUDPPort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":7600", 7600, false},
		{"127.0.0.1:9000", 9000, false},
		{"", 0, false},
		{"nonsense", 0, true},
	}
	for _, tt := range tests {
		got, err := udpPort(tt.addr)
		if (err != nil) != tt.wantErr {
			t.Errorf("udpPort(%q) err = %v, wantErr %v", tt.addr, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("udpPort(%q) = %d, want %d", tt.addr, got, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	tc, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\"): %v", err)
	}
	if tc.GetViewWidth() != 480 || tc.GetViewHeight() != 640 {
		t.Errorf("default view = %dx%d, want 480x640", tc.GetViewWidth(), tc.GetViewHeight())
	}

	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(`{"idle_timeout":"5s","dynamic_ranging":true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	tc, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig(%q): %v", path, err)
	}
	if !tc.GetDynamicRanging() {
		t.Error("dynamic_ranging not loaded")
	}
	if got := tc.GetIdleTimeout().String(); got != "5s" {
		t.Errorf("idle timeout = %s, want 5s", got)
	}
}
