package browser

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestTarget(t *testing.T) {
	got, err := Target("http://127.0.0.1:8000/api/v1/chat/transcript/s1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "http://127.0.0.1:8000/api/v1/chat/transcript/s1" {
		t.Errorf("url changed: %s", got)
	}

	got, err = Target("session.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "file://") || !strings.HasSuffix(got, "/session.html") {
		t.Errorf("Target(session.html) = %s", got)
	}
	abs, _ := filepath.Abs("session.html")
	if !strings.HasSuffix(got, filepath.ToSlash(abs)) {
		t.Errorf("Target should be absolute, got %s", got)
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"windows", "cmd"},
		{"darwin", "open"},
		{"linux", "xdg-open"},
		{"freebsd", "xdg-open"},
	}
	for _, tt := range tests {
		cmd := command(tt.goos, "file:///tmp/x.html")
		if filepath.Base(cmd.Args[0]) != tt.want {
			t.Errorf("%s: command = %v, want %s", tt.goos, cmd.Args, tt.want)
		}
		if cmd.Args[len(cmd.Args)-1] != "file:///tmp/x.html" {
			t.Errorf("%s: url must be the last argument, got %v", tt.goos, cmd.Args)
		}
	}
}
