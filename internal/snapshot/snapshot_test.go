package snapshot

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	s := New(Config{})
	if s.width != 420 || s.height != 760 {
		t.Errorf("size: %dx%d", s.width, s.height)
	}
	if s.timeout != 30*time.Second {
		t.Errorf("timeout: %v", s.timeout)
	}
	if s.logger == nil {
		t.Error("expected default logger")
	}

	s = New(Config{Width: 300, Height: 500, Timeout: time.Second, ChromePath: "/opt/chrome"})
	if s.width != 300 || s.height != 500 || s.timeout != time.Second || s.chromePath != "/opt/chrome" {
		t.Errorf("explicit config not kept: %+v", s)
	}
}

func TestFileURL(t *testing.T) {
	tests := map[string]string{
		"/tmp/page.html":         "file:///tmp/page.html",
		"/tmp/with space/p.html": "file:///tmp/with%20space/p.html",
	}
	for path, want := range tests {
		if got := fileURL(path); got != want {
			t.Errorf("fileURL(%q): got %q, want %q", path, got, want)
		}
	}
}

func TestWriteTemp(t *testing.T) {
	path, cleanup, err := writeTemp("<html>hi</html>")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "<html>hi</html>" {
		t.Errorf("content: %q", data)
	}
	cleanup()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("temp page not removed: %v", err)
	}
}

func TestCapture_EmptyPage(t *testing.T) {
	if _, err := New(Config{}).Capture(context.Background(), ""); err == nil {
		t.Error("expected error for empty page")
	}
}
