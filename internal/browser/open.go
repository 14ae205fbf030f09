// Package browser opens rendered transcripts in the system browser.
package browser

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// Target turns a local file path into a file:// URL. URLs pass through.
func Target(pathOrURL string) (string, error) {
	if strings.Contains(pathOrURL, "://") {
		return pathOrURL, nil
	}
	abs, err := filepath.Abs(pathOrURL)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", pathOrURL, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func command(goos, url string) *exec.Cmd {
	switch goos {
	case "windows":
		return exec.Command("cmd", "/c", "start", "", url)
	case "darwin":
		return exec.Command("open", url)
	default: // linux + others
		return exec.Command("xdg-open", url)
	}
}

// Open opens a file path or URL in the system default browser without
// waiting for it to exit.
func Open(pathOrURL string) error {
	url, err := Target(pathOrURL)
	if err != nil {
		return err
	}
	if err := command(runtime.GOOS, url).Start(); err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	return nil
}
