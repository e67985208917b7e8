package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/go-rod/rod/lib/launcher"
)

// ErrExecutableNotFound is returned when no Chrome or Chromium binary is found.
var ErrExecutableNotFound = errors.New("chrome/chromium executable not found: set CHROME_EXECUTABLE_PATH in .env")

var linuxExecutableNames = []string{
	"google-chrome",
	"google-chrome-stable",
	"chromium",
	"chromium-browser",
}

// Hooks for tests.
var (
	lookPath    = exec.LookPath
	rodLookPath = launcher.LookPath
	goos        = runtime.GOOS
)

// FindExecutable resolves the browser binary. A configured path must exist.
// Otherwise well-known install locations and PATH are searched, then the
// locations rod's launcher knows about.
func FindExecutable(configured string) (string, error) {
	if configured != "" {
		path, err := expandPath(configured)
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("configured CHROME_EXECUTABLE_PATH does not exist: %s", path)
		}
		return path, nil
	}

	for _, candidate := range platformCandidates() {
		if candidate == "" {
			continue
		}
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if goos != "windows" && goos != "darwin" {
		for _, name := range linuxExecutableNames {
			if path, err := lookPath(name); err == nil {
				return path, nil
			}
		}
	}

	if path, ok := rodLookPath(); ok {
		return path, nil
	}
	return "", ErrExecutableNotFound
}

func platformCandidates() []string {
	switch goos {
	case "windows":
		return []string{
			filepath.Join(os.Getenv("ProgramFiles"), `Google\Chrome\Application\chrome.exe`),
			filepath.Join(os.Getenv("ProgramFiles(x86)"), `Google\Chrome\Application\chrome.exe`),
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
			filepath.Join(os.Getenv("ProgramFiles"), `Chromium\Application\chrome.exe`),
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Chromium\Application\chrome.exe`),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	}
	return nil
}

// ManualStartHint returns a shell command that starts Chrome with remote
// debugging enabled on port.
func ManualStartHint(port int) string {
	switch goos {
	case "windows":
		return fmt.Sprintf(`chrome --remote-debugging-port=%d --user-data-dir="%%LOCALAPPDATA%%\ChromeCDP"`, port)
	case "darwin":
		return fmt.Sprintf(`open -a "Google Chrome" --args --remote-debugging-port=%d --user-data-dir="$HOME/.chrome-cdp"`, port)
	}
	return fmt.Sprintf(`google-chrome --remote-debugging-port=%d --user-data-dir="$HOME/.chrome-cdp"`, port)
}

// expandPath resolves a leading ~ and makes the path absolute.
func expandPath(p string) (string, error) {
	if p == "~" || len(p) > 1 && p[0] == '~' && os.IsPathSeparator(p[1]) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to resolve home directory: %w", err)
		}
		p = filepath.Join(home, p[1:])
	}
	return filepath.Abs(p)
}
