package tui

import (
	"os/exec"
	"runtime"

	"github.com/atotto/clipboard"
)

// Replaced in tests.
var (
	openURL        = openBrowser
	writeClipboard = clipboard.WriteAll
)

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
