package config

import "strings"

const (
	windowsEngineDir = `C:\Program Files (x86)\poppler\Library\bin`
	unixEngineDir    = "/usr/bin"
	engineName       = "pdftoppm"
)

// RenderingEnginePath returns the poppler binary directory for a GOOS value.
func RenderingEnginePath(osKind string) string {
	if osKind == "windows" {
		return windowsEngineDir
	}
	return unixEngineDir
}

// RenderingEngineExecutable joins dir and the pdftoppm executable name using
// the separator and suffix of osKind rather than the host's.
func RenderingEngineExecutable(dir, osKind string) string {
	if osKind == "windows" {
		return strings.TrimRight(dir, `\/`) + `\` + engineName + ".exe"
	}
	return strings.TrimRight(dir, "/") + "/" + engineName
}
