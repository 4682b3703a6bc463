//go:build windows

package ui

import _ "embed"

//go:embed icon.ico
var iconBytes []byte
