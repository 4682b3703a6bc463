//go:build !windows

package ui

import _ "embed"

//go:embed icon.png
var iconBytes []byte
