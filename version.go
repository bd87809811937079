package capture

import _ "embed"

// Version is the release of the capture module.
//
//go:embed VERSION
var Version string
