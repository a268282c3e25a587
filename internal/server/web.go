package server

import (
	"embed"
	"fmt"
)

//go:embed web/index.html
var webContent embed.FS

// indexPage is the status page served at the root path. Embedded so the
// binary has no runtime dependency on external files.
var indexPage = mustReadIndex()

func mustReadIndex() []byte {
	data, err := webContent.ReadFile("web/index.html")
	if err != nil {
		panic(fmt.Sprintf("server: failed to load embedded status page: %v", err))
	}
	return data
}
