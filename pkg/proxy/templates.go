package proxy

import (
	"embed"
	"fmt"
)

//go:embed templates/*.tpl
var templateFS embed.FS

// tpl returns the embedded template called name. A missing template is a
// build defect, not a runtime condition.
func tpl(name string) string {
	b, err := templateFS.ReadFile("templates/" + name + ".tpl")
	if err != nil {
		panic(fmt.Sprintf("proxy: missing template %s: %v", name, err))
	}
	return string(b)
}
