// Package diagnostics renders a human-readable dump of the resource tree
// for operator troubleshooting, using the render package's mugo
// templating wrapper.
package diagnostics

import (
	"fmt"

	"github.com/rakunlabs/datahub/internal/render"
	"github.com/rakunlabs/datahub/internal/resource"
)

// Node is the template-facing projection of one tree entry.
type Node struct {
	Name       string
	Path       string
	Kind       string
	DataType   string
	Units      string
	HasSource  bool
	Source     string
	NumDests   int
	NumBuffers int
	Children   []Node
}

const defaultTemplate = `{{- define "node" -}}
{{ .Path }} [{{ .Kind }}]{{ if .DataType }} type={{ .DataType }}{{ end }}{{ if .Units }} units={{ .Units }}{{ end }}{{ if .HasSource }} source={{ .Source }}{{ end }}{{ if gt .NumDests 0 }} destinations={{ .NumDests }}{{ end }}
{{- range .Children }}
{{ template "node" . }}
{{- end -}}
{{- end -}}
{{ template "node" . }}
`

// Snapshot walks the tree starting at root and builds the template data.
func Snapshot(root *resource.Entry) Node {
	return snapshot(root)
}

func snapshot(e *resource.Entry) Node {
	n := Node{
		Name: e.Name(),
		Path: e.Path(),
		Kind: e.Kind().String(),
	}

	if r := e.Resource(); r != nil {
		n.DataType = r.CurrentType().String()
		n.Units = r.Units()
		if src := r.Source(); src != nil {
			n.HasSource = true
			n.Source = src.Entry().Path()
		}
		n.NumDests = len(r.Destinations())
	}

	for _, c := range e.Children() {
		n.Children = append(n.Children, snapshot(c))
	}
	return n
}

// Render produces the textual dump for a tree rooted at root.
func Render(root *resource.Entry) (string, error) {
	data := Snapshot(root)
	out, err := render.ExecuteWithFuncs(defaultTemplate, data, nil)
	if err != nil {
		return "", fmt.Errorf("render diagnostics: %w", err)
	}
	return string(out), nil
}
