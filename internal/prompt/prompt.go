// Package prompt holds the versioned system instruction and request template
// sent to the intelligence provider.
package prompt

import (
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed analysis.yaml
var defaultTemplate []byte

// Template is a parsed prompt file.
type Template struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	Request string `yaml:"request"`
	Ping    string `yaml:"ping"`

	request *template.Template
}

// Default returns the embedded template.
func Default() (*Template, error) {
	return Parse(defaultTemplate)
}

// Load reads a template from path, or the embedded default when path is empty.
func Load(path string) (*Template, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a YAML prompt file and compiles its request template.
func Parse(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "prompt: parse yaml")
	}
	if strings.TrimSpace(t.System) == "" {
		return nil, eris.New("prompt: system instruction is empty")
	}
	if strings.TrimSpace(t.Request) == "" {
		return nil, eris.New("prompt: request template is empty")
	}
	if t.Ping == "" {
		t.Ping = "ping"
	}

	tmpl, err := template.New("request").Parse(t.Request)
	if err != nil {
		return nil, eris.Wrap(err, "prompt: compile request template")
	}
	t.request = tmpl
	return &t, nil
}

// Render builds the per-call prompt for symbol. A blank query selects the
// generic update mandate.
func (t *Template) Render(symbol, query string) (string, error) {
	var b strings.Builder
	err := t.request.Execute(&b, struct {
		Symbol string
		Query  string
	}{
		Symbol: strings.TrimSpace(symbol),
		Query:  strings.TrimSpace(query),
	})
	if err != nil {
		return "", eris.Wrap(err, "prompt: render request")
	}
	return strings.TrimSpace(b.String()), nil
}
