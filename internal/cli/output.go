package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Formatter renders command results.
type Formatter interface {
	Format(w io.Writer, data any) error
}

// NewFormatter returns a Formatter for the given format string.
// Supported formats: "text" (default), "json", "yaml".
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return textFormatter{}, nil
	case "json":
		return jsonFormatter{}, nil
	case "yaml":
		return yamlFormatter{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q (supported: text, json, yaml)", format)
}

// texter is implemented by results with a one line shell friendly form.
type texter interface {
	Text() string
}

type textFormatter struct{}

func (textFormatter) Format(w io.Writer, data any) error {
	if t, ok := data.(texter); ok {
		_, err := fmt.Fprintln(w, t.Text())
		return err
	}
	return jsonFormatter{}.Format(w, data)
}

type jsonFormatter struct{}

func (jsonFormatter) Format(w io.Writer, data any) error {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

// yamlFormatter goes through JSON so field names follow the json tags of
// the token types.
type yamlFormatter struct{}

func (yamlFormatter) Format(w io.Writer, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("formatting YAML: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("formatting YAML: %w", err)
	}
	blockStyle(&doc)
	out, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("formatting YAML: %w", err)
	}
	_, err = w.Write(out)
	return err
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
