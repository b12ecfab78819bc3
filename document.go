package flowgraph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"gopkg.in/yaml.v3"
)

// Format is a serialization of a workflow document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// ParseDocument decodes a workflow document. JSON that fails to decode is
// passed through a JSON repair step and decoded once more. The document is
// not validated.
func ParseDocument(data []byte, format Format) (*Document, error) {
	if format == FormatYAML {
		return parseYAML(data)
	}

	var doc Document
	err := json.Unmarshal(data, &doc)
	if err == nil {
		return &doc, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(string(data))
	if repairErr != nil {
		return nil, fmt.Errorf("flowgraph: decode document: %w (repair: %v)", err, repairErr)
	}
	doc = Document{}
	if err := json.Unmarshal([]byte(repaired), &doc); err != nil {
		return nil, fmt.Errorf("flowgraph: decode repaired document: %w", err)
	}
	return &doc, nil
}

// parseYAML converts YAML into the JSON shape so node configs go through
// the same per-type decoding.
func parseYAML(data []byte) (*Document, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("flowgraph: decode yaml document: %w", err)
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: convert yaml document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("flowgraph: decode yaml document: %w", err)
	}
	return &doc, nil
}

// EncodeDocument writes doc in the given format.
func EncodeDocument(w io.Writer, doc *Document, format Format) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("flowgraph: encode document: %w", err)
	}
	if format != FormatYAML {
		b = append(b, '\n')
		_, err = w.Write(b)
		return err
	}

	// JSON is valid YAML: decode it into a node tree to keep field order,
	// then drop the flow and quoting styles inherited from JSON.
	var node yaml.Node
	if err := yaml.Unmarshal(b, &node); err != nil {
		return fmt.Errorf("flowgraph: encode yaml document: %w", err)
	}
	resetStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("flowgraph: encode yaml document: %w", err)
	}
	return enc.Close()
}

func resetStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		resetStyle(c)
	}
}

// ReadDocumentFile loads a document, choosing the format by extension.
func ReadDocumentFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("flowgraph: read %s: %w", path, err)
	}
	return ParseDocument(data, FormatFromPath(path))
}

// WriteDocumentFile saves a document, choosing the format by extension.
func WriteDocumentFile(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := EncodeDocument(&buf, doc, FormatFromPath(path)); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
