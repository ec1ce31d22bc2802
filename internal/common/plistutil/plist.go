// Package plistutil renders and parses NVRAM snapshot documents: an XML property
// list whose root dictionary maps each variable name to its raw bytes.
package plistutil

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"howett.net/plist"
)

// FileHeader and FileFooter frame every snapshot. Host plist tooling depends on
// these exact strings.
const (
	FileHeader = "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n" +
		"<!DOCTYPE plist PUBLIC \"-//Apple//DTD PLIST 1.0//EN\" \"http://www.apple.com/DTDs/PropertyList-1.0.dtd\">\n" +
		"<plist version=\"1.0\">\n"
	FileFooter = "\n</plist>\n"
)

const (
	plistOpenTag  = "<plist version=\"1.0\">"
	plistCloseTag = "</plist>"
)

// Format represents the plist format
type Format int

const (
	// FormatXML is the XML plist format
	FormatXML Format = iota
	// FormatBinary is the binary plist format
	FormatBinary
	// FormatOpenStep is the OpenStep plist format
	FormatOpenStep
)

// RenderVariables renders vars as a snapshot document. Each value is encoded as a
// <data> element; the dictionary is emitted with keys in sorted order so equal sets
// render identically.
func RenderVariables(vars []nvram.Variable) ([]byte, error) {
	dict := make(map[string]interface{}, len(vars))
	for _, v := range vars {
		// Plist keys are text; an invalid sequence would not survive a reload
		if !utf8.ValidString(v.Name) {
			return nil, fmt.Errorf("%w: variable name %q is not valid UTF-8", errors.ErrInvalidArgument, v.Name)
		}
		if _, dup := dict[v.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate variable %q", errors.ErrInvalidArgument, v.Name)
		}
		value := v.Value
		if value == nil {
			value = []byte{}
		}
		dict[v.Name] = value
	}

	encoded, err := plist.MarshalIndent(dict, plist.XMLFormat, "\t")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileWriteError, err.Error())
	}

	// The encoder emits its own envelope; keep only the root dictionary and
	// wrap it in the fixed header and footer.
	start := bytes.Index(encoded, []byte(plistOpenTag))
	end := bytes.LastIndex(encoded, []byte(plistCloseTag))
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: unexpected plist encoder output", errors.ErrFileWriteError)
	}
	body := bytes.TrimSpace(encoded[start+len(plistOpenTag) : end])

	var doc bytes.Buffer
	doc.Grow(len(FileHeader) + len(body) + len(FileFooter))
	doc.WriteString(FileHeader)
	doc.Write(body)
	doc.WriteString(FileFooter)
	return doc.Bytes(), nil
}

// ParseVariables parses a snapshot document back into variables. Any plist format
// is accepted. String values, which some serializers emit for printable
// variables, are taken as their UTF-8 bytes.
func ParseVariables(doc []byte) ([]nvram.Variable, error) {
	var dict map[string]interface{}
	if _, err := plist.Unmarshal(doc, &dict); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, err.Error())
	}

	vars := make([]nvram.Variable, 0, len(dict))
	for name, raw := range dict {
		var value []byte
		switch typed := raw.(type) {
		case []byte:
			value = typed
		case string:
			value = []byte(typed)
		default:
			return nil, fmt.Errorf("%w: variable %q has unsupported type %T", errors.ErrUnsupportedFile, name, raw)
		}
		vars = append(vars, nvram.Variable{Name: name, Value: value})
	}
	return vars, nil
}

// DetectFormat detects the format of plist data from its leading bytes
func DetectFormat(header []byte) Format {
	if bytes.HasPrefix(header, []byte("bplist00")) {
		return FormatBinary
	}
	trimmed := bytes.TrimLeft(header, " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<!DOCTYPE")) || bytes.HasPrefix(trimmed, []byte("<plist")) {
		return FormatXML
	}
	if bytes.HasPrefix(trimmed, []byte("{")) || bytes.HasPrefix(trimmed, []byte("(")) {
		return FormatOpenStep
	}
	// Default to XML if can't determine
	return FormatXML
}

// FormatToString converts a Format enum to a string
func FormatToString(format Format) string {
	switch format {
	case FormatXML:
		return "XML"
	case FormatBinary:
		return "Binary"
	case FormatOpenStep:
		return "OpenStep"
	default:
		return "Unknown"
	}
}
