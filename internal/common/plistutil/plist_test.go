package plistutil

import (
	"bytes"
	"crypto/rand"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/nvram"
	"howett.net/plist"
)

func sortVars(vars []nvram.Variable) {
	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
}

func TestRenderParseRoundTrip(t *testing.T) {
	var vars []nvram.Variable
	for i := 0; i < 20; i++ {
		value := make([]byte, i*37)
		if _, err := rand.Read(value); err != nil {
			t.Fatalf("Failed to generate random data: %v", err)
		}
		vars = append(vars, nvram.Variable{Name: fmt.Sprintf("var-%02d", i), Value: value})
	}
	vars = append(vars,
		nvram.Variable{Name: nvram.PrefixedName(nvram.GlobalGUID, nvram.BootNext), Value: []byte{0x82, 0x00}},
		nvram.Variable{Name: "xml <&> escapes", Value: []byte("<data>")},
	)

	// Reverse order in: enumeration order must not matter
	reversed := make([]nvram.Variable, len(vars))
	for i := range vars {
		reversed[len(vars)-1-i] = vars[i]
	}

	doc, err := RenderVariables(reversed)
	if err != nil {
		t.Fatalf("RenderVariables failed: %v", err)
	}

	parsed, err := ParseVariables(doc)
	if err != nil {
		t.Fatalf("ParseVariables failed: %v\n%s", err, doc)
	}

	sortVars(vars)
	sortVars(parsed)
	if len(parsed) != len(vars) {
		t.Fatalf("parsed %d variables, want %d", len(parsed), len(vars))
	}
	for i := range vars {
		if parsed[i].Name != vars[i].Name {
			t.Errorf("name %d = %q, want %q", i, parsed[i].Name, vars[i].Name)
		}
		if !bytes.Equal(parsed[i].Value, vars[i].Value) {
			t.Errorf("value of %q differs after round trip", vars[i].Name)
		}
	}
}

func TestRenderFraming(t *testing.T) {
	doc, err := RenderVariables([]nvram.Variable{{Name: "boot-opt", Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}}})
	if err != nil {
		t.Fatalf("RenderVariables failed: %v", err)
	}

	text := string(doc)
	if !strings.HasPrefix(text, FileHeader) {
		t.Errorf("document does not start with the file header:\n%s", text)
	}
	if !strings.HasSuffix(text, FileFooter) {
		t.Errorf("document does not end with the file footer:\n%s", text)
	}
	if strings.Count(text, "<plist") != 1 {
		t.Errorf("document has nested plist envelopes:\n%s", text)
	}
	if !strings.Contains(text, "<key>boot-opt</key>") || !strings.Contains(text, "3q2+7w==") {
		t.Errorf("document does not contain the encoded entry:\n%s", text)
	}
}

func TestRenderDeterministic(t *testing.T) {
	a := []nvram.Variable{{Name: "a", Value: []byte("1")}, {Name: "b", Value: []byte("2")}}
	b := []nvram.Variable{{Name: "b", Value: []byte("2")}, {Name: "a", Value: []byte("1")}}

	first, err := RenderVariables(a)
	if err != nil {
		t.Fatal(err)
	}
	second, err := RenderVariables(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Errorf("rendering depends on input order:\n%s\n---\n%s", first, second)
	}
}

func TestRenderEmpty(t *testing.T) {
	doc, err := RenderVariables(nil)
	if err != nil {
		t.Fatalf("RenderVariables(nil) failed: %v", err)
	}
	parsed, err := ParseVariables(doc)
	if err != nil {
		t.Fatalf("ParseVariables failed: %v\n%s", err, doc)
	}
	if len(parsed) != 0 {
		t.Errorf("parsed %d variables from empty snapshot", len(parsed))
	}
}

func TestRenderDuplicate(t *testing.T) {
	_, err := RenderVariables([]nvram.Variable{{Name: "x"}, {Name: "x"}})
	if !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for duplicates, got %v", err)
	}
}

func TestRenderRejectsInvalidUTF8Name(t *testing.T) {
	_, err := RenderVariables([]nvram.Variable{{Name: "a\xffb", Value: []byte{0x01}}})
	if !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for non-UTF-8 name, got %v", err)
	}
}

func TestParseForeignDocuments(t *testing.T) {
	binary, err := plist.Marshal(map[string]interface{}{
		"BootNext":  []byte{0x01, 0x00},
		"boot-args": "-v",
	}, plist.BinaryFormat)
	if err != nil {
		t.Fatal(err)
	}
	if DetectFormat(binary) != FormatBinary {
		t.Errorf("binary plist detected as %s", FormatToString(DetectFormat(binary)))
	}

	vars, err := ParseVariables(binary)
	if err != nil {
		t.Fatalf("ParseVariables(binary) failed: %v", err)
	}
	sortVars(vars)
	if len(vars) != 2 || string(vars[1].Value) != "-v" {
		t.Errorf("unexpected variables: %+v", vars)
	}

	if _, err := ParseVariables([]byte("not a plist at all <")); !stderrors.Is(err, errors.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile, got %v", err)
	}

	nested := []byte(FileHeader + "<dict><key>n</key><integer>5</integer></dict>" + FileFooter)
	if _, err := ParseVariables(nested); !stderrors.Is(err, errors.ErrUnsupportedFile) {
		t.Errorf("expected ErrUnsupportedFile for integer value, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	if DetectFormat([]byte(FileHeader)) != FormatXML {
		t.Error("snapshot header not detected as XML")
	}
	if DetectFormat([]byte("{ a = <00>; }")) != FormatOpenStep {
		t.Error("OpenStep text not detected")
	}
}
