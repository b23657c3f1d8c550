package oracle

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoJSONBlock is returned when a response holds no well-formed JSON object.
var ErrNoJSONBlock = errors.New("no well-formed JSON block in response")

// ExtractJSON finds the structured part of a model response and decodes it
// into a generic object.
//
// Fenced code blocks tagged "json" are tried first, then any other fenced
// block, and finally a response that is a bare JSON object. The first
// candidate that decodes into an object wins.
func ExtractJSON(raw string) (map[string]any, error) {
	tagged, untagged := fencedBlocks([]byte(raw))

	candidates := append(tagged, untagged...)
	candidates = append(candidates, strings.TrimSpace(raw))

	for _, c := range candidates {
		if obj, ok := decodeObject(c); ok {
			return obj, nil
		}
	}
	return nil, ErrNoJSONBlock
}

// fencedBlocks parses raw as markdown and returns the contents of fenced code
// blocks, split by whether their info string names JSON.
func fencedBlocks(source []byte) (tagged []string, untagged []string) {
	md := goldmark.New()
	doc := md.Parser().Parse(text.NewReader(source))

	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		block, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := block.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}

		if strings.EqualFold(string(block.Language(source)), "json") {
			tagged = append(tagged, buf.String())
		} else {
			untagged = append(untagged, buf.String())
		}
		return ast.WalkSkipChildren, nil
	})
	return tagged, untagged
}

func decodeObject(s string) (map[string]any, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}

	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return obj, true
}
