package record

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Records serialize as YAML front matter between "---" fences followed by the
// free-text body:
//
//	---
//	id: sp-1a2b
//	title: Fix the flux capacitor
//	...
//	---
//	Body text here.
const frontMatterFence = "---"

// Marshal serializes a record to its on-disk form.
func Marshal(r *Record) ([]byte, error) {
	meta, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal record %s: %w", r.ID, err)
	}
	var buf bytes.Buffer
	buf.WriteString(frontMatterFence)
	buf.WriteByte('\n')
	buf.Write(meta)
	buf.WriteString(frontMatterFence)
	buf.WriteByte('\n')
	if r.Body != "" {
		buf.WriteString(r.Body)
		if !strings.HasSuffix(r.Body, "\n") {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}

// Unmarshal parses the on-disk form back into a record.
func Unmarshal(data []byte) (*Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontMatterFence+"\n") {
		return nil, fmt.Errorf("missing front matter fence")
	}
	rest := text[len(frontMatterFence)+1:]
	idx := strings.Index(rest, "\n"+frontMatterFence+"\n")
	var meta, body string
	switch {
	case idx >= 0:
		meta = rest[:idx+1]
		body = rest[idx+len(frontMatterFence)+2:]
	case strings.HasSuffix(rest, "\n"+frontMatterFence):
		meta = rest[:len(rest)-len(frontMatterFence)]
	default:
		return nil, fmt.Errorf("unterminated front matter")
	}

	var r Record
	if err := yaml.Unmarshal([]byte(meta), &r); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	if r.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}
	r.Body = strings.TrimRight(body, "\n")
	return &r, nil
}

// Filename returns the store-relative file name for a record id.
func Filename(id string) string {
	return id + ".md"
}
