// Package reply turns bridge replies into structured values.
//
// Two wire forms are accepted. The versioned envelope (protocol.Reply) is
// preferred; the unversioned legacy shapes are still understood so older
// hosts keep working:
//
//	list  ["a.jsx","my%20tool.jsx"]   or  []
//	map   {"a.jsx":"Alpha"}            or  {}
//	bool  true | false
//
// Nothing here returns an error or panics. Input that cannot be read
// yields the empty value of the requested shape and ok == false so the
// caller can count it.
package reply

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/fruitsalade/studiokit/pkg/protocol"
)

// Sentinels a host returns when a function is missing or throws.
var sentinels = map[string]bool{
	"":                  true,
	"EvalScript error.": true,
	"undefined":         true,
	"null":              true,
}

// IsSentinel reports whether raw is an empty or error placeholder.
func IsSentinel(raw string) bool {
	return sentinels[strings.TrimSpace(raw)]
}

func envelope(raw string, kind protocol.ReplyKind) (protocol.Reply, bool) {
	var r protocol.Reply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &r); err != nil {
		return protocol.Reply{}, false
	}
	if r.V != protocol.ReplyVersion || r.Kind != kind {
		return protocol.Reply{}, false
	}
	return r, true
}

// DecodeList decodes a list reply.
func DecodeList(raw string) ([]string, bool) {
	if IsSentinel(raw) {
		return nil, false
	}
	if protocol.IsEnvelope(raw) {
		r, ok := envelope(raw, protocol.KindList)
		return r.Items, ok
	}

	s := strings.TrimSpace(raw)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, true
	}

	var items []string
	for _, tok := range strings.Split(inner, ",") {
		tok = strings.TrimSpace(tok)
		quoted := len(tok) >= 2 && isQuote(tok[0]) && tok[len(tok)-1] == tok[0]
		if quoted {
			tok = tok[1 : len(tok)-1]
		} else if tok == "" {
			continue
		}
		if dec, err := url.PathUnescape(tok); err == nil {
			tok = dec
		}
		items = append(items, tok)
	}
	return items, true
}

func isQuote(c byte) bool {
	return c == '"' || c == '\''
}

// DecodeMap decodes a key/value reply. Non-string values are skipped.
func DecodeMap(raw string) (map[string]string, bool) {
	if IsSentinel(raw) {
		return map[string]string{}, false
	}
	if protocol.IsEnvelope(raw) {
		r, ok := envelope(raw, protocol.KindMap)
		if !ok || r.Entries == nil {
			return map[string]string{}, ok
		}
		return r.Entries, true
	}

	var generic map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &generic); err != nil {
		return map[string]string{}, false
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out, true
}

// DecodeBool decodes a "true"/"false" status reply.
func DecodeBool(raw string) (bool, bool) {
	if protocol.IsEnvelope(raw) {
		r, ok := envelope(raw, protocol.KindBool)
		return r.Flag, ok
	}
	switch strings.TrimSpace(raw) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}

// DecodeText decodes an advisory text reply such as a script's result.
func DecodeText(raw string) (string, bool) {
	if IsSentinel(raw) {
		return "", false
	}
	if protocol.IsEnvelope(raw) {
		r, ok := envelope(raw, protocol.KindText)
		return r.Text, ok
	}
	return raw, true
}

// List is DecodeList without the ok flag.
func List(raw string) []string {
	items, _ := DecodeList(raw)
	return items
}

// Map is DecodeMap without the ok flag.
func Map(raw string) map[string]string {
	m, _ := DecodeMap(raw)
	return m
}

// Bool is DecodeBool without the ok flag.
func Bool(raw string) bool {
	b, _ := DecodeBool(raw)
	return b
}
