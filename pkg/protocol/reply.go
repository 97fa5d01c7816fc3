package protocol

import (
	"encoding/json"
	"net/url"
	"sort"
	"strings"
)

// ReplyVersion is the envelope version this package writes and accepts.
const ReplyVersion = 1

// ReplyKind tags the payload carried by a Reply.
type ReplyKind string

const (
	KindList ReplyKind = "list"
	KindMap  ReplyKind = "map"
	KindBool ReplyKind = "bool"
	KindText ReplyKind = "text"
)

// envelopePrefix is how every encoded Reply begins. Legacy replies never
// start with it: registry keys are filenames and never "$v".
const envelopePrefix = `{"$v":`

// Reply is the versioned envelope a bridge function returns.
//
//	{"$v":1,"kind":"list","items":["a.jsx","b.jsx"]}
//	{"$v":1,"kind":"map","entries":{"a.jsx":"Alpha"}}
//	{"$v":1,"kind":"bool","flag":true}
//	{"$v":1,"kind":"text","text":"done"}
//
// Items, entries and text are carried verbatim; no percent-encoding.
type Reply struct {
	V       int               `json:"$v"`
	Kind    ReplyKind         `json:"kind"`
	Items   []string          `json:"items,omitempty"`
	Entries map[string]string `json:"entries,omitempty"`
	Flag    bool              `json:"flag,omitempty"`
	Text    string            `json:"text,omitempty"`
}

func ListReply(items []string) Reply {
	return Reply{V: ReplyVersion, Kind: KindList, Items: items}
}

func MapReply(entries map[string]string) Reply {
	return Reply{V: ReplyVersion, Kind: KindMap, Entries: entries}
}

func BoolReply(flag bool) Reply {
	return Reply{V: ReplyVersion, Kind: KindBool, Flag: flag}
}

func TextReply(text string) Reply {
	return Reply{V: ReplyVersion, Kind: KindText, Text: text}
}

// Encode renders the envelope as JSON.
func (r Reply) Encode() string {
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// IsEnvelope reports whether raw looks like an encoded Reply.
func IsEnvelope(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), envelopePrefix)
}

// Legacy renders the reply in the unversioned shapes older hosts emit:
// a bracketed list of quoted, percent-encoded names, a JSON object,
// "true"/"false", or the bare text.
func (r Reply) Legacy() string {
	switch r.Kind {
	case KindList:
		if len(r.Items) == 0 {
			return "[]"
		}
		quoted := make([]string, len(r.Items))
		for i, item := range r.Items {
			quoted[i] = `"` + url.PathEscape(item) + `"`
		}
		return "[" + strings.Join(quoted, ",") + "]"
	case KindMap:
		if len(r.Entries) == 0 {
			return "{}"
		}
		keys := make([]string, 0, len(r.Entries))
		for k := range r.Entries {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]string, len(keys))
		for _, k := range keys {
			ordered[k] = r.Entries[k]
		}
		b, err := json.Marshal(ordered)
		if err != nil {
			return "{}"
		}
		return string(b)
	case KindBool:
		if r.Flag {
			return "true"
		}
		return "false"
	default:
		return r.Text
	}
}
