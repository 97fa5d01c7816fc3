package protocol

import "testing"

func TestLegacy(t *testing.T) {
	tests := []struct {
		name  string
		reply Reply
		want  string
	}{
		{"empty list", ListReply(nil), "[]"},
		{"list escapes", ListReply([]string{"a.jsx", "my tool.jsx"}), `["a.jsx","my%20tool.jsx"]`},
		{"empty map", MapReply(nil), "{}"},
		{"map", MapReply(map[string]string{"b": "B", "a": "A"}), `{"a":"A","b":"B"}`},
		{"true", BoolReply(true), "true"},
		{"false", BoolReply(false), "false"},
		{"text", TextReply("done"), "done"},
	}
	for _, tt := range tests {
		if got := tt.reply.Legacy(); got != tt.want {
			t.Errorf("%s: Legacy() = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestIsEnvelope(t *testing.T) {
	if !IsEnvelope(BoolReply(false).Encode()) {
		t.Error("encoded reply not recognised as envelope")
	}
	if !IsEnvelope("  " + ListReply(nil).Encode()) {
		t.Error("leading whitespace should be ignored")
	}
	for _, raw := range []string{"", "[]", "{}", `{"a.jsx":"A"}`, "true", "EvalScript error."} {
		if IsEnvelope(raw) {
			t.Errorf("IsEnvelope(%q) = true", raw)
		}
	}
}
