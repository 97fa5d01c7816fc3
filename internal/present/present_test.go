package present

import "testing"

func TestPrettify(t *testing.T) {
	p := New("")
	tests := []struct {
		in   string
		want string
	}{
		{"my-script_v2.jsx", "My Script V2"},
		{"export.jsx", "Export"},
		{"Export.JSX", "Export"},
		{"batch_resize-all.jsx", "Batch Resize All"},
		{"keepCase.jsx", "KeepCase"},
		{"no_extension", "No Extension"},
		{"double--dash.jsx", "Double  Dash"},
		{"über_tool.jsx", "Über Tool"},
		{".jsx", ".Jsx"},
		{"notes.txt", "Notes.Txt"},
		{"resize.v2.jsx", "Resize.V2"},
		{"export(png)-tool.jsx", "Export(Png) Tool"},
		{"tool2go.jsx", "Tool2go"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := p.Prettify(tt.in); got != tt.want {
			t.Errorf("Prettify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrettifyStable(t *testing.T) {
	p := New(".jsx")
	for _, name := range []string{"a-b_c.jsx", "x.jsx", "Über.jsx"} {
		if p.Prettify(name) != p.Prettify(name) {
			t.Errorf("Prettify(%q) not stable", name)
		}
	}
}

func TestLabel(t *testing.T) {
	reg := Registry{
		"crop.jsx":   "Crop To Selection",
		"Resize.jsx": "Smart Resize",
		"blank.jsx":  "",
	}
	tests := []struct {
		in   string
		want string
	}{
		{"crop.jsx", "Crop To Selection"},
		{"resize.jsx", "Smart Resize"},
		{"blank.jsx", "Blank"},
		{"other_one.jsx", "Other One"},
	}
	for _, tt := range tests {
		if got := Label(tt.in, reg); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	if got := Label("my-script_v2.jsx", nil); got != "My Script V2" {
		t.Errorf("nil registry: got %q", got)
	}
}

func TestCustomExtension(t *testing.T) {
	p := New(".js")
	if got := p.Prettify("run-me.js"); got != "Run Me" {
		t.Errorf("got %q", got)
	}
}
