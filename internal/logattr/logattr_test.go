package logattr

import (
	"testing"
	"unicode/utf8"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		value string
		limit int
		want  string
	}{
		{name: "short", value: "leeds", limit: 10, want: "leeds"},
		{name: "no limit", value: "leeds", limit: 0, want: "leeds"},
		{name: "ascii", value: "manchester", limit: 7, want: "manc..."},
		{name: "tiny limit", value: "manchester", limit: 2, want: "ma"},
		{name: "rune boundary", value: "Zürich", limit: 5, want: "Z..."},
		{name: "rune boundary tiny", value: "日本", limit: 2, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.value, tt.limit)
			if got != tt.want {
				t.Fatalf("Truncate(%q, %d) = %q, want %q", tt.value, tt.limit, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Fatalf("result %q is not valid UTF-8", got)
			}
			if tt.limit > 0 && len(got) > tt.limit {
				t.Fatalf("result %q exceeds %d bytes", got, tt.limit)
			}
		})
	}
}

func TestText(t *testing.T) {
	attr := Text("query", "Llanfairpwllgwyngyll", 10)
	if attr.Key != "query" || attr.Value.String() != "Llanfai..." {
		t.Fatalf("unexpected attr: %v", attr)
	}
}
