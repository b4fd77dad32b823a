package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	cases := []struct {
		in      string
		version int
		want    string
	}{
		{"Original by @john_doe.", MarkdownV2, `Original by @john\_doe\.`},
		{"a*b [c](d) #tag!", MarkdownV2, `a\*b \[c\]\(d\) \#tag\!`},
		{`back\slash`, MarkdownV2, `back\\slash`},
		{"plain text", MarkdownV2, "plain text"},
		{"snake_case *bold*", MarkdownV1, `snake\_case \*bold\*`},
		{"привет.", MarkdownV2, `привет\.`},
	}
	for _, tc := range cases {
		got, err := EscapeMarkdown(tc.in, tc.version)
		if err != nil {
			t.Fatalf("EscapeMarkdown(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("EscapeMarkdown(%q, %d) = %q, want %q", tc.in, tc.version, got, tc.want)
		}
	}
	if _, err := EscapeMarkdown("x", 3); err == nil {
		t.Fatal("expected error for unknown version")
	}
}
