package utils

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	out := RenderMarkdown("**bold** idea")
	if !strings.Contains(out, "<strong>bold</strong>") {
		t.Errorf("RenderMarkdown() = %q, expected strong tag", out)
	}
}

func TestRenderMarkdown_StripsScripts(t *testing.T) {
	out := RenderMarkdown("hello <script>alert(1)</script>")
	if strings.Contains(out, "<script>") {
		t.Errorf("script tag survived sanitising: %q", out)
	}
}

func TestRenderMarkdown_ExternalLinks(t *testing.T) {
	out := RenderMarkdown("[site](https://example.com)")
	if !strings.Contains(out, `target="_blank"`) {
		t.Errorf("external link should open in new tab: %q", out)
	}
}

func TestStripTags(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain title", "plain title"},
		{"<b>bold</b> title", "bold title"},
		{"  spaced  ", "spaced"},
		{"don't & <i>won't</i>", "don't & won't"},
		{"<script>alert(1)</script>", ""},
	}

	for _, tt := range tests {
		if got := StripTags(tt.in); got != tt.want {
			t.Errorf("StripTags(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
