package reporter

import (
	"bytes"
	"testing"
)

func TestNoOpDiscardsEvents(t *testing.T) {
	tok := NoOp.OnDownloadStart("https://example.test/repodata.json")
	NoOp.OnBytes(tok, 1024)
	NoOp.OnDownloadComplete("https://example.test/repodata.json", tok)
}

func TestNextTokenIsUnique(t *testing.T) {
	a := NextToken()
	b := NextToken()
	if a == b {
		t.Errorf("expected distinct tokens, got %d and %d", a, b)
	}
}

func TestTerminalRendersActiveCount(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminal(&buf, -1)

	dlTok := term.OnDownloadStart("https://example.test/pkg.conda")
	term.OnBytes(dlTok, 512)
	linkTok := term.OnLinkStart("numpy")

	if buf.Len() == 0 {
		t.Fatal("expected some output to be rendered")
	}

	term.OnDownloadComplete("https://example.test/pkg.conda", dlTok)
	term.OnLinkComplete(linkTok)

	if term.active != 0 {
		t.Errorf("active = %d, want 0 after completion", term.active)
	}
}
