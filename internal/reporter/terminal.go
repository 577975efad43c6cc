package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Terminal is a Reporter that renders a single-line progress summary
// to w, sized to the attached terminal's width when w is a terminal
// and falling back to a fixed width otherwise.
type Terminal struct {
	w  io.Writer
	fd int

	mu        sync.Mutex
	downloads map[Token]*downloadState
	links     map[Token]string
	active    int
}

type downloadState struct {
	url   string
	bytes int64
}

// NewTerminal builds a Terminal reporter writing to w. fd is the file
// descriptor backing w, used only for width detection via
// golang.org/x/term; pass -1 if w is not a real terminal.
func NewTerminal(w io.Writer, fd int) *Terminal {
	return &Terminal{
		w:         w,
		fd:        fd,
		downloads: make(map[Token]*downloadState),
		links:     make(map[Token]string),
	}
}

func (t *Terminal) width() int {
	if t.fd >= 0 && term.IsTerminal(t.fd) {
		if w, _, err := term.GetSize(t.fd); err == nil && w > 0 {
			return w
		}
	}
	return 80
}

func (t *Terminal) OnDownloadStart(url string) Token {
	tok := NextToken()
	t.mu.Lock()
	t.downloads[tok] = &downloadState{url: url}
	t.active++
	t.mu.Unlock()
	t.render()
	return tok
}

func (t *Terminal) OnBytes(tok Token, n int64) {
	t.mu.Lock()
	if d, ok := t.downloads[tok]; ok {
		d.bytes += n
	}
	t.mu.Unlock()
	t.render()
}

func (t *Terminal) OnDownloadComplete(url string, tok Token) {
	t.mu.Lock()
	delete(t.downloads, tok)
	t.active--
	t.mu.Unlock()
	t.render()
}

func (t *Terminal) OnLinkStart(name string) Token {
	tok := NextToken()
	t.mu.Lock()
	t.links[tok] = name
	t.active++
	t.mu.Unlock()
	t.render()
	return tok
}

func (t *Terminal) OnLinkComplete(tok Token) {
	t.mu.Lock()
	delete(t.links, tok)
	t.active--
	t.mu.Unlock()
	t.render()
}

func (t *Terminal) render() {
	t.mu.Lock()
	line := fmt.Sprintf("%d active (%d downloading, %d linking)", t.active, len(t.downloads), len(t.links))
	t.mu.Unlock()

	width := t.width()
	if len(line) > width {
		line = line[:width]
	}
	fmt.Fprintf(t.w, "\r%s%s", line, strings.Repeat(" ", max(0, width-len(line))))
}
