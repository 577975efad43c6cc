// Package reporter defines the progress-reporting capability the
// gateway and installer emit events through: download and link
// lifecycle callbacks that are safe to no-op and are never called with
// an internal lock held. The package cache emits no events.
//
// Grounded on the teacher's internal/progress-style event hooks used
// by its long-running sync operations, generalized to the three event
// families this module's engines need.
package reporter

import "sync/atomic"

// Token identifies one in-flight download or link operation across its
// start/progress/complete calls.
type Token uint64

// Reporter receives progress events. Every method must return quickly
// and must not block on I/O; a CLI progress bar should buffer and
// render asynchronously if rendering is expensive.
type Reporter interface {
	OnDownloadStart(url string) Token
	OnBytes(tok Token, n int64)
	OnDownloadComplete(url string, tok Token)
	OnLinkStart(name string) Token
	OnLinkComplete(tok Token)
}

// NoOp is a Reporter that discards every event, the default when no
// caller-supplied Reporter is configured.
var NoOp Reporter = noOpReporter{}

type noOpReporter struct{}

func (noOpReporter) OnDownloadStart(string) Token     { return 0 }
func (noOpReporter) OnBytes(Token, int64)             {}
func (noOpReporter) OnDownloadComplete(string, Token) {}
func (noOpReporter) OnLinkStart(string) Token         { return 0 }
func (noOpReporter) OnLinkComplete(Token)             {}

var tokenCounter uint64

// NextToken returns a process-unique token, for Reporter
// implementations that don't need to correlate it to anything but
// presence.
func NextToken() Token {
	return Token(atomic.AddUint64(&tokenCounter, 1))
}
