package repodata

import (
	"strings"
)

// Layout distinguishes a channel subdir's package listing format.
type Layout int

const (
	LayoutMonolithic Layout = iota
	LayoutSharded
)

// Channel is a package source: a base URL plus the subdirs it offers.
type Channel struct {
	Name      string
	BaseURL   string
	Layout    Layout
	Platforms []string
}

// SubdirURL returns the query URL for a subdirectory of this channel:
// "<base>/<subdir>/".
func (c Channel) SubdirURL(subdir string) string {
	base := strings.TrimSuffix(c.BaseURL, "/")
	return base + "/" + subdir + "/"
}

// subdirKey identifies a (channel, platform) pair for coalescing and
// caching purposes.
type subdirKey struct {
	channel string
	subdir  string
}

func keyFor(channel Channel, subdir string) subdirKey {
	return subdirKey{channel: channel.BaseURL, subdir: subdir}
}
