// Package repodata implements the gateway that resolves "give me all
// records matching these specs from these channels on this platform"
// queries while minimizing HTTP traffic and cache churn.
//
// Grounded on the teacher's internal/oci (oras-go registry client,
// bearer-token exchange) and internal/store (sqlite-backed local
// state) for the ambient pieces; the fetch/cache/coalescing protocol
// itself has no direct teacher analog and is built fresh from
// original_source/crates/rattler_repodata_gateway.
package repodata

import (
	"github.com/nebari-dev/rattler-go/internal/pkgrecord"
)

// RepoData is one (channel, platform) query result.
type RepoData struct {
	Channel  string
	Subdir   string
	Records  []pkgrecord.RepoDataRecord
}

// ChannelPriority controls whether the solver may mix channels for the
// same package name.
type ChannelPriority int

const (
	ChannelPriorityStrict ChannelPriority = iota
	ChannelPriorityDisabled
)

// Query describes one gateway.Query call.
type Query struct {
	Channels  []Channel
	Platforms []string
	Specs     []string // package names or MatchSpec strings to seed the walk
	Recursive bool
}
