package transaction

import "github.com/nebari-dev/rattler-go/internal/version"

// compareVersionBuild orders (version, build_number) tuples; negative
// means before < after (an upgrade), positive means before > after
// (a downgrade).
func compareVersionBuild(beforeVersion string, beforeBuild int64, afterVersion string, afterBuild int64) int {
	bv, bErr := version.Parse(beforeVersion)
	av, aErr := version.Parse(afterVersion)
	if bErr == nil && aErr == nil {
		if ord := version.Compare(bv, av); ord != version.Equal {
			return int(ord)
		}
	} else if beforeVersion != afterVersion {
		if beforeVersion < afterVersion {
			return -1
		}
		return 1
	}

	switch {
	case beforeBuild < afterBuild:
		return -1
	case beforeBuild > afterBuild:
		return 1
	default:
		return 0
	}
}
