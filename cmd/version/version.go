package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

const (
	FMT_VERSTR = "v%v.%v.%v-%x (%s)"
)

var (
	// it is changed using ldflags.
	//  ex) -ldflags "... -X 'github.com/beatoz/fxopgen/cmd/version.GitCommit=$(XXX)'"
	Version   string
	GitCommit string

	majorVer  uint64 = 0
	minorVer  uint64 = 1
	patchVer  uint64 = 0
	commitVer uint64 = 0
)

var verRegexp = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)`)

func init() {
	if err := parseVersions(Version, GitCommit); err != nil {
		panic(err)
	}
}

func parseVersions(versionStr, gitCommit string) error {
	if versionStr == "" {
		return nil
	}

	matches := verRegexp.FindStringSubmatch(versionStr)
	if matches == nil {
		return fmt.Errorf("invalid version string: %v", versionStr)
	}
	majorVer, _ = strconv.ParseUint(matches[1], 10, 64)
	minorVer, _ = strconv.ParseUint(matches[2], 10, 64)
	patchVer, _ = strconv.ParseUint(matches[3], 10, 64)

	if gitCommit != "" {
		c, err := strconv.ParseUint(gitCommit, 16, 64)
		if err != nil {
			return fmt.Errorf("error: %v, invalid git commit: %v", err, gitCommit)
		}
		commitVer = c
	}
	return nil
}

func String() string {
	return fmt.Sprintf(FMT_VERSTR, majorVer, minorVer, patchVer, commitVer, runtime.Version())
}

func Major() uint64 {
	return majorVer
}

func Minor() uint64 {
	return minorVer
}

func Patch() uint64 {
	return patchVer
}

func CommitHash() uint64 {
	return commitVer
}
