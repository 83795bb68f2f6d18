package cmd

import (
	"runtime/debug"
)

// devVersion is what an un-stamped build reports before build info is read.
const devVersion = "dev"

// SetVersion records the version shown by --version. A build stamped with
// -ldflags keeps its stamp; otherwise the module or VCS info of the binary
// is used when present.
func SetVersion(v string) {
	info, _ := debug.ReadBuildInfo()
	version = resolveVersion(v, info)
	rootCmd.Version = version
}

// resolveVersion picks, in order: an injected version, the module version
// from go install, then devel+<rev>[+dirty] from VCS stamping.
func resolveVersion(injected string, info *debug.BuildInfo) string {
	if injected != "" && injected != devVersion {
		return injected
	}
	if info == nil {
		return devVersion
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if rev == "" {
		return devVersion
	}
	rev = rev[:min(len(rev), 12)]
	if dirty {
		return "devel+" + rev + "+dirty"
	}
	return "devel+" + rev
}
