// Package compileinfo reports how the running binary was built. The
// information is printed on startup and stored alongside persisted results.
package compileinfo

import (
	"fmt"
	"os"
	"runtime/debug"
)

type CompileInfo struct {
	Package    string `db:"package"`
	Version    string `db:"version"`
	GoVersion  string `db:"go_version"`
	Commit     string `db:"vcs_revision"`
	CommitTime string `db:"vcs_time"`
	Modified   bool   `db:"vcs_modified"`
}

func (c CompileInfo) String() string {
	if c.Package == "" {
		return "Build information is unavailable for this binary."
	}

	mod := ""
	if c.Modified {
		mod = " (uncommitted changes)"
	}

	return fmt.Sprintf("%s %s built with %s from commit %v at %v%s", c.Package, c.Version, c.GoVersion, c.Commit, c.CommitTime, mod)
}

func Get() CompileInfo {
	out := CompileInfo{}

	z, ok := debug.ReadBuildInfo()
	if !ok {
		return out
	}

	out.GoVersion = z.GoVersion
	out.Package = z.Path
	out.Version = z.Main.Version
	for _, s := range z.Settings {
		switch s.Key {
		case "vcs.revision":
			out.Commit = s.Value
		case "vcs.time":
			out.CommitTime = s.Value
		case "vcs.modified":
			out.Modified = s.Value == "true"
		}
	}

	return out
}

func PrintToStdErr() {
	fmt.Fprintf(os.Stderr, "%s\n", Get())
}
