// Package version describes the gwprobe build. The gateway User-Agent and
// every saved report carry it, so a result can be traced to the harness
// build that produced it.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

const Name = "gwprobe"

// Set at build time, e.g.
// -ldflags "-X github.com/lkarlslund/gwprobe/pkg/version.Version=v0.3.0".
var (
	Version = "dev"
	Commit  = ""
	Date    = ""
	Dirty   = ""
)

type Build struct {
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
	Dirty   bool   `json:"dirty,omitempty"`
	Go      string `json:"go,omitempty"`
}

var current = sync.OnceValue(func() Build {
	bi, _ := debug.ReadBuildInfo()
	return resolve(bi)
})

// Current returns the build of the running binary.
func Current() Build { return current() }

// resolve prefers ldflags values and fills the gaps from the module build
// info, which covers `go install ...@version` builds.
func resolve(bi *debug.BuildInfo) Build {
	b := Build{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
		Dirty:   strings.EqualFold(strings.TrimSpace(Dirty), "true"),
	}
	if bi != nil {
		b.Go = bi.GoVersion
		if (b.Version == "" || b.Version == "dev") && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			b.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = s.Value
				}
			case "vcs.time":
				if b.Date == "" {
					b.Date = s.Value
				}
			case "vcs.modified":
				b.Dirty = b.Dirty || s.Value == "true"
			}
		}
	}
	if b.Version == "" {
		b.Version = "dev"
	}
	return b
}

// String is the compact form, e.g. v0.3.0+1a2b3c4d5e6f+dirty.
func (b Build) String() string {
	s := b.Version
	if c := b.ShortCommit(); c != "" {
		s += "+" + c
	}
	if b.Dirty {
		s += "+dirty"
	}
	return s
}

func (b Build) ShortCommit() string {
	if len(b.Commit) > 12 {
		return b.Commit[:12]
	}
	return b.Commit
}

// Detailed is the `gwprobe version` output.
func (b Build) Detailed() string {
	out := fmt.Sprintf("%s %s", Name, b.String())
	if b.Date != "" {
		out += "\nBuilt: " + b.Date
	}
	if b.Go != "" {
		out += "\nGo:    " + b.Go
	}
	return out
}

// UserAgent identifies the harness to the gateway under test.
func UserAgent() string { return Name + "/" + Current().String() }
