package version

import (
	"runtime/debug"
	"sync"

	"github.com/kbukum/flowkit/logger"
)

// Set at build time through -ldflags.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

const modulePath = "github.com/kbukum/flowkit"

// Info describes the binary running the pipelines.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
	// Flowkit is the engine version the binary was built against.
	Flowkit string `json:"flowkit,omitempty"`
}

var readBuildInfo = sync.OnceValues(debug.ReadBuildInfo)

// Get returns the build information of the running binary.
func Get() Info {
	bi, ok := readBuildInfo()
	if !ok {
		bi = nil
	}
	return resolve(bi)
}

// resolve merges the -ldflags values with bi, which may be nil. The
// -ldflags values win.
func resolve(bi *debug.BuildInfo) Info {
	info := Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
	if bi != nil {
		info.GoVersion = bi.GoVersion
		info.Flowkit = engineVersion(bi)
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			}
		}
	}
	if len(info.Commit) > 7 {
		info.Commit = info.Commit[:7]
	}
	return info
}

func engineVersion(bi *debug.BuildInfo) string {
	if bi.Main.Path == modulePath {
		return bi.Main.Version
	}
	for _, dep := range bi.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil && dep.Replace.Version != "" {
			return dep.Replace.Version
		}
		return dep.Version
	}
	return ""
}

// Short formats the release with the abbreviated commit, marking builds
// from modified trees: "v1.4.0-3f2a9c1-dirty".
func (i Info) Short() string {
	s := i.Version
	if i.Commit != "" {
		s += "-" + i.Commit
		if i.Modified {
			s += "-dirty"
		}
	}
	return s
}

// Short is Get().Short().
func Short() string {
	return Get().Short()
}

// Fields returns the build information as logger fields, leaving out
// unknown values.
func (i Info) Fields() map[string]interface{} {
	fields := logger.Fields("version", i.Version)
	for k, v := range map[string]string{
		"commit":     i.Commit,
		"build_time": i.BuildTime,
		"go_version": i.GoVersion,
		"flowkit":    i.Flowkit,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	if i.Modified {
		fields["modified"] = true
	}
	return fields
}
