package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// Set with -ldflags at release time.
var (
	Version    = "v0.1.0"
	CommitHash = ""
)

const projectURL = "https://github.com/darmiel/warrant"

type Info struct {
	About      string `json:"about,omitempty"`
	Service    string `json:"service,omitempty"`
	Version    string `json:"version,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
	GoVersion  string `json:"go_version,omitempty"`
}

// GetBuildInfo falls back to the vcs revision recorded by the go tool when
// no commit was set at link time.
func GetBuildInfo() Info {
	info := Info{
		About:      projectURL,
		Service:    "Warrant",
		Version:    Version,
		CommitHash: CommitHash,
		GoVersion:  runtime.Version(),
	}
	if info.CommitHash == "" {
		info.CommitHash = vcsRevision()
	}
	return info
}

func vcsRevision() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return "unknown"
}

// UserAgent is sent with outbound requests, e.g. when fetching signing keys.
func UserAgent() string {
	return "warrant/" + Version + " (+" + projectURL + ")"
}
