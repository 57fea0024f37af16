// Package version carries build metadata reported by the CLI and by the
// MCP initialize handshake.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

// ServerName is the implementation name advertised to MCP hosts.
const ServerName = "java-architect-superpowers"

var (
	// Version is overridden at build time with -ldflags.
	Version = "1.0.0"

	// GitCommit is the commit the binary was built from.
	GitCommit = "unknown"
)

// Info represents version information
type Info struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	GoVersion string `json:"goVersion"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Name:      ServerName,
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, %s)", i.Name, i.Version, i.GitCommit, i.GoVersion)
}

// JSON returns the indented JSON form of i.
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
