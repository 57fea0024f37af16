package binaries

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// DefaultPMDVersion is the pinned PMD release.
	DefaultPMDVersion = "7.0.0"

	toolsDirName = ".spring-reviewer/tools"
	versionToken = "{version}"
)

// DefaultPMDMirrors are tried in this order. {version} is substituted.
var DefaultPMDMirrors = []string{
	"https://github.com/pmd/pmd/releases/download/pmd_releases%2F{version}/pmd-dist-{version}-bin.zip",
	"https://sourceforge.net/projects/pmd/files/pmd/{version}/pmd-dist-{version}-bin.zip/download",
	"https://repo1.maven.org/maven2/net/sourceforge/pmd/pmd-dist/{version}/pmd-dist-{version}-bin.zip",
}

// PMDOptions customizes PMDSpec. Zero values fall back to defaults.
type PMDOptions struct {
	Version         string
	ToolsDir        string
	Mirrors         []string
	SHA256          string
	VerifyTimeout   time.Duration
	DownloadTimeout time.Duration
}

// DefaultToolsDir returns ~/.spring-reviewer/tools.
func DefaultToolsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to get home directory")
	}
	return filepath.Join(home, toolsDirName), nil
}

// ExpandMirror substitutes version into a mirror URL template.
func ExpandMirror(template, version string) string {
	return strings.ReplaceAll(template, versionToken, version)
}

// PMDBinaryRelPath returns the launcher path inside the PMD distribution.
func PMDBinaryRelPath(goos string) string {
	if goos == "windows" {
		return filepath.Join("bin", "pmd.bat")
	}
	return filepath.Join("bin", "pmd")
}

// PMDSpec builds the provisioning Spec for a PMD distribution.
func PMDSpec(opts PMDOptions) (Spec, error) {
	version := opts.Version
	if version == "" {
		version = DefaultPMDVersion
	}

	toolsDir := opts.ToolsDir
	if toolsDir == "" {
		var err error
		if toolsDir, err = DefaultToolsDir(); err != nil {
			return Spec{}, err
		}
	}

	templates := opts.Mirrors
	if len(templates) == 0 {
		templates = DefaultPMDMirrors
	}
	mirrors := make([]Mirror, 0, len(templates))
	for _, tmpl := range templates {
		mirrors = append(mirrors, NewHTTPMirror(ExpandMirror(tmpl, version)))
	}

	return Spec{
		Name:            "pmd",
		Version:         version,
		ToolsDir:        toolsDir,
		InstallDirName:  "pmd-bin-" + version,
		BinaryRelPath:   PMDBinaryRelPath(runtime.GOOS),
		ArchiveName:     "pmd-" + version + ".zip",
		Mirrors:         mirrors,
		SHA256:          opts.SHA256,
		VerifyArgs:      []string{"--version"},
		VerifyTimeout:   opts.VerifyTimeout,
		DownloadTimeout: opts.DownloadTimeout,
	}, nil
}

// ManualInstallHint tells the user how to install the distribution by hand
// when every mirror failed.
func ManualInstallHint(spec Spec) string {
	return "Download pmd-dist-" + spec.Version + "-bin.zip manually and extract it so that " +
		spec.BinaryPath() + " exists"
}
