// Package binaries provisions pinned external analyzers such as PMD. A
// Provisioner walks Absent, Downloading, Extracting, Verifying and Installed,
// trying an ordered list of mirrors and leaving nothing half-installed when
// any stage fails.
package binaries

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/zmlgit/java-architect-skills/pkg/logger"
	"github.com/zmlgit/java-architect-skills/pkg/osutil"
	"github.com/zmlgit/java-architect-skills/pkg/telemetry"
)

const (
	// DefaultVerifyTimeout bounds the post-install --version check.
	DefaultVerifyTimeout = 10 * time.Second
	// DefaultDownloadTimeout bounds a single mirror download.
	DefaultDownloadTimeout = 5 * time.Minute
)

// ErrMirrorsExhausted is returned once every configured mirror has failed.
var ErrMirrorsExhausted = errors.New("all download mirrors exhausted")

// State is a provisioning stage.
type State int

const (
	StateAbsent State = iota
	StateDownloading
	StateExtracting
	StateVerifying
	StateInstalled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateDownloading:
		return "downloading"
	case StateExtracting:
		return "extracting"
	case StateVerifying:
		return "verifying"
	case StateInstalled:
		return "installed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Spec describes one pinned binary distribution.
type Spec struct {
	Name            string
	Version         string
	ToolsDir        string   // parent of the install directory
	InstallDirName  string   // top-level directory inside the archive, e.g. pmd-bin-7.0.0
	BinaryRelPath   string   // launcher path relative to the install directory
	ArchiveName     string   // staging archive file name inside ToolsDir
	Mirrors         []Mirror // tried in order
	SHA256          string   // optional archive checksum
	VerifyArgs      []string
	VerifyTimeout   time.Duration
	DownloadTimeout time.Duration // per mirror attempt
}

// InstallDir returns the directory the distribution is installed into.
func (s Spec) InstallDir() string {
	return filepath.Join(s.ToolsDir, s.InstallDirName)
}

// BinaryPath returns the launcher path once installed.
func (s Spec) BinaryPath() string {
	return filepath.Join(s.InstallDir(), s.BinaryRelPath)
}

// ArchivePath returns the staging archive path.
func (s Spec) ArchivePath() string {
	return filepath.Join(s.ToolsDir, s.ArchiveName)
}

func (s Spec) key() string {
	return s.Name + "@" + s.Version
}

// Installation summarizes a provisioned binary.
type Installation struct {
	Name       string
	Version    string
	InstallDir string
	BinaryPath string
	Reported   string // first line of the --version output, empty when already installed
}

// StateFunc observes every state transition. err is set only for StateFailed.
type StateFunc func(state State, err error)

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithStateFunc registers a transition observer.
func WithStateFunc(fn StateFunc) Option {
	return func(p *Provisioner) {
		p.onState = fn
	}
}

// WithProgressFunc registers a download progress observer.
func WithProgressFunc(fn ProgressFunc) Option {
	return func(p *Provisioner) {
		p.onProgress = fn
	}
}

// Provisioner ensures a Spec is installed. Concurrent Ensure calls for the
// same binary share a single attempt.
type Provisioner struct {
	spec       Spec
	onState    StateFunc
	onProgress ProgressFunc
	group      singleflight.Group
}

// NewProvisioner creates a Provisioner for spec.
func NewProvisioner(spec Spec, opts ...Option) *Provisioner {
	if spec.VerifyTimeout <= 0 {
		spec.VerifyTimeout = DefaultVerifyTimeout
	}
	if spec.DownloadTimeout <= 0 {
		spec.DownloadTimeout = DefaultDownloadTimeout
	}
	if len(spec.VerifyArgs) == 0 {
		spec.VerifyArgs = []string{"--version"}
	}
	p := &Provisioner{spec: spec}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Spec returns the distribution being provisioned.
func (p *Provisioner) Spec() Spec {
	return p.spec
}

// Ensure returns the installed binary path, provisioning it first when it
// is absent. An existing binary short-circuits without network access.
func (p *Provisioner) Ensure(ctx context.Context) (Installation, error) {
	v, err, shared := p.group.Do(p.spec.key(), func() (any, error) {
		return p.ensure(ctx)
	})
	if shared {
		logger.G(ctx).WithField("binary", p.spec.Name).Debug("joined in-flight provisioning")
	}
	if err != nil {
		return Installation{}, err
	}
	return v.(Installation), nil
}

// CurrentState reports Installed when the binary is on disk and Absent
// otherwise.
func (p *Provisioner) CurrentState() State {
	if fileExists(p.spec.BinaryPath()) {
		return StateInstalled
	}
	return StateAbsent
}

func (p *Provisioner) installation(reported string) Installation {
	return Installation{
		Name:       p.spec.Name,
		Version:    p.spec.Version,
		InstallDir: p.spec.InstallDir(),
		BinaryPath: p.spec.BinaryPath(),
		Reported:   reported,
	}
}

func (p *Provisioner) ensure(ctx context.Context) (Installation, error) {
	log := logger.G(ctx).WithField("binary", p.spec.Name).WithField("version", p.spec.Version)

	if p.CurrentState() == StateInstalled {
		log.WithField("path", p.spec.BinaryPath()).Debug("binary already installed")
		p.transition(StateInstalled, nil)
		return p.installation(""), nil
	}
	p.transition(StateAbsent, nil)

	var reported string
	err := telemetry.WithSpan(ctx, "binaries.ensure", func(ctx context.Context) error {
		var err error
		reported, err = p.install(ctx)
		return err
	}, attribute.String("binary.name", p.spec.Name), attribute.String("binary.version", p.spec.Version))
	if err != nil {
		log.WithError(err).Error("provisioning failed")
		p.transition(StateFailed, err)
		return Installation{}, err
	}

	log.WithField("path", p.spec.BinaryPath()).Info("binary installed")
	p.transition(StateInstalled, nil)
	return p.installation(reported), nil
}

func (p *Provisioner) install(ctx context.Context) (string, error) {
	if err := os.MkdirAll(p.spec.ToolsDir, 0o755); err != nil {
		return "", errors.Wrap(err, "failed to create tools directory")
	}
	defer os.Remove(p.spec.ArchivePath())

	p.transition(StateDownloading, nil)
	if err := p.download(ctx); err != nil {
		return "", err
	}

	p.transition(StateExtracting, nil)
	if err := p.extract(ctx); err != nil {
		return "", errors.Wrap(err, "extraction failed")
	}

	p.transition(StateVerifying, nil)
	reported, err := p.verify(ctx)
	if err != nil {
		if rmErr := os.RemoveAll(p.spec.InstallDir()); rmErr != nil {
			logger.G(ctx).WithError(rmErr).Warn("failed to remove unverified installation")
		}
		return "", errors.Wrap(err, "verification failed")
	}
	return reported, nil
}

// download tries each mirror once, in order, stopping at the first success.
func (p *Provisioner) download(ctx context.Context) error {
	if len(p.spec.Mirrors) == 0 {
		return errors.Wrap(ErrMirrorsExhausted, "no mirrors configured")
	}

	archive := p.spec.ArchivePath()
	var attempts *multierror.Error

	for i, mirror := range p.spec.Mirrors {
		log := logger.G(ctx).WithField("mirror", mirror.Name()).WithField("attempt", i+1)
		log.Info("downloading")

		err := p.fetch(ctx, mirror, archive)
		if err == nil {
			telemetry.AddEvent(ctx, "mirror.succeeded", attribute.String("mirror", mirror.Name()))
			return nil
		}

		_ = os.Remove(archive)
		attempts = multierror.Append(attempts, errors.Wrapf(err, "mirror %s", mirror.Name()))
		telemetry.AddEvent(ctx, "mirror.failed", attribute.String("mirror", mirror.Name()))
		log.WithError(err).Warn("mirror failed")

		if ctx.Err() != nil {
			return errors.Wrap(ctx.Err(), "download interrupted")
		}
	}

	logger.G(ctx).WithError(attempts.ErrorOrNil()).Error("every mirror failed")
	return ErrMirrorsExhausted
}

func (p *Provisioner) fetch(ctx context.Context, mirror Mirror, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, p.spec.DownloadTimeout)
	defer cancel()

	progress := p.onProgress
	if progress != nil {
		name := mirror.Name()
		inner := progress
		progress = func(pr Progress) {
			pr.Mirror = name
			inner(pr)
		}
	}

	if err := mirror.Fetch(ctx, dest, progress); err != nil {
		return err
	}
	if p.spec.SHA256 == "" {
		return nil
	}

	actual, err := calculateFileChecksum(dest)
	if err != nil {
		return errors.Wrap(err, "failed to calculate checksum")
	}
	if !strings.EqualFold(actual, p.spec.SHA256) {
		return errors.Errorf("checksum mismatch: expected %s, got %s", p.spec.SHA256, actual)
	}
	return nil
}

// extract unpacks into a private staging directory and renames the install
// directory into place, so the binary path only ever appears complete.
func (p *Provisioner) extract(ctx context.Context) error {
	staging, err := os.MkdirTemp(p.spec.ToolsDir, "."+p.spec.InstallDirName+".partial-")
	if err != nil {
		return errors.Wrap(err, "failed to create staging directory")
	}
	defer os.RemoveAll(staging)

	if err := extractArchive(p.spec.ArchivePath(), staging); err != nil {
		return err
	}
	if err := os.Remove(p.spec.ArchivePath()); err != nil {
		return errors.Wrap(err, "failed to remove archive")
	}

	src := filepath.Join(staging, p.spec.InstallDirName)
	if !isDir(src) {
		return errors.Errorf("archive does not contain %s", p.spec.InstallDirName)
	}
	binary := filepath.Join(src, p.spec.BinaryRelPath)
	if !fileExists(binary) {
		return errors.Errorf("archive does not contain %s", filepath.ToSlash(filepath.Join(p.spec.InstallDirName, p.spec.BinaryRelPath)))
	}
	if err := os.Chmod(binary, 0o755); err != nil {
		return errors.Wrap(err, "failed to set binary permissions")
	}

	if err := os.RemoveAll(p.spec.InstallDir()); err != nil {
		return errors.Wrap(err, "failed to clear previous installation")
	}
	if err := os.Rename(src, p.spec.InstallDir()); err != nil {
		return errors.Wrap(err, "failed to move installation into place")
	}

	logger.G(ctx).WithField("path", p.spec.InstallDir()).Debug("archive extracted")
	return nil
}

func (p *Provisioner) verify(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.spec.VerifyTimeout)
	defer cancel()

	cmd := osutil.CommandContext(ctx, p.spec.BinaryPath(), p.spec.VerifyArgs...)
	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", errors.Errorf("%s %s timed out after %s", p.spec.Name, strings.Join(p.spec.VerifyArgs, " "), p.spec.VerifyTimeout)
	}
	if err != nil {
		return "", errors.Wrapf(err, "%s %s: %s", p.spec.Name, strings.Join(p.spec.VerifyArgs, " "), strings.TrimSpace(string(out)))
	}

	reported := firstLine(string(out))
	logger.G(ctx).WithField("reported", reported).Debug("binary verified")
	return reported, nil
}

func (p *Provisioner) transition(state State, err error) {
	if p.onState != nil {
		p.onState(state, err)
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
