//go:build unix

package binaries

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakePMDScript = "#!/bin/sh\necho \"PMD 7.0.0 (fake)\"\n"

func buildZip(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o644)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func pmdArchive(t *testing.T, script string) []byte {
	return buildZip(t, map[string]string{
		"pmd-bin-7.0.0/bin/pmd":       script,
		"pmd-bin-7.0.0/lib/pmd.jar":   "jar",
		"pmd-bin-7.0.0/LICENSE":       "BSD",
		"pmd-bin-7.0.0/conf/ruleset/": "",
	})
}

type countingServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newServer(t *testing.T, status int, body []byte) *countingServer {
	t.Helper()
	cs := &countingServer{}
	cs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.hits.Add(1)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(status)
		_, _ = w.Write(body)
	}))
	t.Cleanup(cs.Close)
	return cs
}

func testSpec(t *testing.T, servers ...*countingServer) Spec {
	t.Helper()
	urls := make([]string, 0, len(servers))
	for _, s := range servers {
		urls = append(urls, s.URL+"/pmd-dist-{version}-bin.zip")
	}
	spec, err := PMDSpec(PMDOptions{ToolsDir: filepath.Join(t.TempDir(), "tools"), Mirrors: urls})
	require.NoError(t, err)
	return spec
}

type stateLog struct {
	mu     sync.Mutex
	states []State
	errs   []error
}

func (l *stateLog) record(s State, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, s)
	l.errs = append(l.errs, err)
}

func TestEnsure_MirrorFallback(t *testing.T) {
	failing := newServer(t, http.StatusInternalServerError, nil)
	missing := newServer(t, http.StatusNotFound, []byte("not found"))
	good := newServer(t, http.StatusOK, pmdArchive(t, fakePMDScript))
	never := newServer(t, http.StatusOK, pmdArchive(t, fakePMDScript))

	spec := testSpec(t, failing, missing, good, never)
	log := &stateLog{}
	p := NewProvisioner(spec, WithStateFunc(log.record))

	inst, err := p.Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, spec.BinaryPath(), inst.BinaryPath)
	assert.Equal(t, "PMD 7.0.0 (fake)", inst.Reported)
	assert.Equal(t, int32(1), failing.hits.Load())
	assert.Equal(t, int32(1), missing.hits.Load())
	assert.Equal(t, int32(1), good.hits.Load())
	assert.Equal(t, int32(0), never.hits.Load())

	info, err := os.Stat(spec.BinaryPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	assert.FileExists(t, filepath.Join(spec.InstallDir(), "lib", "pmd.jar"))
	assert.NoFileExists(t, spec.ArchivePath())

	assert.Equal(t, []State{StateAbsent, StateDownloading, StateExtracting, StateVerifying, StateInstalled}, log.states)
}

func TestEnsure_AllMirrorsFail(t *testing.T) {
	first := newServer(t, http.StatusBadGateway, nil)
	second := newServer(t, http.StatusForbidden, nil)
	spec := testSpec(t, first, second)
	log := &stateLog{}

	_, err := NewProvisioner(spec, WithStateFunc(log.record)).Ensure(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMirrorsExhausted)
	assert.Equal(t, int32(1), first.hits.Load())
	assert.Equal(t, int32(1), second.hits.Load())
	assert.NoFileExists(t, spec.BinaryPath())
	assert.NoDirExists(t, spec.InstallDir())
	assert.NoFileExists(t, spec.ArchivePath())

	require.NotEmpty(t, log.states)
	assert.Equal(t, StateFailed, log.states[len(log.states)-1])
	assert.ErrorIs(t, log.errs[len(log.errs)-1], ErrMirrorsExhausted)
	assert.NotContains(t, log.states, StateExtracting)
}

func TestEnsure_NoMirrors(t *testing.T) {
	spec := testSpec(t)
	spec.Mirrors = nil

	_, err := NewProvisioner(spec).Ensure(context.Background())
	assert.ErrorIs(t, err, ErrMirrorsExhausted)
}

func TestEnsure_IdempotentWithoutNetwork(t *testing.T) {
	server := newServer(t, http.StatusOK, pmdArchive(t, fakePMDScript))
	spec := testSpec(t, server)

	_, err := NewProvisioner(spec).Ensure(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), server.hits.Load())

	log := &stateLog{}
	inst, err := NewProvisioner(spec, WithStateFunc(log.record)).Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), server.hits.Load())
	assert.Equal(t, spec.BinaryPath(), inst.BinaryPath)
	assert.Empty(t, inst.Reported)
	assert.Equal(t, []State{StateInstalled}, log.states)
}

func TestEnsure_PreinstalledBinary(t *testing.T) {
	server := newServer(t, http.StatusOK, nil)
	spec := testSpec(t, server)
	require.NoError(t, os.MkdirAll(filepath.Dir(spec.BinaryPath()), 0o755))
	require.NoError(t, os.WriteFile(spec.BinaryPath(), []byte(fakePMDScript), 0o755))

	p := NewProvisioner(spec)
	assert.Equal(t, StateInstalled, p.CurrentState())

	_, err := p.Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(0), server.hits.Load())
}

func TestEnsure_CorruptArchive(t *testing.T) {
	server := newServer(t, http.StatusOK, []byte("this is not a zip file"))
	spec := testSpec(t, server)
	log := &stateLog{}

	_, err := NewProvisioner(spec, WithStateFunc(log.record)).Ensure(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "extraction failed")
	assert.NoDirExists(t, spec.InstallDir())
	assert.Contains(t, log.states, StateExtracting)
	assert.NotContains(t, log.states, StateVerifying)

	entries, err := os.ReadDir(spec.ToolsDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "staging data must be cleaned up")
}

func TestEnsure_ArchiveWithoutBinary(t *testing.T) {
	server := newServer(t, http.StatusOK, buildZip(t, map[string]string{"pmd-bin-7.0.0/LICENSE": "BSD"}))
	spec := testSpec(t, server)
	log := &stateLog{}

	_, err := NewProvisioner(spec, WithStateFunc(log.record)).Ensure(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bin/pmd")
	assert.NoDirExists(t, spec.InstallDir())
	assert.NotContains(t, log.states, StateVerifying)
	assert.Equal(t, StateFailed, log.states[len(log.states)-1])
}

func TestEnsure_VerificationFailureRemovesInstall(t *testing.T) {
	server := newServer(t, http.StatusOK, pmdArchive(t, "#!/bin/sh\necho broken >&2\nexit 3\n"))
	spec := testSpec(t, server)
	log := &stateLog{}

	_, err := NewProvisioner(spec, WithStateFunc(log.record)).Ensure(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "verification failed")
	assert.Contains(t, err.Error(), "broken")
	assert.NoFileExists(t, spec.BinaryPath())
	assert.Contains(t, log.states, StateVerifying)
	assert.Equal(t, StateFailed, log.states[len(log.states)-1])
}

func TestEnsure_ChecksumMismatchFallsThrough(t *testing.T) {
	archive := pmdArchive(t, fakePMDScript)
	sum := sha256.Sum256(archive)

	tampered := newServer(t, http.StatusOK, pmdArchive(t, "#!/bin/sh\necho tampered\n"))
	genuine := newServer(t, http.StatusOK, archive)
	spec := testSpec(t, tampered, genuine)
	spec.SHA256 = hex.EncodeToString(sum[:])

	inst, err := NewProvisioner(spec).Ensure(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PMD 7.0.0 (fake)", inst.Reported)
	assert.Equal(t, int32(1), tampered.hits.Load())
	assert.Equal(t, int32(1), genuine.hits.Load())
}

func TestEnsure_ReportsProgress(t *testing.T) {
	archive := pmdArchive(t, fakePMDScript)
	server := newServer(t, http.StatusOK, archive)
	spec := testSpec(t, server)

	var last Progress
	_, err := NewProvisioner(spec, WithProgressFunc(func(p Progress) { last = p })).Ensure(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(len(archive)), last.Written)
	assert.Equal(t, int64(len(archive)), last.Total)
	assert.Equal(t, NewHTTPMirror(server.URL).Name(), last.Mirror)
}

func TestEnsure_ConcurrentCallsShareOneDownload(t *testing.T) {
	server := newServer(t, http.StatusOK, pmdArchive(t, fakePMDScript))
	p := NewProvisioner(testSpec(t, server))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = p.Ensure(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), server.hits.Load())
}

func TestExtractArchive_RejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	require.NoError(t, os.WriteFile(archive, buildZip(t, map[string]string{"../escape.txt": "x"}), 0o644))

	err := extractArchive(archive, filepath.Join(dir, "out"))
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "escape.txt"))
}

func TestExtractArchive_UnsupportedFormat(t *testing.T) {
	err := extractArchive("pmd.rar", t.TempDir())
	assert.ErrorContains(t, err, "unsupported archive format")
}

func TestExtractArchive_TarGz(t *testing.T) {
	dir := t.TempDir()

	var buf bytes.Buffer
	gzw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gzw)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pmd-bin-7.0.0/", Typeflag: tar.TypeDir, Mode: 0o755}))
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "pmd-bin-7.0.0/bin/pmd", Typeflag: tar.TypeReg, Mode: 0o755, Size: int64(len(fakePMDScript))}))
	_, err := tw.Write([]byte(fakePMDScript))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, gzw.Close())

	archive := filepath.Join(dir, "pmd.tar.gz")
	require.NoError(t, os.WriteFile(archive, buf.Bytes(), 0o644))

	out := filepath.Join(dir, "out")
	require.NoError(t, extractArchive(archive, out))

	data, err := os.ReadFile(filepath.Join(out, "pmd-bin-7.0.0", "bin", "pmd"))
	require.NoError(t, err)
	assert.Equal(t, fakePMDScript, string(data))
}
