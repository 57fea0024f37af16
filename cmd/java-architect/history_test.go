package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zmlgit/java-architect-skills/pkg/runs"
)

func TestRenderRunsTable(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)
	list := []runs.Run{
		{
			ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
			Target:     "/work/orders",
			Status:     runs.StatusSucceeded,
			ExitCode:   4,
			Violations: 12,
			StartedAt:  started,
			FinishedAt: &finished,
		},
		{
			ID:        "7c9e6679",
			Target:    "/work/billing",
			Status:    runs.StatusRunning,
			StartedAt: started,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, renderRunsTable(&buf, list))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Equal(t, []string{"0f8fad5b", started.Local().Format(time.RFC3339), "succeeded", "4", "12", "1.5s", "/work/orders"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"7c9e6679", started.Local().Format(time.RFC3339), "running", "0", "0", "-", "/work/billing"}, strings.Fields(lines[3]))
}

func TestRenderRunsTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderRunsTable(&buf, nil))
	assert.Equal(t, "No analysis runs recorded.\n", buf.String())
}

func TestRenderRunsJSON_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, renderRunsJSON(&buf, nil))

	var decoded map[string][]runs.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.NotNil(t, decoded["runs"])
	assert.Empty(t, decoded["runs"])
	assert.Contains(t, buf.String(), `"runs": []`)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f8fad5b", shortID("0f8fad5b-d9cb-469f-a165-70867728950e"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestRunRecorder(t *testing.T) {
	ctx := context.Background()
	config := NewAnalyzeConfig()
	config.StoragePath = filepath.Join(t.TempDir(), "storage.db")

	ok := startRecording(ctx, config, "spring_reviewer", "/work/orders", "/skills/spring_reviewer/config/critical-rules.xml")
	ok.finish(ctx, 4, 3, nil)
	ok.close()

	failed := startRecording(ctx, config, "spring_reviewer", "/work/billing", "/rules.xml")
	failed.finish(ctx, 1, 0, errors.New("pmd exited with code 1"))
	failed.close()

	store, err := runs.Open(ctx, config.StoragePath)
	require.NoError(t, err)
	defer store.Close()

	okRun, err := store.Get(ctx, ok.id)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusSucceeded, okRun.Status)
	assert.Equal(t, 4, okRun.ExitCode)
	assert.Equal(t, 3, okRun.Violations)
	assert.NotNil(t, okRun.FinishedAt)

	failedRun, err := store.Get(ctx, failed.id)
	require.NoError(t, err)
	assert.Equal(t, runs.StatusFailed, failedRun.Status)
	assert.Equal(t, "pmd exited with code 1", failedRun.Error)
}

func TestRunRecorder_Disabled(t *testing.T) {
	config := NewAnalyzeConfig()
	config.StorageEnabled = false
	config.StoragePath = filepath.Join(t.TempDir(), "storage.db")

	r := startRecording(context.Background(), config, "spring_reviewer", "/work", "/rules.xml")
	assert.Nil(t, r.store)
	r.finish(context.Background(), 0, 0, nil)
	r.close()
	assert.NoFileExists(t, config.StoragePath)
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.db")
	viper.Set("storage.path", path)
	t.Cleanup(func() { viper.Set("storage.path", "") })

	config := NewAnalyzeConfig()
	config.StoragePath = path
	for _, target := range []string{"/work/a", "/work/b", "/work/c"} {
		r := startRecording(ctx, config, "spring_reviewer", target, "/rules.xml")
		r.finish(ctx, 0, 0, nil)
		r.close()
	}

	var buf bytes.Buffer
	require.NoError(t, runHistory(ctx, &HistoryConfig{Limit: 2, JSONOutput: true}, &buf))

	var decoded struct {
		Runs []runs.Run `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Runs, 2)
	for _, run := range decoded.Runs {
		assert.Equal(t, runs.StatusSucceeded, run.Status)
		assert.Equal(t, "spring_reviewer", run.Skill)
	}

	buf.Reset()
	require.NoError(t, runHistory(ctx, NewHistoryConfig(), &buf))
	assert.Contains(t, buf.String(), "/work/a")
	assert.Contains(t, buf.String(), "/work/c")
}

func TestRunHistoryShow(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "storage.db")
	viper.Set("storage.path", path)
	t.Cleanup(func() { viper.Set("storage.path", "") })

	config := NewAnalyzeConfig()
	config.StoragePath = path
	r := startRecording(ctx, config, "spring_reviewer", "/work/orders", "/rules.xml")
	r.finish(ctx, 1, 0, errors.New("pmd exited with code 1"))
	r.close()

	var buf bytes.Buffer
	require.NoError(t, runHistoryShow(ctx, &HistoryConfig{JSONOutput: true}, r.id, &buf))
	var run runs.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &run))
	assert.Equal(t, r.id, run.ID)
	assert.Equal(t, runs.StatusFailed, run.Status)
	assert.Equal(t, "pmd exited with code 1", run.Error)

	buf.Reset()
	require.NoError(t, runHistoryShow(ctx, NewHistoryConfig(), shortID(r.id), &buf))
	assert.Contains(t, buf.String(), r.id)
	assert.Contains(t, buf.String(), "/work/orders")

	err := runHistoryShow(ctx, NewHistoryConfig(), "ffffffff", &buf)
	assert.ErrorContains(t, err, "not found")
}

func TestRenderRunDetail(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	finished := started.Add(2 * time.Second)

	var buf bytes.Buffer
	require.NoError(t, renderRunDetail(&buf, runs.Run{
		ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		Skill:      "spring_reviewer",
		Target:     "/work/orders",
		Rules:      "/rules.xml",
		Status:     runs.StatusSucceeded,
		ExitCode:   4,
		Violations: 12,
		StartedAt:  started,
		FinishedAt: &finished,
	}))

	fields := map[string]string{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		key, value, ok := strings.Cut(line, ":")
		require.True(t, ok, line)
		fields[key] = strings.TrimSpace(value)
	}
	assert.Equal(t, "spring_reviewer", fields["Skill"])
	assert.Equal(t, "4", fields["Exit"])
	assert.Equal(t, "12", fields["Violations"])
	assert.Equal(t, "2s", fields["Duration"])
	assert.NotContains(t, fields, "Error")

	buf.Reset()
	require.NoError(t, renderRunDetail(&buf, runs.Run{ID: "7c9e6679", Status: runs.StatusRunning, StartedAt: started}))
	assert.Regexp(t, `Finished:\s+-\n`, buf.String())
}
