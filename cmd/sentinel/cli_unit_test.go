// Unit tests for flag plumbing and exit gating. These never touch the
// filesystem; the end-to-end coverage lives in cli_e2e_test.go.

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantheon-ops/sentinel/services/agent/config"
	"github.com/pantheon-ops/sentinel/services/agent/report"
)

func TestChanged_TracksExplicitFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	var limit int
	cmd.Flags().IntVar(&limit, "limit", 3, "")

	assert.False(t, changed(cmd, "limit"))
	require.NoError(t, cmd.Flags().Set("limit", "9"))
	assert.True(t, changed(cmd, "limit"))
	assert.False(t, changed(cmd, "no-such-flag"))
}

func TestChanged_SeesInheritedPersistentFlags(t *testing.T) {
	parent := &cobra.Command{Use: "parent"}
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	parent.AddCommand(child)

	var tag string
	parent.PersistentFlags().StringVar(&tag, "tag", "", "")

	assert.False(t, changed(child, "tag"))
	require.NoError(t, parent.PersistentFlags().Set("tag", "x"))
	assert.True(t, changed(child, "tag"))
}

func TestBuildOverrides_ForwardsOnlyExplicitValues(t *testing.T) {
	origBase, origPatch := baseDir, patchFiles
	origHistory := historyLimit
	defer func() {
		baseDir, patchFiles, historyLimit = origBase, origPatch, origHistory
	}()

	baseDir = "/srv/audit"
	patchFiles = []string{"extra.json"}

	o := buildOverrides(runCmd)
	assert.Equal(t, "/srv/audit", o.BaseDir)
	assert.Equal(t, []string{"extra.json"}, o.PatchFiles)
	assert.Nil(t, o.HistoryLimit,
		"an untouched flag default must not override the config file")
	assert.Nil(t, o.SnapshotRetention)
	assert.Nil(t, o.Lock)

	require.NoError(t, rootCmd.PersistentFlags().Set("history-limit", "5"))
	o = buildOverrides(runCmd)
	require.NotNil(t, o.HistoryLimit)
	assert.Equal(t, 5, *o.HistoryLimit)
}

func TestBuildOverrides_NoLockBeatsLock(t *testing.T) {
	origLock, origNoLock := lockState, noLockState
	defer func() { lockState, noLockState = origLock, origNoLock }()

	require.NoError(t, rootCmd.PersistentFlags().Set("lock", "true"))
	require.NoError(t, rootCmd.PersistentFlags().Set("no-lock", "true"))

	o := buildOverrides(runCmd)
	require.NotNil(t, o.Lock)
	assert.False(t, *o.Lock)
}

func TestGateReason(t *testing.T) {
	origChange, origMissing := exitOnChange, exitOnMissing
	defer func() { exitOnChange, exitOnMissing = origChange, origMissing }()

	changedRes := &report.Result{ChangedFiles: []string{"a.json"}}
	missingRes := &report.Result{MissingFiles: []string{"b.json"}}
	bothRes := &report.Result{
		ChangedFiles: []string{"a.json"},
		MissingFiles: []string{"b.json"},
	}

	tests := []struct {
		name      string
		onChange  bool
		onMissing bool
		res       *report.Result
		want      string
	}{
		{"gates disabled", false, false, bothRes, ""},
		{"change gate fires", true, false, changedRes, "change"},
		{"missing gate fires", false, true, missingRes, "missing patch"},
		{"change wins when both trip", true, true, bothRes, "change"},
		{"idle run never gates", true, true, &report.Result{}, ""},
		{"missing alone leaves change gate quiet", true, false, missingRes, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exitOnChange, exitOnMissing = tt.onChange, tt.onMissing
			assert.Equal(t, tt.want, gateReason(tt.res))
		})
	}
}

func TestVersionCommand_Output(t *testing.T) {
	out := captureStdout(t, func() {
		runVersionCommand(versionCmd, nil)
	})

	assert.Contains(t, out, "sentinel "+config.Version)

	info := report.GatherRuntimeInfo()
	assert.Contains(t, out, info.GoVersion)
	assert.Contains(t, out, info.Platform)
}

func TestRootHelp_ListsCommands(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	defer rootCmd.SetOut(nil)

	resetCLIState()
	rootCmd.SetArgs([]string{"--help"})
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))

	out := buf.String()
	for _, want := range []string{
		"run", "loop", "status", "history", "snapshots", "journal", "serve", "version",
	} {
		assert.Contains(t, out, want)
	}
}

func TestUnknownCommand_Fails(t *testing.T) {
	resetCLIState()
	rootCmd.SetArgs([]string{"not-a-command"})
	err := rootCmd.ExecuteContext(context.Background())
	require.Error(t, err)
}
