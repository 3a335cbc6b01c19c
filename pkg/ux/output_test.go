// Copyright (C) 2026 Pantheon Ops (dev@pantheon-ops.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Icons that don't carry semantic styling render as themselves
	icons := []Icon{IconArrow, IconBullet, IconDelta, IconSigma}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// ChangeIcon Tests
// =============================================================================

func TestChangeIcon(t *testing.T) {
	tests := []struct {
		status string
		want   Icon
	}{
		{"added", IconAdded},
		{"modified", IconModified},
		{"removed", IconRemoved},
		{"missing", IconMissing},
		{"unchanged", IconPending},
		{"", IconPending},
	}

	for _, tt := range tests {
		if got := ChangeIcon(tt.status); got != tt.want {
			t.Errorf("ChangeIcon(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("Sentinel Run")
	})

	// In machine mode, Title should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_StandardMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityStandard)

	output := captureStdout(func() {
		Title("Sentinel Run")
	})

	if output == "" {
		t.Error("expected styled output in standard mode")
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("run complete")
	})

	if output != "OK: run complete\n" {
		t.Errorf("expected 'OK: run complete', got %q", output)
	}
}

func TestSuccess_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Success("run complete")
	})

	if output == "" {
		t.Error("expected non-empty output in minimal mode")
	}
}

// =============================================================================
// Warning / Error Tests
// =============================================================================

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("2 patch files missing")
	})

	if output != "WARN: 2 patch files missing\n" {
		t.Errorf("expected 'WARN: 2 patch files missing', got %q", output)
	}
}

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("state save failed")
	})

	if output != "ERROR: state save failed\n" {
		t.Errorf("expected 'ERROR: state save failed', got %q", output)
	}
}

// =============================================================================
// Info / Muted Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("snapshot saved")
	})

	if output != "snapshot saved\n" {
		t.Errorf("expected plain text in machine mode, got %q", output)
	}
}

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("state/patch_snapshots")
	})

	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Status", "ok")
	})

	if output != "Status: ok\n" {
		t.Errorf("expected 'Status: ok', got %q", output)
	}
}

func TestWarningBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		WarningBox("Missing", "Patches 1-25")
	})

	if output != "WARN Missing: Patches 1-25\n" {
		t.Errorf("expected machine warning box, got %q", output)
	}
}

// =============================================================================
// FileStatus Tests
// =============================================================================

func TestFileStatus_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		FileStatus("patches.json", IconModified, "digest changed")
	})

	if !strings.Contains(output, "patches.json") {
		t.Errorf("expected file name in output, got %q", output)
	}
	if !strings.Contains(output, "digest changed") {
		t.Errorf("expected detail in output, got %q", output)
	}
}

func TestFileStatus_StandardMode_NoDetail(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityStandard)

	output := captureStdout(func() {
		FileStatus("patches.json", IconAdded, "")
	})

	if !strings.Contains(output, "patches.json") {
		t.Errorf("expected file name in output, got %q", output)
	}
	if strings.Contains(output, "()") {
		t.Errorf("empty detail should not render parens, got %q", output)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(2, 1, 4)
	})

	if output != "SUMMARY: changed=2 missing=1 tracked=4\n" {
		t.Errorf("unexpected machine summary: %q", output)
	}
}

func TestSummary_StandardMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityStandard)

	output := captureStdout(func() {
		Summary(2, 1, 4)
	})

	for _, want := range []string{"changed", "missing", "tracked"} {
		if !strings.Contains(output, want) {
			t.Errorf("summary missing %q: %q", want, output)
		}
	}
}

