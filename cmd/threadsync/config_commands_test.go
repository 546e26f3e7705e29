package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"threadsync/internal/threads"
)

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	cmd := newConfigInitCommand()
	cmd.SetArgs([]string{"--output", target})
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init failed: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("sample not written: %v", err)
	}
	if !strings.Contains(string(data), "[server]") || !strings.Contains(string(data), "[sync]") {
		t.Fatalf("sample missing sections:\n%s", data)
	}

	// A second init without --overwrite must refuse.
	again := newConfigInitCommand()
	again.SetArgs([]string{"--output", target})
	again.SetOut(&out)
	if err := again.Execute(); err == nil {
		t.Fatal("expected second init to fail without --overwrite")
	}
}

func TestConfigPathPrintsDefault(t *testing.T) {
	cmd := newConfigPathCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.Contains(out.String(), "threadsync") || !strings.HasSuffix(strings.TrimSpace(out.String()), "config.toml") {
		t.Fatalf("unexpected path: %q", out.String())
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"threads", "draft", "upload", "run", "retry", "export", "watch", "balance", "config"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Fatalf("command %q not registered: %v", name, err)
		}
	}
}

func TestSummarizeStatusOrdering(t *testing.T) {
	if got := summarizeStatus(nil); got != "-" {
		t.Fatalf("nil item = %q", got)
	}
	item := &threads.ChatItem{
		Status: threads.ItemStatus{
			Transcribe: &threads.OpStatus{State: threads.OpDone},
			Translate: &threads.TranslateStatus{ByLang: map[string]*threads.OpStatus{
				"fr": {State: threads.OpRunning},
				"es": {State: threads.OpQueued},
			}},
		},
	}
	got := summarizeStatus(item)
	want := "transcribe done, translate:es queued, translate:fr running"
	if got != want {
		t.Fatalf("status = %q, want %q", got, want)
	}
}
