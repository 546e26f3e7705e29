package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	textlang "golang.org/x/text/language"

	"threadsync/internal/threads"
	"threadsync/internal/upload"
)

const defaultConnectTimeout = 20 * time.Second

var titleCaser = cases.Title(textlang.English)

func commandTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}

func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// terminalProgress returns an upload progress printer, or nil when
// stdout is not a terminal so piped output stays clean.
func terminalProgress() func(upload.Progress) {
	if !stdoutIsTerminal() {
		return nil
	}
	return func(p upload.Progress) {
		stage := p.Stage
		if stage == "" {
			stage = "sending"
		}
		fmt.Printf("\r%-10s %5.1f%%", titleCaser.String(stage), p.Pct)
		if p.Stage == "complete" {
			fmt.Println()
		}
	}
}

func formatWhen(at time.Time) string {
	if at.IsZero() {
		return "-"
	}
	return at.Local().Format("2006-01-02 15:04")
}

// summarizeStatus renders a compact per-item status cell like
// "transcribe done, translate:es running".
func summarizeStatus(item *threads.ChatItem) string {
	if item == nil {
		return "-"
	}
	var parts []string
	if st := item.Status.Transcribe; st != nil {
		parts = append(parts, "transcribe "+string(st.State))
	}
	if ts := item.Status.Translate; ts != nil {
		langs := make([]string, 0, len(ts.ByLang))
		for lang := range ts.ByLang {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		for _, lang := range langs {
			parts = append(parts, "translate:"+lang+" "+string(ts.ByLang[lang].State))
		}
	}
	if st := item.Status.Summarize; st != nil {
		parts = append(parts, "summarize "+string(st.State))
	}
	if len(parts) == 0 {
		return "idle"
	}
	return strings.Join(parts, ", ")
}

func countReadyFiles(t *threads.Thread) int {
	n := 0
	for _, f := range t.Draft.Files {
		if f.Stage.Ready() {
			n++
		}
	}
	return n
}
