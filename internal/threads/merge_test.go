package threads

import (
	"testing"
	"time"
)

func TestMergeDraftKeepsBusyLocalFiles(t *testing.T) {
	server := []DraftFile{{ItemID: "A", Stage: StageUploaded}}
	local := []DraftFile{
		{ItemID: "A", Stage: StageUploaded},
		{ItemID: "B", Stage: StageUploading},
	}

	merged := MergeDraft(server, local)
	if len(merged) != 2 {
		t.Fatalf("merged draft = %d files, want 2", len(merged))
	}
	if merged[0].ItemID != "A" || merged[0].Stage != StageUploaded {
		t.Errorf("merged[0] = %+v, want server copy of A", merged[0])
	}
	if merged[1].ItemID != "B" || merged[1].Stage != StageUploading {
		t.Errorf("merged[1] = %+v, want in-flight B", merged[1])
	}
}

func TestMergeDraftDropsStaleLocalFiles(t *testing.T) {
	// A local entry that is not busy and missing from the server list
	// must not be resurrected.
	server := []DraftFile{{ItemID: "A", Stage: StageUploaded}}
	local := []DraftFile{
		{ItemID: "A", Stage: StageUploading}, // server wins
		{ItemID: "C", Stage: StageLinked},    // stale, dropped
	}

	merged := MergeDraft(server, local)
	if len(merged) != 1 {
		t.Fatalf("merged draft = %d files, want 1", len(merged))
	}
	if merged[0].Stage != StageUploaded {
		t.Errorf("server stage should win, got %q", merged[0].Stage)
	}
}

func TestMergeDraftEmptyInputs(t *testing.T) {
	if got := MergeDraft(nil, nil); len(got) != 0 {
		t.Errorf("MergeDraft(nil, nil) = %v", got)
	}
	local := []DraftFile{{ItemID: "B", Stage: StageConverting}}
	got := MergeDraft(nil, local)
	if len(got) != 1 || got[0].ItemID != "B" {
		t.Errorf("busy local-only file should survive empty server list: %v", got)
	}
}

func TestMergeChatItemByLangSiblingsSurvive(t *testing.T) {
	existing := &ChatItem{
		ChatItemID: "c1",
		Status: ItemStatus{
			Translate: &TranslateStatus{ByLang: map[string]*OpStatus{
				"en": {State: OpDone},
			}},
		},
	}
	patch := &ChatItem{
		ChatItemID: "c1",
		Status: ItemStatus{
			Translate: &TranslateStatus{ByLang: map[string]*OpStatus{
				"fr": {State: OpQueued},
			}},
		},
	}

	merged := MergeChatItem(existing, patch)
	byLang := merged.Status.Translate.ByLang
	if got := byLang["en"]; got == nil || got.State != OpDone {
		t.Errorf("en = %+v, want done", got)
	}
	if got := byLang["fr"]; got == nil || got.State != OpQueued {
		t.Errorf("fr = %+v, want queued", got)
	}
}

func TestMergeChatItemOperationSiblingsSurvive(t *testing.T) {
	existing := &ChatItem{
		ChatItemID: "c1",
		Status: ItemStatus{
			Transcribe: &OpStatus{State: OpDone},
		},
		Results: Results{
			Transcript: &Transcript{Text: "hello"},
		},
	}
	patch := &ChatItem{
		ChatItemID: "c1",
		Status: ItemStatus{
			Summarize: &OpStatus{State: OpRunning},
		},
	}

	merged := MergeChatItem(existing, patch)
	if merged.Status.Transcribe == nil || merged.Status.Transcribe.State != OpDone {
		t.Error("transcribe status lost by summarize patch")
	}
	if merged.Status.Summarize == nil || merged.Status.Summarize.State != OpRunning {
		t.Error("summarize patch not applied")
	}
	if merged.Results.Transcript == nil || merged.Results.Transcript.Text != "hello" {
		t.Error("transcript result lost by status-only patch")
	}
}

func TestMergeChatItemLastWriterWinsTopLevel(t *testing.T) {
	created := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	existing := &ChatItem{ChatItemID: "c1", ItemID: "i1", Media: Media{Name: "a.mp3"}, CreatedAt: created}
	patch := &ChatItem{ChatItemID: "c1", Media: Media{Name: "b.mp3", DurationSec: 3}}

	merged := MergeChatItem(existing, patch)
	if merged.Media.Name != "b.mp3" {
		t.Errorf("media = %+v, want patch value", merged.Media)
	}
	if merged.ItemID != "i1" {
		t.Error("zero-valued patch field should not clear item id")
	}
	if !merged.CreatedAt.Equal(created) {
		t.Error("zero-valued patch timestamp should not clear created time")
	}
}

func TestMergeChatItemNormalizesLangKeys(t *testing.T) {
	patch := &ChatItem{
		ChatItemID: "c1",
		Status: ItemStatus{
			Translate: &TranslateStatus{ByLang: map[string]*OpStatus{
				"FRA": {State: OpRunning},
			}},
		},
		Results: Results{
			Translations: map[string]*Translation{"fr_FR": {Text: "bonjour"}},
		},
	}
	merged := MergeChatItem(nil, patch)
	if merged.Status.Translate.ByLang["fr"] == nil {
		t.Errorf("byLang keys = %v, want fr", merged.Status.Translate.ByLang)
	}
	if merged.Results.Translations["fr"] == nil {
		t.Errorf("translation keys = %v, want fr", merged.Results.Translations)
	}
}

func TestMergeChatItemsUnionAndOrder(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t2.Add(time.Hour)

	existing := []*ChatItem{
		{ChatItemID: "a", CreatedAt: t1, Media: Media{Name: "a"}},
		{ChatItemID: "b", CreatedAt: t3},
	}
	incoming := []*ChatItem{
		{ChatItemID: "a", Status: ItemStatus{Transcribe: &OpStatus{State: OpRunning}}},
		{ChatItemID: "c", CreatedAt: t2},
	}

	merged := MergeChatItems(existing, incoming)
	if len(merged) != 3 {
		t.Fatalf("merged = %d items, want union of 3", len(merged))
	}
	// Descending by creation time: b (t3), c (t2), a (t1).
	wantOrder := []string{"b", "c", "a"}
	for i, want := range wantOrder {
		if merged[i].ChatItemID != want {
			t.Errorf("merged[%d] = %q, want %q", i, merged[i].ChatItemID, want)
		}
	}
	// Fields never explicitly patched retain their last known value.
	for _, item := range merged {
		if item.ChatItemID == "a" {
			if item.Media.Name != "a" {
				t.Error("unpatched media lost during collection merge")
			}
			if item.Status.Transcribe == nil || item.Status.Transcribe.State != OpRunning {
				t.Error("patched status missing after collection merge")
			}
		}
	}
}

func TestMergeThreadSnapshotAuthoritative(t *testing.T) {
	local := &Thread{
		ID:    "t1",
		Title: "local title",
		Draft: Draft{Files: []DraftFile{
			{ItemID: "A", Stage: StageUploaded},
			{ItemID: "B", Stage: StageUploading},
		}},
		Server: Stamp{Version: 1, DraftRev: 1},
	}
	snapshot := &Thread{
		ID:     "t1",
		Title:  "server title",
		Draft:  Draft{Files: []DraftFile{{ItemID: "A", Stage: StageUploaded}}},
		Server: Stamp{Version: 2, DraftRev: 2},
	}

	merged := MergeThread(local, snapshot)
	if merged.Title != "server title" {
		t.Errorf("title = %q, want server value", merged.Title)
	}
	if !merged.Server.Equal(snapshot.Server) {
		t.Errorf("stamp = %+v, want snapshot stamp", merged.Server)
	}
	if len(merged.Draft.Files) != 2 {
		t.Errorf("draft = %d files, want in-flight B kept", len(merged.Draft.Files))
	}
}

func TestStampEqual(t *testing.T) {
	base := Stamp{UpdatedAt: "2026-01-01T00:00:00Z", DraftUpdatedAt: "2026-01-01T00:00:00Z", Version: 3, DraftRev: 7}
	tests := []struct {
		name  string
		other Stamp
		want  bool
	}{
		{"identical", base, true},
		{"updatedAt differs", Stamp{UpdatedAt: "x", DraftUpdatedAt: base.DraftUpdatedAt, Version: 3, DraftRev: 7}, false},
		{"draftUpdatedAt differs", Stamp{UpdatedAt: base.UpdatedAt, DraftUpdatedAt: "x", Version: 3, DraftRev: 7}, false},
		{"version differs", Stamp{UpdatedAt: base.UpdatedAt, DraftUpdatedAt: base.DraftUpdatedAt, Version: 4, DraftRev: 7}, false},
		{"draftRev differs", Stamp{UpdatedAt: base.UpdatedAt, DraftUpdatedAt: base.DraftUpdatedAt, Version: 3, DraftRev: 8}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSortThreadsByActivity(t *testing.T) {
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []*Thread{
		{ID: "old", UpdatedAt: t1},
		{ID: "draft-activity", UpdatedAt: t1, Draft: Draft{UpdatedAt: t1.Add(2 * time.Hour)}},
		{ID: "recent", UpdatedAt: t1.Add(time.Hour)},
	}
	SortThreads(list)
	want := []string{"draft-activity", "recent", "old"}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %q, want %q", i, list[i].ID, id)
		}
	}
}
