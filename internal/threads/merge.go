package threads

import (
	"sort"
	"time"

	"threadsync/internal/language"
)

// MergeDraft reconciles the server's draft file list with the local one.
// The server list wins for every item id it contains; local-only entries
// survive only while in a busy stage, so an in-flight upload is not
// erased by a snapshot that predates its completion, while stale local
// entries the server has already dropped are not resurrected.
func MergeDraft(server, local []DraftFile) []DraftFile {
	merged := make([]DraftFile, 0, len(server)+len(local))
	seen := make(map[string]struct{}, len(server))
	for _, f := range server {
		merged = append(merged, f)
		seen[f.ItemID] = struct{}{}
	}
	for _, f := range local {
		if _, ok := seen[f.ItemID]; ok {
			continue
		}
		if f.Stage.Busy() {
			merged = append(merged, f)
		}
	}
	return merged
}

// MergeChatItem reconciles an incoming chat item patch into an existing
// item. Top-level fields are last-writer-wins (a zero incoming value
// leaves the existing one untouched), except the per-operation status
// sub-objects and per-language result maps, which are deep-merged so an
// update to one operation or language never erases sibling data.
func MergeChatItem(existing, incoming *ChatItem) *ChatItem {
	if existing == nil {
		normalized := cloneChatItem(incoming)
		normalizeLangKeys(normalized)
		return normalized
	}
	if incoming == nil {
		return cloneChatItem(existing)
	}

	merged := cloneChatItem(existing)
	if incoming.ChatItemID != "" {
		merged.ChatItemID = incoming.ChatItemID
	}
	if incoming.ItemID != "" {
		merged.ItemID = incoming.ItemID
	}
	if incoming.Media != (Media{}) {
		merged.Media = incoming.Media
	}
	if !incoming.CreatedAt.IsZero() {
		merged.CreatedAt = incoming.CreatedAt
	}
	if !incoming.UpdatedAt.IsZero() {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	merged.Status = mergeStatus(merged.Status, incoming.Status)
	merged.Results = mergeResults(merged.Results, incoming.Results)
	merged.Billing = mergeBilling(merged.Billing, incoming.Billing)
	normalizeLangKeys(merged)
	return merged
}

// mergeStatus deep-merges per-operation status: each operation present
// in the patch replaces only that operation, and the translate byLang
// map is merged key-by-key.
func mergeStatus(existing, incoming ItemStatus) ItemStatus {
	out := existing
	if incoming.Transcribe != nil {
		out.Transcribe = cloneOpStatus(incoming.Transcribe)
	}
	if incoming.Summarize != nil {
		out.Summarize = cloneOpStatus(incoming.Summarize)
	}
	if incoming.Translate != nil {
		out.Translate = mergeByLang(out.Translate, incoming.Translate)
	}
	return out
}

// mergeByLang merges translate status one language at a time.
func mergeByLang(existing, incoming *TranslateStatus) *TranslateStatus {
	if incoming == nil {
		return existing
	}
	out := &TranslateStatus{ByLang: make(map[string]*OpStatus)}
	if existing != nil {
		for lang, st := range existing.ByLang {
			out.ByLang[language.Normalize(lang)] = cloneOpStatus(st)
		}
	}
	for lang, st := range incoming.ByLang {
		out.ByLang[language.Normalize(lang)] = cloneOpStatus(st)
	}
	return out
}

// mergeResults keeps existing outputs unless the patch carries a
// replacement; translations are merged per language.
func mergeResults(existing, incoming Results) Results {
	out := existing
	if incoming.Transcript != nil {
		out.Transcript = cloneTranscript(incoming.Transcript)
	}
	if incoming.Summary != "" {
		out.Summary = incoming.Summary
	}
	if len(incoming.Translations) > 0 {
		merged := make(map[string]*Translation, len(existing.Translations)+len(incoming.Translations))
		for lang, tr := range existing.Translations {
			merged[language.Normalize(lang)] = cloneTranslation(tr)
		}
		for lang, tr := range incoming.Translations {
			merged[language.Normalize(lang)] = cloneTranslation(tr)
		}
		out.Translations = merged
	}
	return out
}

func mergeBilling(existing, incoming Billing) Billing {
	out := existing
	if incoming.TranscribeTokens != 0 {
		out.TranscribeTokens = incoming.TranscribeTokens
	}
	if incoming.SummarizeTokens != 0 {
		out.SummarizeTokens = incoming.SummarizeTokens
	}
	if len(incoming.TranslateTokens) > 0 {
		merged := make(map[string]int64, len(existing.TranslateTokens)+len(incoming.TranslateTokens))
		for lang, n := range existing.TranslateTokens {
			merged[language.Normalize(lang)] = n
		}
		for lang, n := range incoming.TranslateTokens {
			merged[language.Normalize(lang)] = n
		}
		out.TranslateTokens = merged
	}
	return out
}

// MergeChatItems merges two chat item collections by chat item id and
// re-sorts the result descending by creation time.
func MergeChatItems(existing, incoming []*ChatItem) []*ChatItem {
	byID := make(map[string]*ChatItem, len(existing)+len(incoming))
	order := make([]string, 0, len(existing)+len(incoming))
	for _, item := range existing {
		if item == nil || item.ChatItemID == "" {
			continue
		}
		if _, ok := byID[item.ChatItemID]; !ok {
			order = append(order, item.ChatItemID)
		}
		byID[item.ChatItemID] = MergeChatItem(byID[item.ChatItemID], item)
	}
	for _, item := range incoming {
		if item == nil || item.ChatItemID == "" {
			continue
		}
		if _, ok := byID[item.ChatItemID]; !ok {
			order = append(order, item.ChatItemID)
		}
		byID[item.ChatItemID] = MergeChatItem(byID[item.ChatItemID], item)
	}
	merged := make([]*ChatItem, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	SortChatItems(merged)
	return merged
}

// MergeThread reconciles a server thread snapshot with the local copy.
// The snapshot is authoritative for title, timestamps, and the server
// stamp; the draft and chat item collections go through their dedicated
// merge rules.
func MergeThread(local, snapshot *Thread) *Thread {
	if local == nil {
		merged := cloneThread(snapshot)
		merged.Draft.Files = MergeDraft(merged.Draft.Files, nil)
		merged.ChatItems = MergeChatItems(nil, merged.ChatItems)
		return merged
	}
	if snapshot == nil {
		return cloneThread(local)
	}

	merged := cloneThread(snapshot)
	if merged.Title == "" {
		merged.Title = local.Title
	}
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = local.CreatedAt
	}
	merged.Draft.Files = MergeDraft(snapshot.Draft.Files, local.Draft.Files)
	if merged.Draft.UpdatedAt.Before(local.Draft.UpdatedAt) {
		merged.Draft.UpdatedAt = local.Draft.UpdatedAt
	}
	merged.ChatItems = MergeChatItems(local.ChatItems, snapshot.ChatItems)
	return merged
}

// SortChatItems orders chat items most-recent-first.
func SortChatItems(items []*ChatItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// SortThreads orders threads descending by most-recent activity.
func SortThreads(list []*Thread) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].LastActivity().After(list[j].LastActivity())
	})
}

// normalizeLangKeys rewrites every per-language map key through the
// language normalizer so lookups never miss on spelling variants.
func normalizeLangKeys(item *ChatItem) {
	if item == nil {
		return
	}
	if item.Status.Translate != nil && len(item.Status.Translate.ByLang) > 0 {
		normalized := make(map[string]*OpStatus, len(item.Status.Translate.ByLang))
		for lang, st := range item.Status.Translate.ByLang {
			normalized[language.Normalize(lang)] = st
		}
		item.Status.Translate.ByLang = normalized
	}
	if len(item.Results.Translations) > 0 {
		normalized := make(map[string]*Translation, len(item.Results.Translations))
		for lang, tr := range item.Results.Translations {
			normalized[language.Normalize(lang)] = tr
		}
		item.Results.Translations = normalized
	}
}

func cloneOpStatus(s *OpStatus) *OpStatus {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

func cloneTranscript(t *Transcript) *Transcript {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Segments = append([]Segment(nil), t.Segments...)
	return &cp
}

func cloneTranslation(t *Translation) *Translation {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Segments = append([]Segment(nil), t.Segments...)
	return &cp
}

func cloneChatItem(item *ChatItem) *ChatItem {
	if item == nil {
		return nil
	}
	cp := *item
	if item.Status.Transcribe != nil {
		cp.Status.Transcribe = cloneOpStatus(item.Status.Transcribe)
	}
	if item.Status.Summarize != nil {
		cp.Status.Summarize = cloneOpStatus(item.Status.Summarize)
	}
	if item.Status.Translate != nil {
		byLang := make(map[string]*OpStatus, len(item.Status.Translate.ByLang))
		for lang, st := range item.Status.Translate.ByLang {
			byLang[lang] = cloneOpStatus(st)
		}
		cp.Status.Translate = &TranslateStatus{ByLang: byLang}
	}
	cp.Results.Transcript = cloneTranscript(item.Results.Transcript)
	if len(item.Results.Translations) > 0 {
		translations := make(map[string]*Translation, len(item.Results.Translations))
		for lang, tr := range item.Results.Translations {
			translations[lang] = cloneTranslation(tr)
		}
		cp.Results.Translations = translations
	}
	if len(item.Billing.TranslateTokens) > 0 {
		tokens := make(map[string]int64, len(item.Billing.TranslateTokens))
		for lang, n := range item.Billing.TranslateTokens {
			tokens[lang] = n
		}
		cp.Billing.TranslateTokens = tokens
	}
	return &cp
}

func cloneThread(t *Thread) *Thread {
	if t == nil {
		return nil
	}
	cp := *t
	cp.Draft.Files = append([]DraftFile(nil), t.Draft.Files...)
	if len(t.ChatItems) > 0 {
		items := make([]*ChatItem, 0, len(t.ChatItems))
		for _, item := range t.ChatItems {
			items = append(items, cloneChatItem(item))
		}
		cp.ChatItems = items
	}
	return &cp
}

// touch bumps a thread's activity timestamp.
func touch(t *Thread, at time.Time) {
	if t == nil {
		return
	}
	if at.After(t.UpdatedAt) {
		t.UpdatedAt = at
	}
}
