package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

var testItems = []Snippet{
	{Title: "Haiku form", Content: "Three lines of 5, 7 and 5 syllables.", Keywords: []string{"haiku", "poem"}},
	{Title: "Metric conversions", Content: "1 inch is 2.54 cm.", Keywords: []string{"convert", "inch", "cm"}},
	{Title: "Meeting etiquette", Content: "Join muted.", Intents: []string{"meet"}},
	{Title: "Anything general", Content: "Misc.", Intents: []string{"general"}},
}

func TestQueryMatchesKeywordsAndIntents(t *testing.T) {
	provider := NewStaticProvider(testItems, 3)

	results := provider.Query("Write me a HAIKU about spring", "general")
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2: %+v", len(results), results)
	}
	if results[0].Title != "Haiku form" {
		t.Fatalf("first result = %q", results[0].Title)
	}

	results = provider.Query("anything at all", "meet")
	if len(results) != 1 || results[0].Title != "Meeting etiquette" {
		t.Fatalf("intent match failed: %+v", results)
	}

	if results := provider.Query("nothing relevant here", ""); len(results) != 0 {
		t.Fatalf("expected no match, got %+v", results)
	}
}

func TestQueryCapsResults(t *testing.T) {
	items := []Snippet{
		{Title: "a", Keywords: []string{"tip"}},
		{Title: "b", Keywords: []string{"tip"}},
		{Title: "c", Keywords: []string{"tip"}},
	}
	provider := NewStaticProvider(items, 2)
	if results := provider.Query("give me a tip", ""); len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
}

func TestLoadStaticProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "knowledge.json")
	content := `[{"title":"Offline tip","content":"Breathe.","keywords":["breathe"]}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	provider, err := LoadStaticProvider(path, 0)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if results := provider.Query("just breathe", ""); len(results) != 1 {
		t.Fatalf("unexpected results: %+v", results)
	}

	if _, err := LoadStaticProvider(filepath.Join(dir, "missing.json"), 1); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	if _, err := LoadStaticProvider(bad, 1); err == nil {
		t.Fatal("expected an error for malformed json")
	}
}
