package classify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLexiconClassify(t *testing.T) {
	l := NewLexicon()
	ctx := context.Background()

	cases := []struct {
		text string
		want string
	}{
		{"The service was great and the staff friendly", LabelPositive},
		{"Terrible experience, totally broken", LabelNegative},
		{"The package arrived on Tuesday", LabelNeutral},
		{"Great product but awful delivery", LabelNeutral},
		{"", LabelNeutral},
		{"GREAT! Loved it.", LabelPositive},
	}
	for _, tc := range cases {
		got, err := l.Classify(ctx, tc.text)
		if err != nil {
			t.Fatalf("classify %q: %v", tc.text, err)
		}
		if got != tc.want {
			t.Errorf("classify %q = %s, want %s", tc.text, got, tc.want)
		}
	}
}

func TestLexiconClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLexicon().Classify(ctx, "great"); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}

func TestLoadLexicon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	content := `
positive:
  - splendid
negative:
  - dreadful
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	l, err := LoadLexicon(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	got, err := l.Classify(context.Background(), "a splendid day")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != LabelPositive {
		t.Fatalf("got %s, want %s", got, LabelPositive)
	}

	// Custom lexicons replace the defaults entirely.
	got, err = l.Classify(context.Background(), "great")
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if got != LabelNeutral {
		t.Fatalf("default word leaked into custom lexicon: %s", got)
	}
}

func TestLoadLexiconEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexicon.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadLexicon(path); err == nil {
		t.Fatal("empty lexicon should be rejected")
	}
}

func TestLoadLexiconMissingFile(t *testing.T) {
	if _, err := LoadLexicon(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file should be an error")
	}
}
