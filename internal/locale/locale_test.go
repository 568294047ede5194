package locale

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultTableHasTwoVariantsPerAction(t *testing.T) {
	table := Default()
	for _, action := range requiredActions {
		if got := len(table.Variants(action)); got < 2 {
			t.Fatalf("Variants(%s) has %d labels; want >= 2", action, got)
		}
	}
	got := table.Variants(StartCompose)
	if got[0] != "Start a thread" || got[1] != "スレッドを開始" {
		t.Fatalf("Variants(start_compose) = %v", got)
	}
}

func TestScheduleVariantsExcludeNavigationLabels(t *testing.T) {
	for _, label := range Default().Variants(Schedule) {
		for _, nav := range []string{"More", "その他", "Home", "Search", "Profile"} {
			if label == nav {
				t.Fatalf("Variants(schedule) contains navigation label %q", nav)
			}
		}
	}
}

func TestVariantsReturnsCopy(t *testing.T) {
	table := Default()
	v := table.Variants(Login)
	v[0] = "mutated"
	if table.Variants(Login)[0] != "Log in" {
		t.Fatalf("Variants() leaked internal slice")
	}
}

func TestMatch(t *testing.T) {
	table := Default()
	tests := []struct {
		text string
		want Action
		ok   bool
	}{
		{text: "スレッドを開始...", want: StartCompose, ok: true},
		{text: "Log in with Instagram", want: Login, ok: true},
		{text: "投稿", want: SubmitPost, ok: true},
		{text: "unrelated", ok: false},
		{text: "  ", ok: false},
	}
	for _, tt := range tests {
		got, ok := table.Match(tt.text)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("Match(%q) = %q,%v; want %q,%v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseRejectsMissingAction(t *testing.T) {
	if _, err := Parse([]byte("actions:\n  login: [\"Log in\"]\n")); err == nil {
		t.Fatalf("Parse() error = nil; want missing action error")
	}
	if _, err := Parse([]byte("actions: [")); err == nil {
		t.Fatalf("Parse() error = nil; want yaml error")
	}
}

func TestLoadFileMergesOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "labels.yaml")
	if err := os.WriteFile(path, []byte("actions:\n  submit_post: [\"Publicar\", \"Post\"]\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() = %v", err)
	}
	table, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := table.Variants(SubmitPost)[0]; got != "Publicar" {
		t.Fatalf("Variants(submit_post)[0] = %q; want Publicar", got)
	}
	if got := table.Variants(Login)[0]; got != "Log in" {
		t.Fatalf("Variants(login)[0] = %q; want default kept", got)
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadFile(missing) error = nil; want error")
	}
}
