package automation

import (
	"context"
	"errors"
	"testing"

	"github.com/dgnsrekt/threads_agent/internal/apperr"
	"github.com/dgnsrekt/threads_agent/internal/driver"
)

func newTestPost(clock *fakeClock, store SessionStore) *PostSequencer {
	p := NewPostSequencer(testLocator(clock), testSelectors(), store, DefaultDelays())
	p.sleep = clock.Sleep
	return p
}

func TestPostUsesOpenComposer(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	page.show(driver.CSS(`div[contenteditable="true"]`))
	page.show(driver.Text("div", "Post"))
	store := &fakeStore{}

	if err := newTestPost(clock, store).Run(context.Background(), page, "hello"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, want := range []string{`click css:div[contenteditable="true"]`, "insert hello", "click text:div:Post"} {
		if !page.did(want) {
			t.Fatalf("actions = %v; missing %q", page.actions, want)
		}
	}
	if page.did("replace hello") {
		t.Fatalf("actions = %v; fallback insertion should not run", page.actions)
	}
	if len(store.saves) != 1 {
		t.Fatalf("saves = %d; want 1", len(store.saves))
	}
	if got := store.saves[0].Cookies[0].Value; got != "fresh" {
		t.Fatalf("saved cookie = %q; want fresh", got)
	}
}

func TestPostOpensComposerAndFallsBack(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	page.show(driver.CSS(`svg[aria-label="Create"]`)).onClick = func() {
		el := page.show(driver.CSS(`div[contenteditable="true"]`))
		el.insertOK = false
	}
	store := &fakeStore{}

	if err := newTestPost(clock, store).Run(context.Background(), page, "hello"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	for _, want := range []string{
		`click css:svg[aria-label="Create"]`,
		"insert hello",
		"replace hello",
		`press css:div[contenteditable="true"] Control+Enter`,
	} {
		if !page.did(want) {
			t.Fatalf("actions = %v; missing %q", page.actions, want)
		}
	}
	if len(store.saves) != 1 {
		t.Fatalf("saves = %d; want 1", len(store.saves))
	}
}

func TestPostInsertErrorFallsBack(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	el := page.show(driver.CSS(`div[role="textbox"]`))
	el.insertErr = errors.New("execCommand unsupported")
	page.show(driver.Text("button", "投稿"))

	if err := newTestPost(clock, &fakeStore{}).Run(context.Background(), page, "こんにちは"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !page.did("replace こんにちは") || !page.did("click text:button:投稿") {
		t.Fatalf("actions = %v", page.actions)
	}
}

func TestPostComposerMissingStillSaves(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	store := &fakeStore{}

	err := newTestPost(clock, store).Run(context.Background(), page, "hello")
	if !apperr.Is(err, apperr.CodeNotFound) {
		t.Fatalf("Run() error = %v; want %s", err, apperr.CodeNotFound)
	}
	if len(store.saves) != 1 {
		t.Fatalf("saves = %d; want exactly 1 on failure", len(store.saves))
	}
}

func TestPostCaptureFailureSkipsSave(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	page.show(driver.CSS(`div[contenteditable="true"]`))
	page.cookieErr = errors.New("target closed")
	store := &fakeStore{}

	if err := newTestPost(clock, store).Run(context.Background(), page, "hello"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(store.saves) != 0 {
		t.Fatalf("saves = %d; want 0 when cookies cannot be read", len(store.saves))
	}
}

func TestPostSaveFailureDoesNotFailPost(t *testing.T) {
	clock := newFakeClock()
	page := newFakePage(clock, siteURL)
	page.show(driver.CSS(`div[contenteditable="true"]`))
	store := &fakeStore{saveErr: errors.New("disk full")}

	if err := newTestPost(clock, store).Run(context.Background(), page, "hello"); err != nil {
		t.Fatalf("Run() error = %v; want nil", err)
	}
}
