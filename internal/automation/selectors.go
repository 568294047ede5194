package automation

import (
	"time"

	"github.com/dgnsrekt/threads_agent/internal/driver"
	"github.com/dgnsrekt/threads_agent/internal/locale"
	"github.com/dgnsrekt/threads_agent/internal/locator"
)

// Selectors holds every locator spec used by the sequencers.
type Selectors struct {
	LoginRequired locator.Spec
	LoginLink     locator.Spec
	Username      locator.Spec
	Password      locator.Spec
	LoginSubmit   locator.Spec
	Compose       locator.Spec
	NewPost       locator.Spec
	ComposeRetry  locator.Spec
	PostSubmit    locator.Spec
}

// textVariants builds one Text selector per (tag, label) pair, tags outermost.
func textVariants(tags []string, labels []string) []driver.Selector {
	out := make([]driver.Selector, 0, len(tags)*len(labels))
	for _, tag := range tags {
		for _, l := range labels {
			out = append(out, driver.Text(tag, l))
		}
	}
	return out
}

// DefaultSelectors returns the selector table for the current site markup
// with localized labels from table.
func DefaultSelectors(table *locale.Table) Selectors {
	login := table.Variants(locale.Login)
	submit := table.Variants(locale.SubmitPost)

	newPost := make([]driver.Selector, 0, 4)
	for _, l := range table.Variants(locale.CreatePost) {
		newPost = append(newPost, driver.CSS(`svg[aria-label="`+l+`"]`))
	}
	newPost = append(newPost, driver.CSS(`div[role="button"] svg`))

	return Selectors{
		LoginRequired: locator.Spec{
			Name:       "login-required",
			Candidates: textVariants([]string{""}, login),
			Timeout:    2 * time.Second,
		},
		LoginLink: locator.Spec{
			Name:       "login-link",
			Candidates: []driver.Selector{driver.CSS(`a[href*="login"]`)},
			Timeout:    3 * time.Second,
		},
		Username: locator.Spec{
			Name:       "username",
			Candidates: []driver.Selector{driver.CSS(`input[name="username"]`), driver.CSS(`input[type="text"]`)},
			Timeout:    10 * time.Second,
		},
		Password: locator.Spec{
			Name:       "password",
			Candidates: []driver.Selector{driver.CSS(`input[name="password"]`), driver.CSS(`input[type="password"]`)},
			Timeout:    5 * time.Second,
		},
		LoginSubmit: locator.Spec{
			Name:       "login-submit",
			Candidates: append([]driver.Selector{driver.CSS(`button[type="submit"]`)}, textVariants([]string{"button", "div"}, login)...),
			Timeout:    5 * time.Second,
		},
		Compose: locator.Spec{
			Name:       "compose",
			Candidates: []driver.Selector{driver.CSS(`div[contenteditable="true"]`), driver.CSS(`div[role="textbox"]`)},
			Timeout:    8 * time.Second,
		},
		NewPost: locator.Spec{
			Name:       "new-post",
			Candidates: newPost,
			Timeout:    5 * time.Second,
		},
		ComposeRetry: locator.Spec{
			Name:       "compose-retry",
			Candidates: []driver.Selector{driver.CSS(`div[contenteditable="true"]`)},
			Timeout:    8 * time.Second,
		},
		PostSubmit: locator.Spec{
			Name:       "post-submit",
			Candidates: textVariants([]string{"div", "button"}, submit),
			Timeout:    5 * time.Second,
		},
	}
}
