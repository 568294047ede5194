// Package session persists the single authenticated browser session slot.
package session

// Cookie is one persisted browser cookie. Expires is seconds since the epoch,
// or -1 for a session cookie.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Origin holds per-origin storage. The slot always persists an empty list.
type Origin struct {
	Origin       string      `json:"origin"`
	LocalStorage []NameValue `json:"localStorage"`
}

type NameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// State is the serialized session payload.
type State struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// normalized returns a copy whose slices marshal as [] rather than null.
func (s State) normalized() State {
	out := State{
		Cookies: make([]Cookie, len(s.Cookies)),
		Origins: make([]Origin, len(s.Origins)),
	}
	copy(out.Cookies, s.Cookies)
	copy(out.Origins, s.Origins)
	return out
}

// Empty reports whether the state carries no cookies.
func (s State) Empty() bool { return len(s.Cookies) == 0 }
