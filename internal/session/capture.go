package session

import "strings"

const (
	defaultCookieDomain = ".threads.net"
	defaultCookiePath   = "/"
	defaultSameSite     = "None"
)

// CapturedCookie is a cookie as exported by a browser extension. Optional
// fields are pointers so absence can be told apart from zero values.
type CapturedCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain,omitempty"`
	Path           string   `json:"path,omitempty"`
	Expires        *float64 `json:"expires,omitempty"`
	ExpirationDate *float64 `json:"expirationDate,omitempty"`
	HTTPOnly       *bool    `json:"httpOnly,omitempty"`
	Secure         *bool    `json:"secure,omitempty"`
	SameSite       string   `json:"sameSite,omitempty"`
}

// FromCaptured normalizes externally captured cookies into a State with the
// defaults the site expects. Cookies without a name are dropped.
func FromCaptured(raw []CapturedCookie) State {
	st := State{Cookies: make([]Cookie, 0, len(raw)), Origins: []Origin{}}
	for _, c := range raw {
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		out := Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  -1,
			Secure:   true,
			SameSite: normalizeSameSite(c.SameSite),
		}
		if out.Domain == "" {
			out.Domain = defaultCookieDomain
		}
		if out.Path == "" {
			out.Path = defaultCookiePath
		}
		switch {
		case c.Expires != nil:
			out.Expires = *c.Expires
		case c.ExpirationDate != nil:
			out.Expires = *c.ExpirationDate
		}
		if c.HTTPOnly != nil {
			out.HTTPOnly = *c.HTTPOnly
		}
		if c.Secure != nil {
			out.Secure = *c.Secure
		}
		st.Cookies = append(st.Cookies, out)
	}
	return st
}

// normalizeSameSite maps extension spellings ("no_restriction",
// "unspecified") and lower-case CDP values onto Strict, Lax or None.
func normalizeSameSite(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return "Strict"
	case "lax":
		return "Lax"
	default:
		return defaultSameSite
	}
}

// MergeCookies combines two cookie sets. Primary cookies win on a
// name+domain collision; secondary cookies are only added when no primary
// cookie shares their name.
func MergeCookies(primary, secondary []Cookie) []Cookie {
	seen := make(map[string]bool, len(primary))
	names := make(map[string]bool, len(primary))
	out := make([]Cookie, 0, len(primary)+len(secondary))
	for _, c := range primary {
		k := c.Name + "\x00" + c.Domain
		if seen[k] {
			continue
		}
		seen[k] = true
		names[c.Name] = true
		out = append(out, c)
	}
	for _, c := range secondary {
		if names[c.Name] {
			continue
		}
		names[c.Name] = true
		out = append(out, c)
	}
	return out
}
