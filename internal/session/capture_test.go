package session

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ptrF(v float64) *float64 { return &v }
func ptrB(v bool) *bool       { return &v }

func TestFromCapturedDefaults(t *testing.T) {
	got := FromCaptured([]CapturedCookie{
		{Name: "sessionid", Value: "abc"},
		{Name: "ds_user_id", Value: "1", Domain: "www.threads.net", Path: "/x", ExpirationDate: ptrF(1800000000.5), HTTPOnly: ptrB(true), Secure: ptrB(false), SameSite: "no_restriction"},
		{Name: "csrftoken", Value: "t", Expires: ptrF(10), ExpirationDate: ptrF(20), SameSite: "lax"},
		{Name: "  ", Value: "dropped"},
	})

	want := State{
		Cookies: []Cookie{
			{Name: "sessionid", Value: "abc", Domain: ".threads.net", Path: "/", Expires: -1, Secure: true, SameSite: "None"},
			{Name: "ds_user_id", Value: "1", Domain: "www.threads.net", Path: "/x", Expires: 1800000000.5, HTTPOnly: true, Secure: false, SameSite: "None"},
			{Name: "csrftoken", Value: "t", Domain: ".threads.net", Path: "/", Expires: 10, Secure: true, SameSite: "Lax"},
		},
		Origins: []Origin{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("FromCaptured() mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeCookies(t *testing.T) {
	api := []Cookie{
		{Name: "sessionid", Domain: ".threads.net", Value: "api"},
		{Name: "sessionid", Domain: ".threads.net", Value: "dup"},
		{Name: "csrftoken", Domain: ".threads.net", Value: "api"},
	}
	page := []Cookie{
		{Name: "csrftoken", Domain: "www.threads.net", Value: "page"},
		{Name: "mid", Domain: "www.threads.net", Value: "page"},
	}

	got := MergeCookies(api, page)
	want := []Cookie{
		{Name: "sessionid", Domain: ".threads.net", Value: "api"},
		{Name: "csrftoken", Domain: ".threads.net", Value: "api"},
		{Name: "mid", Domain: "www.threads.net", Value: "page"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergeCookies() mismatch (-want +got):\n%s", diff)
	}
}
