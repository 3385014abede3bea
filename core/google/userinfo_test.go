package google

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func userinfoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/userinfo") {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer good-token" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": 401, "message": "invalid"}})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":          "1077",
			"email":       "ada@arbisoft.com",
			"hd":          "arbisoft.com",
			"given_name":  "Ada",
			"family_name": "Lovelace",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUserInfo(t *testing.T) {
	srv := userinfoServer(t)
	c := NewClient(srv.URL + "/")

	p, err := c.UserInfo(context.Background(), "good-token")
	if err != nil {
		t.Fatalf("UserInfo: %v", err)
	}
	if p.ID != "1077" || p.Email != "ada@arbisoft.com" || p.HostedDomain != "arbisoft.com" || p.GivenName != "Ada" {
		t.Fatalf("profile: %+v", p)
	}

	if _, err := c.UserInfo(context.Background(), "bad-token"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("want ErrAuthenticationFailed, got %v", err)
	}
	if _, err := c.UserInfo(context.Background(), " "); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestCheckDomainAndUsername(t *testing.T) {
	p := &Profile{ID: "9", Email: "x@gmail.com"}
	if err := CheckDomain(p, true, "arbisoft.com"); !errors.Is(err, ErrForeignDomain) {
		t.Fatalf("foreign domain must be rejected: %v", err)
	}
	if err := CheckDomain(p, false, "arbisoft.com"); err != nil {
		t.Fatalf("domain check disabled: %v", err)
	}
	if Username(p) != "x@gmail.com_9" {
		t.Fatalf("Username: %q", Username(p))
	}
	long := &Profile{ID: "123", Email: strings.Repeat("a", 70) + "@x.com"}
	if len(Username(long)) != 64 {
		t.Fatalf("username must be capped at 64")
	}
}
