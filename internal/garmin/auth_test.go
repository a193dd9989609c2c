package garmin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func testAuthenticator(t *testing.T, handler http.Handler) *Authenticator {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewAuthenticator(DomainCom, Consumer{Key: "ck", Secret: "cs"}, 5*time.Second)
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	a.urls = &URLs{domain: DomainCom, gcModern: srv.URL, ssoOrigin: srv.URL, gcAPI: srv.URL}
	return a
}

func TestLoginHappyPath(t *testing.T) {
	var seen []string
	a := testAuthenticator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Method+" "+r.URL.Path)
		switch {
		case r.URL.Path == "/sso/embed":
			w.WriteHeader(http.StatusOK)
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`<input type="hidden" name="_csrf" value="csrf-123"/>`))
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodPost:
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if r.PostForm.Get("username") != "user@example.com" ||
				r.PostForm.Get("password") != "hunter2" ||
				r.PostForm.Get("_csrf") != "csrf-123" {
				t.Errorf("unexpected form: %v", r.PostForm)
			}
			_, _ = w.Write([]byte(`<a href="https://sso.garmin.com/sso/embed?ticket=ST-9-abc"></a>`))
		case r.URL.Path == "/oauth-service/oauth/preauthorized":
			if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "OAuth ") {
				t.Errorf("missing OAuth1 signature: %q", auth)
			}
			if r.URL.Query().Get("ticket") != "ST-9-abc" {
				t.Errorf("ticket = %q", r.URL.Query().Get("ticket"))
			}
			_, _ = w.Write([]byte("oauth_token=ot&oauth_token_secret=os"))
		case r.URL.Path == "/oauth-service/oauth/exchange/user/2.0":
			_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","token_type":"Bearer","expires_in":3600,"refresh_token_expires_in":7200}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	tokens, err := a.Login(context.Background(), "user@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tokens.OAuth1Token != "ot" || tokens.OAuth1Secret != "os" {
		t.Errorf("oauth1 pair = %q/%q", tokens.OAuth1Token, tokens.OAuth1Secret)
	}
	if tokens.AccessToken != "a2" || tokens.RefreshToken != "r2" {
		t.Errorf("oauth2 pair = %q/%q", tokens.AccessToken, tokens.RefreshToken)
	}
	if !tokens.AccessValid(time.Now()) {
		t.Error("fresh access token should be valid")
	}
	want := []string{
		"GET /sso/embed",
		"GET /sso/signin",
		"POST /sso/signin",
		"GET /oauth-service/oauth/preauthorized",
		"POST /oauth-service/oauth/exchange/user/2.0",
	}
	if len(seen) != len(want) {
		t.Fatalf("request sequence = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	a := testAuthenticator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`name="_csrf" value="csrf-123"`))
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodPost:
			// No ticket in the response page.
			_, _ = w.Write([]byte(`<div class="error">invalid credentials</div>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))

	_, err := a.Login(context.Background(), "user@example.com", "wrong")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("got %v, want ErrUnauthorized", err)
	}
}

func TestLoginMFARejected(t *testing.T) {
	a := testAuthenticator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`name="_csrf" value="c"`))
		case r.URL.Path == "/sso/signin" && r.Method == http.MethodPost:
			_, _ = w.Write([]byte(`<div id="mfa-verification">enter code</div>`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))

	_, err := a.Login(context.Background(), "user@example.com", "hunter2")
	if !errors.Is(err, ErrMFARequired) {
		t.Fatalf("got %v, want ErrMFARequired", err)
	}
}

func TestLoginMissingCSRF(t *testing.T) {
	a := testAuthenticator(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>no form here</html>`))
	}))

	_, err := a.Login(context.Background(), "user@example.com", "hunter2")
	if !errors.Is(err, ErrBadResponse) {
		t.Fatalf("got %v, want ErrBadResponse", err)
	}
}

func TestSignOAuth1Deterministic(t *testing.T) {
	consumer := Consumer{Key: "ck", Secret: "cs"}

	h1, err := signOAuth1("GET", "https://example.com/path?b=2&a=1", consumer, "tok", "sec", "nonce1", 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := signOAuth1("GET", "https://example.com/path?b=2&a=1", consumer, "tok", "sec", "nonce1", 1700000000)
	if err != nil {
		t.Fatal(err)
	}
	if h1 != h2 {
		t.Error("same inputs must produce the same header")
	}

	h3, _ := signOAuth1("GET", "https://example.com/path?b=2&a=1", consumer, "tok", "other", "nonce1", 1700000000)
	if h1 == h3 {
		t.Error("different token secret must change the signature")
	}

	if !strings.HasPrefix(h1, "OAuth ") {
		t.Errorf("header prefix: %q", h1)
	}
	for _, part := range []string{
		`oauth_consumer_key="ck"`,
		`oauth_nonce="nonce1"`,
		`oauth_signature_method="HMAC-SHA1"`,
		`oauth_timestamp="1700000000"`,
		`oauth_token="tok"`,
		`oauth_version="1.0"`,
		"oauth_signature=",
	} {
		if !strings.Contains(h1, part) {
			t.Errorf("header missing %q: %s", part, h1)
		}
	}
}

func TestSignOAuth1OmitsEmptyToken(t *testing.T) {
	h, err := signOAuth1("GET", "https://example.com/", Consumer{Key: "ck", Secret: "cs"}, "", "", "n", 1)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(h, `oauth_token="`) {
		t.Errorf("header should not carry an oauth_token before one exists: %s", h)
	}
}

func TestPercentEncode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"abcXYZ019", "abcXYZ019"},
		{"-._~", "-._~"},
		{"a b", "a%20b"},
		{"a+b", "a%2Bb"},
		{"ü", "%C3%BC"},
		{"a/b?c=d", "a%2Fb%3Fc%3Dd"},
	}
	for _, tc := range cases {
		if got := percentEncode(tc.in); got != tc.want {
			t.Errorf("percentEncode(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
