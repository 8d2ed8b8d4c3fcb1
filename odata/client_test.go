package odata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/tesseradata/tessera/errs"
)

func TestClientFetchDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$count"); got != "true" {
			t.Errorf("$count = %q, want true", got)
		}
		if got := r.Header.Get("X-Api-Key"); got != "secret" {
			t.Errorf("X-Api-Key = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"@odata.context":"$metadata#People","@odata.count":57,"value":[{"name":"Ann","age":34},{"name":"Bob","age":41}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, time.Second, WithHeaders(map[string]string{"X-Api-Key": "secret"}))
	qry := url.Values{}
	qry.Set("$count", "true")

	env, err := client.Fetch(context.Background(), qry)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if env.Count != 57 {
		t.Fatalf("Count = %d, want 57", env.Count)
	}
	if len(env.Rows) != 2 {
		t.Fatalf("len(Rows) = %d, want 2", len(env.Rows))
	}
	if got := env.Rows[0]["name"]; got != "Ann" {
		t.Fatalf("Rows[0][name] = %v", got)
	}
	if got := env.Annotations["@odata.context"]; got != "$metadata#People" {
		t.Fatalf("Annotations = %v", env.Annotations)
	}
}

func TestClientFetchCountAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"@odata.count":"20","value":[]}`))
	}))
	defer srv.Close()

	env, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if env.Count != 20 {
		t.Fatalf("Count = %d, want 20", env.Count)
	}
}

func TestClientFetchMissingCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[{"id":1}]}`))
	}))
	defer srv.Close()

	env, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if env.Count != -1 {
		t.Fatalf("Count = %d, want -1 when omitted", env.Count)
	}
}

func TestClientFetchAuthStatuses(t *testing.T) {
	cases := []struct {
		status int
		code   errs.Code
	}{
		{http.StatusUnauthorized, errs.CodeUnauthorized},
		{http.StatusForbidden, errs.CodeForbidden},
		{http.StatusInternalServerError, errs.CodeNetwork},
		{http.StatusBadRequest, errs.CodeNetwork},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tc.status)
		}))

		_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), nil)
		srv.Close()
		var e *errs.E
		if !errors.As(err, &e) {
			t.Fatalf("status %d: error %v is not *errs.E", tc.status, err)
		}
		if e.Code != tc.code {
			t.Fatalf("status %d: code = %s, want %s", tc.status, e.Code, tc.code)
		}
		if e.HTTP != tc.status {
			t.Fatalf("status %d: http = %d", tc.status, e.HTTP)
		}
	}
}

func TestClientFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewClient(srv.URL, 30*time.Millisecond).Fetch(context.Background(), nil)
	var e *errs.E
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *errs.E", err)
	}
	if e.Code != errs.CodeTimeout {
		t.Fatalf("code = %s, want %s", e.Code, errs.CodeTimeout)
	}
	if !e.Retriable() {
		t.Fatal("timeouts should be retriable")
	}
}

func TestClientFetchCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient(srv.URL, time.Second).Fetch(ctx, nil)
	var e *errs.E
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *errs.E", err)
	}
	if e.Code != errs.CodeTimeout {
		t.Fatalf("code = %s, want %s", e.Code, errs.CodeTimeout)
	}
}

func TestClientFetchDecodeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background(), nil)
	var e *errs.E
	if !errors.As(err, &e) {
		t.Fatalf("error %v is not *errs.E", err)
	}
	if e.Code != errs.CodeNetwork {
		t.Fatalf("code = %s, want %s", e.Code, errs.CodeNetwork)
	}
}

func TestClientFetchAppendsToExistingQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "abc" {
			t.Errorf("key = %q", got)
		}
		if got := r.URL.Query().Get("$top"); got != "5" {
			t.Errorf("$top = %q", got)
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	qry := url.Values{}
	qry.Set("$top", "5")
	if _, err := NewClient(srv.URL+"?key=abc", time.Second).Fetch(context.Background(), qry); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
}
