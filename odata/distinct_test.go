package odata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDistinctValuesAggregation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apply := r.URL.Query().Get("$apply")
		if apply != "groupby((city),aggregate($count as Count))" {
			t.Errorf("$apply = %q", apply)
		}
		_, _ = w.Write([]byte(`{"value":[{"city":"Austin","Count":3},{"city":"Boston","Count":1}]}`))
	}))
	defer srv.Close()

	values, err := NewClient(srv.URL, time.Second).DistinctValues(context.Background(), "city", "")
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len = %d, want 2", len(values))
	}
	if values[0].Value != "Austin" || values[0].Count != 3 {
		t.Fatalf("values[0] = %+v", values[0])
	}
	if values[1].Value != "Boston" || values[1].Count != 1 {
		t.Fatalf("values[1] = %+v", values[1])
	}
}

func TestDistinctValuesSearchNarrowsAggregation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apply := r.URL.Query().Get("$apply")
		want := "filter(contains(tolower(city),'au'))/groupby((city),aggregate($count as Count))"
		if apply != want {
			t.Errorf("$apply = %q, want %q", apply, want)
		}
		_, _ = w.Write([]byte(`{"value":[{"city":"Austin","Count":3}]}`))
	}))
	defer srv.Close()

	values, err := NewClient(srv.URL, time.Second).DistinctValues(context.Background(), "city", "Au")
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if len(values) != 1 || values[0].Value != "Austin" {
		t.Fatalf("values = %+v", values)
	}
}

func TestDistinctValuesFallsBackToSample(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("$apply") {
			http.Error(w, "The query specified in the URI is not valid.", http.StatusBadRequest)
			return
		}
		if got := r.URL.Query().Get("$select"); got != "city" {
			t.Errorf("$select = %q", got)
		}
		if got := r.URL.Query().Get("$top"); got != "5000" {
			t.Errorf("$top = %q", got)
		}
		_, _ = w.Write([]byte(`{"value":[{"city":"Austin"},{"city":"Austin"},{"city":"Boston"}]}`))
	}))
	defer srv.Close()

	values, err := NewClient(srv.URL, time.Second).DistinctValues(context.Background(), "city", "")
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len = %d, want 2", len(values))
	}
	if values[0].Value != "Austin" || values[0].Count != 2 {
		t.Fatalf("values[0] = %+v", values[0])
	}
	if values[1].Value != "Boston" || values[1].Count != 1 {
		t.Fatalf("values[1] = %+v", values[1])
	}
}

func TestDistinctValuesSampleCollapsesNumericForms(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Has("$apply") {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"value":[{"n":1},{"n":1},{"n":2}]}`))
	}))
	defer srv.Close()

	values, err := NewClient(srv.URL, time.Second).DistinctValues(context.Background(), "n", "")
	if err != nil {
		t.Fatalf("DistinctValues: %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("len = %d, want 2: %+v", len(values), values)
	}
	if values[0].Count != 2 {
		t.Fatalf("values[0] = %+v", values[0])
	}
}

func TestDistinctValuesBothStrategiesFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewClient(srv.URL, time.Second).DistinctValues(context.Background(), "city", ""); err == nil {
		t.Fatal("expected error when both strategies fail")
	}
}

func TestDistinctValuesRequiresField(t *testing.T) {
	if _, err := NewClient("http://localhost", time.Second).DistinctValues(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error for blank field")
	}
}
