package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetchNames_ForwardsFiltersAndParses(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[{"name":{"first":"Ada","last":"Lovelace"}},{"name":{"first":"Alan","last":"Turing"}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	names, err := client.FetchNames(context.Background(), Query{Count: 2, Gender: "female", Nationality: "gb"})
	if err != nil {
		t.Fatalf("fetch names: %v", err)
	}
	if gotQuery != "gender=female&nat=gb&results=2" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(names) != 2 || names[0] != (Name{First: "Ada", Last: "Lovelace"}) || names[1].Last != "Turing" {
		t.Fatalf("unexpected names: %+v", names)
	}
}

func TestFetchNames_OmitsEmptyFilters(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"results":null}`))
	}))
	defer server.Close()

	names, err := NewClient(server.URL, time.Second).FetchNames(context.Background(), Query{Count: 5})
	if err != nil {
		t.Fatalf("fetch names: %v", err)
	}
	if gotQuery != "results=5" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if len(names) != 0 {
		t.Fatalf("expected no names, got %d", len(names))
	}
}

func TestFetchNames_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).FetchNames(context.Background(), Query{Count: 1})
	if !errors.Is(err, ErrProviderStatus) {
		t.Fatalf("expected ErrProviderStatus, got %v", err)
	}
	if errors.Is(err, ErrUnreachable) {
		t.Fatalf("status error must not report unreachable")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected StatusError 503, got %v", err)
	}
}

func TestFetchNames_BadJSONIsProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, time.Second).FetchNames(context.Background(), Query{Count: 1})
	if !errors.Is(err, ErrProviderStatus) {
		t.Fatalf("expected ErrProviderStatus, got %v", err)
	}
}

func TestFetchNames_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewClient(url, time.Second).FetchNames(context.Background(), Query{Count: 1})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable, got %v", err)
	}
}

func TestFetchNames_TimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	_, err := NewClient(server.URL, 50*time.Millisecond).FetchNames(context.Background(), Query{Count: 1})
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("expected ErrUnreachable on timeout, got %v", err)
	}
}

func TestNewClient_ZeroTimeoutFallsBack(t *testing.T) {
	client := NewClient("", 0)
	if client.timeout != defaultRequestTimeout || client.client.Timeout != defaultRequestTimeout {
		t.Fatalf("expected default timeout, got %s", client.timeout)
	}
	if client.baseURL != DefaultBaseURL {
		t.Fatalf("expected default base url, got %q", client.baseURL)
	}
}
