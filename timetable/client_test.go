package timetable

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := zerolog.Nop()
	return NewClient(Config{
		BaseURL: server.URL,
		Token:   "default-token",
		Logger:  &logger,
	})
}

func date(value string) time.Time {
	d, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFetchPageRequestShape(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{
			"user": r.URL.Query().Get("user"),
			"from": r.URL.Query().Get("from"),
			"to":   r.URL.Query().Get("to"),
			"self": r.URL.Query().Get("self"),
		}
		w.Write([]byte(`[{"title":"Mathematics"}]`))
	})

	payload, err := client.FetchPage(context.Background(), "u1", date("2024-01-01"), date("2024-01-07"), true)
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != `[{"title":"Mathematics"}]` {
		t.Fatalf("Payload is %s", payload)
	}
	if gotAuth != "Bearer default-token" {
		t.Fatalf("Authorization header is %q", gotAuth)
	}
	want := map[string]string{"user": "u1", "from": "2024-01-01", "to": "2024-01-07", "self": "true"}
	for name, value := range want {
		if gotQuery[name] != value {
			t.Fatalf("Query param %s is %q, want %q", name, gotQuery[name], value)
		}
	}
}

func TestTokenOverrideFromContext(t *testing.T) {
	var gotAuth string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	})

	ctx := WithToken(context.Background(), "session-token")
	if _, err := client.FetchPage(ctx, "u1", date("2024-01-01"), date("2024-01-07"), false); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer session-token" {
		t.Fatalf("Authorization header is %q", gotAuth)
	}
}

func TestStatusErrorCarriesRetryAfter(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.FetchPage(context.Background(), "u1", date("2024-01-01"), date("2024-01-07"), false)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Error is %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("Status code is %d", statusErr.StatusCode)
	}
	if statusErr.RetryAfter != 30*time.Second {
		t.Fatalf("Retry-After is %s", statusErr.RetryAfter)
	}
}
