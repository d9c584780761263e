package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if crawlerFetchesTotal == nil || crawlerClassificationsTotal == nil ||
		crawlerRecordsTotal == nil || httpRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetch(t *testing.T) {
	ObserveFetch("https://Fetch.Example.com/a", "static", "2xx", 128, 250*time.Millisecond)
	ObserveFetch("https://fetch.example.com/b", "static", "unavailable", 0, 0)

	if val := testutil.ToFloat64(crawlerFetchesTotal.WithLabelValues("fetch.example.com", "static", "2xx")); val != 1 {
		t.Errorf("expected 1 2xx fetch, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerFetchesTotal.WithLabelValues("fetch.example.com", "static", "unavailable")); val != 1 {
		t.Errorf("expected 1 unavailable fetch, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("fetch.example.com")); val != 128 {
		t.Errorf("expected 128 bytes, got %f", val)
	}
}

func TestStatusClass(t *testing.T) {
	cases := map[int]string{
		0:   "other",
		200: "2xx",
		301: "3xx",
		404: "4xx",
		503: "5xx",
		700: "other",
	}
	for code, want := range cases {
		if got := StatusClass(code); got != want {
			t.Errorf("StatusClass(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestObserveFetchRecordsLatency(t *testing.T) {
	Init()
	before := testutil.CollectAndCount(crawlerFetchDuration)
	ObserveFetch("https://latency.example.com/", "latency-test", "2xx", 10, time.Second)
	if after := testutil.CollectAndCount(crawlerFetchDuration); after != before+1 {
		t.Errorf("expected a new latency series, got %d -> %d", before, after)
	}
}

func TestObserveRecordAndClassification(t *testing.T) {
	ObserveRecord("record.example.com", true)
	ObserveRecord("record.example.com", true)
	ObserveClassification("record.example.com", "pattern")
	ObserveMirrorFailure("store")

	if val := testutil.ToFloat64(crawlerRecordsTotal.WithLabelValues("record.example.com", "true")); val != 2 {
		t.Errorf("expected 2 product records, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerClassificationsTotal.WithLabelValues("record.example.com", "pattern")); val != 1 {
		t.Errorf("expected 1 pattern classification, got %f", val)
	}
	if val := testutil.ToFloat64(crawlerMirrorFailuresTotal.WithLabelValues("store")); val < 1 {
		t.Errorf("expected store failure counted, got %f", val)
	}
}

func TestActiveTraversals(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerActiveTraversals)
	IncActiveTraversals()
	if got := testutil.ToFloat64(crawlerActiveTraversals); got != before+1 {
		t.Errorf("expected gauge %f, got %f", before+1, got)
	}
	DecActiveTraversals()
	if got := testutil.ToFloat64(crawlerActiveTraversals); got != before {
		t.Errorf("expected gauge %f, got %f", before, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
