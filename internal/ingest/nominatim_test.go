package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lox/openwindow/internal/models"
)

func newTestNominatim(t *testing.T, handler http.HandlerFunc, opts ...Option) *Nominatim {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBackOff(noRetry), WithMinInterval(0)}, opts...)
	return NewNominatim(srv.URL, "OpenWindowAdvisor/test", opts...)
}

func TestNominatimSearch(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != "OpenWindowAdvisor/test" {
			t.Errorf("User-Agent = %q", got)
		}
		if r.URL.Query().Get("q") != "Brooklyn, NY" || r.URL.Query().Get("limit") != "1" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.Write([]byte(`[{"lat":"40.6526006","lon":"-73.9497211","display_name":"Brooklyn, Kings County, New York, United States"}]`))
	})

	loc, err := n.Search(context.Background(), "Brooklyn, NY")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if loc == nil {
		t.Fatal("expected a match")
	}
	if loc.Coordinates.Latitude != 40.6526006 || loc.Coordinates.Longitude != -73.9497211 {
		t.Errorf("coordinates = %+v", loc.Coordinates)
	}
	if !loc.DisplayName.Valid || loc.Query != "Brooklyn, NY" {
		t.Errorf("location = %+v", loc)
	}
}

func TestNominatimSearchNoResults(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})

	loc, err := n.Search(context.Background(), "zzzz-nowhere")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if loc != nil {
		t.Errorf("expected no match, got %+v", loc)
	}
}

func TestNominatimReverse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"address", `{"display_name":"City Hall Park, Manhattan, New York"}`, "City Hall Park, Manhattan, New York", false},
		{"unable to geocode", `{"error":"Unable to geocode"}`, "", true},
		{"empty", `{}`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/reverse" || r.URL.Query().Get("format") != "jsonv2" {
					t.Errorf("request = %v", r.URL)
				}
				w.Write([]byte(tt.body))
			})

			got, err := n.Reverse(context.Background(), models.Coordinates{Latitude: 40.7128, Longitude: -74.006})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Reverse = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNominatimThrottle(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, WithMinInterval(100*time.Millisecond))

	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := n.Search(context.Background(), "x"); err != nil {
			t.Fatalf("Search: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("3 requests took %v, want at least 200ms", elapsed)
	}
}

func TestNominatimThrottleRespectsContext(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}, WithMinInterval(time.Hour))

	if _, err := n.Search(context.Background(), "x"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := n.Search(ctx, "x"); err == nil {
		t.Fatal("expected context error while throttled")
	}
}
