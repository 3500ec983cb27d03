package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/test", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/notfound", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	ts := httptest.NewServer(r)
	defer ts.Close()

	ok200 := httpRequestsTotal.WithLabelValues("GET", "200")
	nf404 := httpRequestsTotal.WithLabelValues("GET", "404")
	before200 := testutil.ToFloat64(ok200)
	before404 := testutil.ToFloat64(nf404)

	for _, path := range []string{"/test", "/notfound"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		if errInner := resp.Body.Close(); errInner != nil {
			t.Log(errInner)
		}
	}

	if val := testutil.ToFloat64(ok200); val != before200+1 {
		t.Errorf("Expected httpRequestsTotal for GET /test to be %v, got %f", before200+1, val)
	}
	if val := testutil.ToFloat64(nf404); val != before404+1 {
		t.Errorf("Expected httpRequestsTotal for GET /notfound to be %v, got %f", before404+1, val)
	}
	if val := testutil.CollectAndCount(httpRequestDurationSeconds); val <= 0 {
		t.Errorf("Expected httpRequestDurationSeconds to be observed, got %d", val)
	}
}
