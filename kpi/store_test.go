package kpi

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nci/evalpix/processor"
	"github.com/nci/evalpix/utils"
)

func TestParseSeriesQuery(t *testing.T) {
	v := url.Values{}
	v.Set("script", "ndvi")
	v.Set("band", "2")
	v.Set("kind", "MAX")
	v.Set("time", "2020-01-01T00:00:00Z")

	q, err := ParseSeriesQuery(v.Get)
	if err != nil {
		t.Fatalf("failed to parse query: %v", err)
	}
	want := SeriesQuery{Script: "ndvi", Band: 2, Kind: processor.KPIMax, Since: "2020-01-01T00:00:00Z"}
	if diff := cmp.Diff(want, q); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]interface{}{"ndvi", "", 2, "2020-01-01T00:00:00Z", ""}, q.args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(q.sql(), "'value', max") {
		t.Errorf("max column not selected: %s", q.sql())
	}

	for _, bad := range []url.Values{
		{},
		{"script": {"ndvi"}, "band": {"-1"}},
		{"script": {"ndvi"}, "band": {"red"}},
		{"script": {"ndvi"}, "until": {"yesterday"}},
	} {
		if _, err := ParseSeriesQuery(bad.Get); err == nil {
			t.Errorf("query %v accepted", bad)
		}
	}
}

func TestKindColumn(t *testing.T) {
	for kind, col := range map[string]string{
		"mean": "mean",
		"max":  "max",
		"min":  "min",
		"std":  "std",
		"drop": "mean",
	} {
		if got := kindColumn(processor.ParseKPIKind(kind)); got != col {
			t.Errorf("kind %q gave column %q, want %q", kind, got, col)
		}
	}
}

func TestCacheKey(t *testing.T) {
	if got := CacheKey(""); got != "d41d8cd98f00b204e9800998ecf8427e" {
		t.Errorf("unexpected md5 %s", got)
	}
	if CacheKey("/?series&script=ndvi") == CacheKey("/?series&script=ndsi") {
		t.Errorf("distinct URIs share a cache key")
	}
}

func TestPutArgs(t *testing.T) {
	ts := time.Date(2020, 6, 1, 10, 0, 0, 0, time.FixedZone("AEST", 10*3600))
	k := &processor.KPISummary{Script: "ndvi", Collection: "sentinel2", TimeStamp: ts,
		Count: 3, Masked: 1, Mean: 0.5, Min: 0.1, Max: 0.9, Std: 0.2}

	args, err := putArgs(k)
	if err != nil {
		t.Fatalf("putArgs failed: %v", err)
	}
	want := []interface{}{"ndvi", "sentinel2", ts.UTC(), utils.EmptyFootprint, 0, 3, 1, 0.5, 0.1, 0.9, 0.2}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}

	k.Script = ""
	if _, err := putArgs(k); err == nil {
		t.Errorf("summary without script accepted")
	}
	k.Script = "ndvi"
	k.Footprint = "{not json"
	if _, err := putArgs(k); err == nil {
		t.Errorf("invalid footprint accepted")
	}
}

func TestDecodeSummaries(t *testing.T) {
	kpis, err := decodeSummaries(strings.NewReader(`{"script": "ndvi", "mean": 0.4}`))
	if err != nil || len(kpis) != 1 || kpis[0].Mean != 0.4 {
		t.Errorf("single summary: %v %v", kpis, err)
	}

	kpis, err = decodeSummaries(strings.NewReader(`[{"script": "ndvi"}, {"script": "ndsi"}]`))
	if err != nil || len(kpis) != 2 || kpis[1].Script != "ndsi" {
		t.Errorf("summary array: %v %v", kpis, err)
	}

	for _, body := range []string{``, `[]`, `[{"mean": 1}]`, `{"script": 3}`} {
		if _, err := decodeSummaries(strings.NewReader(body)); err == nil {
			t.Errorf("body %q accepted", body)
		}
	}
}

func TestHandlerErrors(t *testing.T) {
	h := NewHandler(NewStore(nil, nil))

	for _, tc := range []struct {
		method, target, body string
		status               int
	}{
		{"GET", "/", "", 400},
		{"GET", "/?series", "", 400},
		{"GET", "/?series&script=ndvi&band=x", "", 400},
		{"GET", "/?put", "", 405},
		{"POST", "/?put", "{", 400},
	} {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(tc.body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != tc.status {
			t.Errorf("%s %s: status %d, want %d", tc.method, tc.target, rec.Code, tc.status)
		}
		if !strings.Contains(rec.Body.String(), `"error"`) {
			t.Errorf("%s %s: body %q is not a JSON error", tc.method, tc.target, rec.Body.String())
		}
	}
}
