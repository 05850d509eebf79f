package kpi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nci/evalpix/processor"
)

const maxPutBody = 32 << 20

// Spit out a simple JSON-formatted error message for Content-Type: application/json
func httpJSONError(response http.ResponseWriter, err error, status int) {
	http.Error(response, fmt.Sprintf(`{ "error": %q }`, err.Error()), status)
}

// NewHandler serves ?series queries and ?put uploads over s.
func NewHandler(s *Store) http.Handler {
	return http.HandlerFunc(func(response http.ResponseWriter, request *http.Request) {
		response.Header().Set("Content-Type", "application/json")
		query := request.URL.Query()

		if _, ok := query["series"]; ok {
			q, err := ParseSeriesQuery(query.Get)
			if err != nil {
				httpJSONError(response, err, 400)
				return
			}
			payload, err := s.Series(request.Context(), CacheKey(request.URL.RequestURI()), q)
			if err != nil {
				httpJSONError(response, err, 400)
				return
			}
			response.Write(payload)
			return
		}

		if _, ok := query["put"]; ok {
			if request.Method != http.MethodPost {
				httpJSONError(response, errors.New("put requires POST"), 405)
				return
			}
			kpis, err := decodeSummaries(io.LimitReader(request.Body, maxPutBody))
			if err != nil {
				httpJSONError(response, err, 400)
				return
			}
			if err := s.Put(request.Context(), kpis); err != nil {
				httpJSONError(response, err, 500)
				return
			}
			fmt.Fprintf(response, `{ "inserted": %d }`, len(kpis))
			return
		}

		httpJSONError(response, errors.New("unknown operation; currently supported: ?series, ?put"), 400)
	})
}

// decodeSummaries accepts a single summary or an array of them.
func decodeSummaries(r io.Reader) ([]*processor.KPISummary, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}

	var kpis []*processor.KPISummary
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &kpis); err != nil {
			return nil, err
		}
	} else {
		k := &processor.KPISummary{}
		if err := json.Unmarshal(raw, k); err != nil {
			return nil, err
		}
		kpis = append(kpis, k)
	}

	if len(kpis) == 0 {
		return nil, errors.New("no kpi summaries in request body")
	}
	for i, k := range kpis {
		if k == nil || len(k.Script) == 0 {
			return nil, fmt.Errorf("summary %d has no script", i)
		}
	}
	return kpis, nil
}
