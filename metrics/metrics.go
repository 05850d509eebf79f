package metrics

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/url"
	"time"

	"github.com/nci/evalpix/utils"
)

type URLInfo struct {
	RawURL string            `json:"raw_url"`
	Host   string            `json:"host"`
	Path   string            `json:"path"`
	Query  map[string]string `json:"query"`
}

// PipelineInfo records the work done evaluating one request.
type PipelineInfo struct {
	Duration  time.Duration `json:"duration"`
	NumTiles  int           `json:"num_tiles"`
	NumPixels int           `json:"num_pixels"`
	NumMasked int           `json:"num_masked"`
	// Footprint is GeoJSON when set and WKT once normalised.
	Footprint string `json:"footprint"`
}

type RPCInfo struct {
	Duration  time.Duration `json:"duration"`
	NumCalls  int           `json:"num_calls"`
	BytesSent int64         `json:"bytes_sent"`
	BytesRecv int64         `json:"bytes_recv"`
}

type MetricsInfo struct {
	ReqTime     string        `json:"req_time"`
	ReqDuration time.Duration `json:"req_duration"`
	Method      string        `json:"method"`
	Scripts     []string      `json:"scripts"`
	URL         URLInfo       `json:"url"`
	RemoteAddr  string        `json:"remote_addr"`
	RemoteHost  string        `json:"remote_host"`
	RemotePort  string        `json:"remote_port"`
	HTTPStatus  int           `json:"http_status"`
	Error       string        `json:"error,omitempty"`
	Pipeline    *PipelineInfo `json:"pipeline"`
	RPC         *RPCInfo      `json:"rpc"`
}

type MetricsCollector struct {
	Info   *MetricsInfo
	logger Logger
}

func NewMetricsCollector(logger Logger) *MetricsCollector {
	return &MetricsCollector{
		Info: &MetricsInfo{
			Pipeline: &PipelineInfo{},
			RPC:      &RPCInfo{},
		},
		logger: logger,
	}
}

// AddScript records a script name once.
func (m *MetricsCollector) AddScript(name string) {
	for _, s := range m.Info.Scripts {
		if s == name {
			return
		}
	}
	m.Info.Scripts = append(m.Info.Scripts, name)
}

// Fail marks the request as failed with the given status.
func (m *MetricsCollector) Fail(status int, err error) {
	m.Info.HTTPStatus = status
	if err != nil {
		m.Info.Error = err.Error()
	}
}

func (m *MetricsCollector) Log() {
	if m.logger != nil {
		m.logger.Log(m.Info)
	}
}

func (i *MetricsInfo) ToJSON() (string, error) {
	i.normaliseNetworkAddr(i.RemoteAddr)
	i.normaliseURLs()
	err := i.normaliseGeometry()
	if err != nil {
		log.Printf("metrics: normaliseGeometry() error: %v", err)
	}

	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err = enc.Encode(i)
	if err == nil {
		return buf.String(), nil
	} else {
		return "", err
	}
}

func (i *MetricsInfo) normaliseNetworkAddr(addr string) {
	if len(addr) == 0 {
		return
	}
	host, port, err := net.SplitHostPort(addr)
	if err == nil {
		i.RemoteHost = host
		i.RemotePort = port
	} else {
		i.RemoteHost = addr
	}
}

func (i *MetricsInfo) normaliseURLs() {
	if len(i.URL.RawURL) == 0 {
		return
	}
	err := i.normaliseURL(&i.URL)
	if err != nil {
		log.Printf("metrics: normaliseUrl() error: %v", err)
	}
}

func (i *MetricsInfo) normaliseURL(u *URLInfo) error {
	r, err := url.Parse(u.RawURL)
	if err != nil {
		return err
	}

	u.Host = r.Host
	u.Path = r.Path
	query, err := url.ParseQuery(r.RawQuery)
	if err != nil {
		return err
	}

	if u.Query == nil {
		u.Query = make(map[string]string)
	}
	for k, v := range query {
		if len(v) == 1 {
			u.Query[k] = v[0]
		} else if len(v) > 1 {
			u.Query[k] = fmt.Sprintf("%v", v)
		} else {
			u.Query[k] = ""
		}
	}
	return nil
}

// normaliseGeometry rewrites a GeoJSON footprint as WKT so log
// consumers see a single geometry format.
func (i *MetricsInfo) normaliseGeometry() error {
	if i.Pipeline == nil {
		return nil
	}
	if len(i.Pipeline.Footprint) == 0 {
		i.Pipeline.Footprint = utils.EmptyFootprint
		return nil
	}
	if i.Pipeline.Footprint[0] != '{' {
		return nil
	}

	wkt, err := utils.FootprintWKT(i.Pipeline.Footprint)
	if err != nil {
		return err
	}
	i.Pipeline.Footprint = wkt
	return nil
}
