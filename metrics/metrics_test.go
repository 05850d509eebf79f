package metrics

import (
	"encoding/json"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestToJSON(t *testing.T) {
	m := NewMetricsCollector(nil)
	m.Info.RemoteAddr = "10.0.0.1:5432"
	m.Info.URL.RawURL = "http://localhost:8888/kpi?script=ndvi&kpi=mean"
	m.Info.Pipeline.Footprint = `{"type":"Feature","geometry":{"type":"Point","coordinates":[149.1,-35.3]}}`
	m.AddScript("ndvi")
	m.AddScript("ndvi")
	m.Fail(400, errors.New("bad request"))

	out, err := m.Info.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var info MetricsInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("invalid json %s: %v", out, err)
	}
	if info.RemoteHost != "10.0.0.1" || info.RemotePort != "5432" {
		t.Errorf("remote address not split: %s %s", info.RemoteHost, info.RemotePort)
	}
	if info.URL.Path != "/kpi" || info.URL.Query["script"] != "ndvi" {
		t.Errorf("url not normalised: %+v", info.URL)
	}
	if !strings.HasPrefix(info.Pipeline.Footprint, "POINT") {
		t.Errorf("footprint not converted to WKT: %s", info.Pipeline.Footprint)
	}
	if len(info.Scripts) != 1 || info.HTTPStatus != 400 || info.Error != "bad request" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestToJSONEmptyFootprint(t *testing.T) {
	m := NewMetricsCollector(nil)
	if _, err := m.Info.ToJSON(); err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}
	if m.Info.Pipeline.Footprint != "POLYGON EMPTY" {
		t.Errorf("empty footprint recorded as %q", m.Info.Pipeline.Footprint)
	}
}

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	l := NewFileLogger(dir, 1, 2, false)
	for i := 0; i < 8; i++ {
		m := NewMetricsCollector(l)
		m.Info.ReqDuration = time.Duration(i)
		m.Log()
	}
	l.Close()

	files, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to list log dir: %v", err)
	}
	// two writers, each with a live file and at most two rotated ones
	if len(files) == 0 || len(files) > 6 {
		t.Errorf("found %d log files", len(files))
	}
	for _, f := range files {
		if !strings.HasPrefix(f.Name(), "metrics") {
			t.Errorf("unexpected file %s", f.Name())
		}
		data, _ := ioutil.ReadFile(filepath.Join(dir, f.Name()))
		for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
			if len(line) > 0 && !json.Valid([]byte(line)) {
				t.Errorf("%s holds invalid json: %s", f.Name(), line)
			}
		}
	}
}

func TestNewLogger(t *testing.T) {
	if l := NewLogger("", false, nil); l != nil {
		t.Errorf("empty log dir gave a logger")
	}
	if _, ok := NewLogger("-", false, nil).(*StdoutLogger); !ok {
		t.Errorf("- did not give a stdout logger")
	}

	os.Setenv("EVALPIX_MAX_LOG_FILE_SIZE", "4096")
	defer os.Unsetenv("EVALPIX_MAX_LOG_FILE_SIZE")
	l, ok := NewLogger(t.TempDir(), false, nil).(*FileLogger)
	if !ok {
		t.Fatalf("log dir did not give a file logger")
	}
	defer l.Close()
	if l.MaxLogFileSize != 4096 || l.MaxLogFiles != defaultMaxLogFiles {
		t.Errorf("file logger limits %d %d", l.MaxLogFileSize, l.MaxLogFiles)
	}
}
