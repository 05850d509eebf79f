package utils

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"gopkg.in/yaml.v2"
)

var EtcDir = "."
var DataDir = "."

type ServiceConfig struct {
	Hostname    string   `json:"hostname" yaml:"hostname"`
	KPIAddress  string   `json:"kpi_address" yaml:"kpi_address"`
	WorkerNodes []string `json:"worker_nodes" yaml:"worker_nodes"`
}

// Formula selects the index a script computes. Exactly one of Name,
// Bands or Expression must be set.
type Formula struct {
	// Name of a well-known index such as NDVI or EVI.
	Name string `json:"name" yaml:"name"`
	// Bands holds the two bands A and B of (A - B) / (A + B).
	Bands      []string  `json:"bands" yaml:"bands"`
	Expression string    `json:"expression" yaml:"expression"`
	Domain     []float64 `json:"domain" yaml:"domain"`
	// ZeroDenominator is emitted instead of an undefined result.
	ZeroDenominator *float64 `json:"zero_denominator" yaml:"zero_denominator"`
}

// Threshold is one ramp row. A missing upper bound is the catch-all
// +Inf row.
type Threshold struct {
	Upper *float64  `json:"upper" yaml:"upper"`
	Value []float64 `json:"value" yaml:"value"`
}

// MarshalJSON writes a +Inf upper bound, which YAML spells .inf, as
// null so the catch-all row survives a JSON round trip.
func (t Threshold) MarshalJSON() ([]byte, error) {
	type threshold Threshold
	out := threshold(t)
	if out.Upper != nil && math.IsInf(*out.Upper, 1) {
		out.Upper = nil
	}
	return json.Marshal(out)
}

type Ramp struct {
	Mode    string      `json:"mode" yaml:"mode"`
	Entries []Threshold `json:"entries" yaml:"entries"`
}

type Output struct {
	Bands  int       `json:"bands" yaml:"bands"`
	NoData []float64 `json:"no_data" yaml:"no_data"`
}

type Scale struct {
	Offset float64 `json:"offset" yaml:"offset"`
	Scale  float64 `json:"scale" yaml:"scale"`
	Clip   float64 `json:"clip" yaml:"clip"`
}

// Script contains everything needed to evaluate and render one derived
// product, e.g. an NDVI colour map.
type Script struct {
	NameSpace string   `json:"-" yaml:"-"`
	Name      string   `json:"name" yaml:"name"`
	Title     string   `json:"title" yaml:"title"`
	Abstract  string   `json:"abstract" yaml:"abstract"`
	Input     []string `json:"input" yaml:"input"`
	Formula   Formula  `json:"formula" yaml:"formula"`
	Ramp      *Ramp    `json:"ramp" yaml:"ramp"`
	Output    Output   `json:"output" yaml:"output"`
	Scale     *Scale   `json:"scale" yaml:"scale"`
	// Palette colours single band outputs when rendered to an image.
	Palette *Ramp `json:"palette" yaml:"palette"`
}

// FullName is the script name qualified by the config namespace.
func (s *Script) FullName() string {
	if len(s.NameSpace) == 0 {
		return s.Name
	}
	return s.NameSpace + "/" + s.Name
}

// Config is the struct representing one config.json or config.yaml
// document: service settings and the scripts that can be evaluated.
type Config struct {
	ServiceConfig ServiceConfig `json:"service_config" yaml:"service_config"`
	Scripts       []Script      `json:"scripts" yaml:"scripts"`
}

var configFileNames = map[string]bool{
	"config.json": true,
	"config.yaml": true,
	"config.yml":  true,
}

func LoadAllConfigFiles(rootDir string, verbose bool) (map[string]*Config, error) {
	configMap := make(map[string]*Config)
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() && configFileNames[info.Name()] {
			relPath, _ := filepath.Rel(rootDir, filepath.Dir(path))
			if verbose {
				log.Printf("Loading config file: %s under namespace: %s\n", path, relPath)
			}

			config := &Config{}
			e := config.LoadConfigFile(path)
			if e != nil {
				return e
			}

			ns := relPath
			if relPath == "." {
				ns = ""
			}
			if _, found := configMap[ns]; found {
				return fmt.Errorf("more than one config file under namespace %q", relPath)
			}
			configMap[ns] = config

			for i := range config.Scripts {
				config.Scripts[i].NameSpace = ns
			}
		}
		return nil
	})

	if err == nil && len(configMap) == 0 {
		err = fmt.Errorf("No config file found")
	}

	return configMap, err
}

// LoadConfigFile parses a JSON or YAML document, chosen by extension,
// and checks its structure.
func (config *Config) LoadConfigFile(configFile string) error {
	*config = Config{}
	cfg, err := ioutil.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("Error while reading config file: %s. Error: %v", configFile, err)
	}

	switch strings.ToLower(filepath.Ext(configFile)) {
	case ".yaml", ".yml":
		err = yaml.UnmarshalStrict(cfg, config)
		if err != nil {
			return fmt.Errorf("Error at YAML parsing config document: %s. Error: %v", configFile, err)
		}
	default:
		err = json.Unmarshal(cfg, config)
		if err != nil {
			return fmt.Errorf("Error at JSON parsing config document: %s. Error: %v", configFile, err)
		}
	}

	if err = config.Validate(); err != nil {
		return fmt.Errorf("Invalid config document: %s. Error: %v", configFile, err)
	}
	return nil
}

// Validate catches structural mistakes. Semantic checks such as ramp
// coverage happen when scripts are compiled.
func (config *Config) Validate() error {
	seen := make(map[string]bool)
	for i, s := range config.Scripts {
		if len(s.Name) == 0 {
			return fmt.Errorf("script %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate script name: %s", s.Name)
		}
		seen[s.Name] = true

		if len(s.Input) == 0 {
			return fmt.Errorf("script %s declares no input bands", s.Name)
		}
		if s.Output.Bands < 1 || s.Output.Bands > 4 {
			return fmt.Errorf("script %s: output bands must be 1, 2, 3 or 4, got %d", s.Name, s.Output.Bands)
		}

		nSel := 0
		if len(s.Formula.Name) > 0 {
			nSel++
		}
		if len(s.Formula.Bands) > 0 {
			nSel++
			if len(s.Formula.Bands) != 2 {
				return fmt.Errorf("script %s: formula.bands needs exactly 2 bands, got %d", s.Name, len(s.Formula.Bands))
			}
		}
		if len(s.Formula.Expression) > 0 {
			nSel++
		}
		if nSel != 1 {
			return fmt.Errorf("script %s: specify exactly one of formula.name, formula.bands or formula.expression", s.Name)
		}
		if s.Formula.Domain != nil && len(s.Formula.Domain) != 2 {
			return fmt.Errorf("script %s: formula.domain must be [min, max]", s.Name)
		}

		if s.Ramp != nil && len(s.Ramp.Entries) == 0 {
			return fmt.Errorf("script %s: ramp has no entries", s.Name)
		}
		if s.Palette != nil && len(s.Palette.Entries) < 2 {
			return fmt.Errorf("script %s: the colour palette must contain at least 2 colours", s.Name)
		}
	}
	return nil
}

// AllScripts flattens a config map into one list ordered by namespace
// then declaration order.
func AllScripts(configMap map[string]*Config) []*Script {
	var nss []string
	for ns := range configMap {
		nss = append(nss, ns)
	}
	sort.Strings(nss)

	var out []*Script
	for _, ns := range nss {
		conf := configMap[ns]
		for i := range conf.Scripts {
			out = append(out, &conf.Scripts[i])
		}
	}
	return out
}

func DumpConfig(configs map[string]*Config) (string, error) {
	configJson, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return "", err
	}
	return string(configJson), nil
}

// WatchConfig reloads every config file on SIGHUP and hands the new
// map to onReload. A failed load leaves the running configuration alone.
func WatchConfig(infoLog, errLog *log.Logger, verbose bool, onReload func(map[string]*Config) error) {
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			infoLog.Println("Caught SIGHUP, reloading config...")
			confMap, err := LoadAllConfigFiles(EtcDir, verbose)
			if err != nil {
				errLog.Printf("Error in loading config files: %v\n", err)
				continue
			}

			if err = onReload(confMap); err != nil {
				errLog.Printf("Rejected reloaded config: %v\n", err)
			}
		}
	}()
}
