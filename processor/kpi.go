package processor

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"
)

type KPIKind string

const (
	KPIMean KPIKind = "mean"
	KPIMax  KPIKind = "max"
	KPIMin  KPIKind = "min"
	KPIStd  KPIKind = "std"
)

// ParseKPIKind falls back to mean for unknown names.
func ParseKPIKind(s string) KPIKind {
	switch KPIKind(strings.ToLower(s)) {
	case KPIMax:
		return KPIMax
	case KPIMin:
		return KPIMin
	case KPIStd:
		return KPIStd
	default:
		return KPIMean
	}
}

// KPISummary holds statistics of one output band over the valid pixels
// of a tile. Std is the population standard deviation.
type KPISummary struct {
	Script     string    `json:"script"`
	Collection string    `json:"collection"`
	TimeStamp  time.Time `json:"timestamp"`
	Footprint  string    `json:"footprint,omitempty"`
	Band       int       `json:"band"`
	Count      int       `json:"count"`
	Masked     int       `json:"masked"`
	Mean       float64   `json:"mean"`
	Min        float64   `json:"min"`
	Max        float64   `json:"max"`
	Std        float64   `json:"std"`
}

// Value returns the statistic selected by kind.
func (k *KPISummary) Value(kind KPIKind) float64 {
	switch kind {
	case KPIMax:
		return k.Max
	case KPIMin:
		return k.Min
	case KPIStd:
		return k.Std
	default:
		return k.Mean
	}
}

// ComputeKPI summarises band b of t. Masked pixels and non-finite values
// are left out; an empty tile gives a zero summary.
func ComputeKPI(t *PixelTile, b int) (*KPISummary, error) {
	if b < 0 || b >= t.Bands {
		return nil, fmt.Errorf("band %d out of range, tile has %d bands", b, t.Bands)
	}

	k := &KPISummary{Script: t.Script, Collection: t.Collection, TimeStamp: t.TimeStamp,
		Footprint: t.Footprint, Band: b}

	// Welford's online mean and variance
	var mean, m2 float64
	for i, valid := range t.Valid {
		if !valid {
			k.Masked++
			continue
		}
		v := float64(t.Data[i*t.Bands+b])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		k.Count++
		if k.Count == 1 {
			k.Min, k.Max = v, v
		} else {
			k.Min = math.Min(k.Min, v)
			k.Max = math.Max(k.Max, v)
		}
		delta := v - mean
		mean += delta / float64(k.Count)
		m2 += delta * (v - mean)
	}

	if k.Count > 0 {
		k.Mean = mean
		k.Std = math.Sqrt(m2 / float64(k.Count))
	}
	return k, nil
}

// KPIAggregator summarises tiles as they pass, forwarding the tiles
// unchanged.
type KPIAggregator struct {
	In    chan *PixelTile
	Out   chan *PixelTile
	KPIs  chan *KPISummary
	Error chan error
	Band  int
}

func NewKPIAggregator(band int, errChan chan error) *KPIAggregator {
	return &KPIAggregator{
		In:    make(chan *PixelTile, 100),
		Out:   make(chan *PixelTile, 100),
		KPIs:  make(chan *KPISummary, 100),
		Error: errChan,
		Band:  band,
	}
}

func (ka *KPIAggregator) Run(verbose bool) {
	defer close(ka.Out)
	defer close(ka.KPIs)

	for t := range ka.In {
		k, err := ComputeKPI(t, ka.Band)
		if err != nil {
			ka.Error <- err
			return
		}
		if verbose {
			log.Printf("kpi: %s count=%d mean=%.4f min=%.4f max=%.4f std=%.4f", k.Script, k.Count, k.Mean, k.Min, k.Max, k.Std)
		}
		ka.KPIs <- k
		ka.Out <- t
	}
}
