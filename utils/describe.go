package utils

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/CloudyKit/jet"
)

const describeTemplate = "script_describe.tpl"

type thresholdDescription struct {
	Upper string
	Value string
}

type scriptDescription struct {
	Name       string
	Title      string
	Abstract   string
	Inputs     string
	Formula    string
	Bands      int
	Mode       string
	Thresholds []thresholdDescription
}

func formatFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func describeFormula(f *Formula) string {
	var desc string
	switch {
	case len(f.Name) > 0:
		desc = strings.ToUpper(f.Name)
	case len(f.Bands) == 2:
		desc = fmt.Sprintf("(%s - %s) / (%s + %s)", f.Bands[0], f.Bands[1], f.Bands[0], f.Bands[1])
	default:
		desc = f.Expression
	}
	if f.ZeroDenominator != nil {
		desc += fmt.Sprintf(", %v on a zero denominator", *f.ZeroDenominator)
	}
	return desc
}

func describeScript(s *Script) *scriptDescription {
	d := &scriptDescription{
		Name:     s.FullName(),
		Title:    s.Title,
		Abstract: s.Abstract,
		Inputs:   strings.Join(s.Input, ", "),
		Formula:  describeFormula(&s.Formula),
		Bands:    s.Output.Bands,
	}

	if s.Ramp != nil {
		d.Mode = s.Ramp.Mode
		if len(d.Mode) == 0 {
			d.Mode = "step"
		}
		for _, e := range s.Ramp.Entries {
			upper := math.Inf(1)
			if e.Upper != nil {
				upper = *e.Upper
			}
			d.Thresholds = append(d.Thresholds, thresholdDescription{
				Upper: strconv.FormatFloat(upper, 'g', -1, 64),
				Value: formatFloats(e.Value),
			})
		}
	}
	return d
}

// DescribeScripts renders a human readable summary of every configured
// script through the script_describe.tpl template found in tplDir.
func DescribeScripts(w io.Writer, configMap map[string]*Config, tplDir string) error {
	absDir, err := filepath.Abs(tplDir)
	if err != nil {
		return fmt.Errorf("Error resolving template directory %s: %v", tplDir, err)
	}

	view := jet.NewSet(jet.SafeWriter(func(w io.Writer, b []byte) {
		w.Write(b)
	}), absDir, "/")

	template, err := view.GetTemplate(describeTemplate)
	if err != nil {
		return fmt.Errorf("Error trying to parse template document: %v", err)
	}

	data := struct {
		Scripts []*scriptDescription
	}{}
	for _, s := range AllScripts(configMap) {
		data.Scripts = append(data.Scripts, describeScript(s))
	}

	vars := make(jet.VarMap)
	if err = template.Execute(w, vars, data); err != nil {
		return fmt.Errorf("Error executing template: %v", err)
	}
	return nil
}
