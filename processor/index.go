package processor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	goeval "github.com/edisonguo/govaluate"
)

// IndexFormula turns the bands of a valid sample into one scalar.
// Implementations never return NaN or an infinity.
type IndexFormula interface {
	Name() string
	Bands() []string
	Domain() Domain
	Evaluate(s Sample) (float64, error)
}

// DefaultZeroDenominator is emitted when a normalised difference has
// a zero denominator and no other sentinel was configured.
const DefaultZeroDenominator = 0.0

func checkSentinel(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return configErrorf("formula.zero_denominator", "sentinel must be finite, got %v", v)
	}
	return nil
}

// NormalizedDifference computes (A - B) / (A + B).
type NormalizedDifference struct {
	Label           string
	A, B            string
	ZeroDenominator float64
}

func NewNormalizedDifference(label, a, b string, zeroDenominator float64) (*NormalizedDifference, error) {
	if len(a) == 0 || len(b) == 0 {
		return nil, configErrorf("formula.bands", "normalised difference needs two band names, got %q and %q", a, b)
	}
	if a == DataMaskBand || b == DataMaskBand {
		return nil, configErrorf("formula.bands", "%s cannot be used as an index band", DataMaskBand)
	}
	if err := checkSentinel(zeroDenominator); err != nil {
		return nil, err
	}
	if len(label) == 0 {
		label = fmt.Sprintf("(%s-%s)/(%s+%s)", a, b, a, b)
	}
	return &NormalizedDifference{Label: label, A: a, B: b, ZeroDenominator: zeroDenominator}, nil
}

func (nd *NormalizedDifference) Name() string {
	return nd.Label
}

func (nd *NormalizedDifference) Bands() []string {
	return []string{nd.A, nd.B}
}

// Domain is [-1, 1], which holds for non-negative reflectances.
func (nd *NormalizedDifference) Domain() Domain {
	return Domain{Min: -1, Max: 1}
}

// Index is the pure evaluation of the formula over two band values.
func (nd *NormalizedDifference) Index(a, b float64) float64 {
	sum := a + b
	if sum == 0 {
		return nd.ZeroDenominator
	}
	v := (a - b) / sum
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nd.ZeroDenominator
	}
	return v
}

func (nd *NormalizedDifference) Evaluate(s Sample) (float64, error) {
	a, ok := s.Band(nd.A)
	if !ok {
		return 0, missingBand(nd.A)
	}
	b, ok := s.Band(nd.B)
	if !ok {
		return 0, missingBand(nd.B)
	}
	return nd.Index(a, b), nil
}

// ExpressionFormula evaluates an arbitrary band-math expression such as
// "2.5 * ((B08 - B04) / (B08 + 6 * B04 - 7.5 * B02 + 1))".
type ExpressionFormula struct {
	Label      string
	Expression string
	// Fallback replaces non-finite results, e.g. from a zero divisor.
	Fallback float64

	expr   *goeval.EvaluableExpression
	vars   []string
	domain Domain
}

func NewExpressionFormula(label, expression string, domain Domain, fallback float64) (*ExpressionFormula, error) {
	if len(strings.TrimSpace(expression)) == 0 {
		return nil, configErrorf("formula.expression", "empty expression")
	}
	if err := checkSentinel(fallback); err != nil {
		return nil, err
	}
	if domain.Min > domain.Max {
		return nil, configErrorf("formula.domain", "min %v is greater than max %v", domain.Min, domain.Max)
	}

	expr, err := goeval.NewEvaluableExpression(expression)
	if err != nil {
		return nil, configErrorf("formula.expression", "%v", err)
	}

	varSet := map[string]struct{}{}
	for _, token := range expr.Tokens() {
		if token.Kind == goeval.VARIABLE {
			varName, ok := token.Value.(string)
			if !ok {
				return nil, configErrorf("formula.expression", "variable token '%v' failed to cast string", token.Value)
			}
			if varName == DataMaskBand {
				return nil, configErrorf("formula.expression", "%s cannot be used in an expression", DataMaskBand)
			}
			varSet[varName] = struct{}{}
		}
	}
	if len(varSet) == 0 {
		return nil, configErrorf("formula.expression", "expression %q references no bands", expression)
	}

	vars := make([]string, 0, len(varSet))
	for v := range varSet {
		vars = append(vars, v)
	}
	sort.Strings(vars)

	if len(label) == 0 {
		label = expression
	}
	return &ExpressionFormula{Label: label, Expression: expression, Fallback: fallback,
		expr: expr, vars: vars, domain: domain}, nil
}

func (ef *ExpressionFormula) Name() string {
	return ef.Label
}

func (ef *ExpressionFormula) Bands() []string {
	out := make([]string, len(ef.vars))
	copy(out, ef.vars)
	return out
}

func (ef *ExpressionFormula) Domain() Domain {
	return ef.domain
}

type sampleParams struct {
	s Sample
}

func (p sampleParams) Get(name string) (interface{}, error) {
	v, ok := p.s.Band(name)
	if !ok {
		return nil, missingBand(name)
	}
	return v, nil
}

func (ef *ExpressionFormula) Evaluate(s Sample) (float64, error) {
	for _, v := range ef.vars {
		if _, ok := s.Band(v); !ok {
			return 0, missingBand(v)
		}
	}

	res, err := ef.expr.Eval(sampleParams{s})
	if err != nil {
		return 0, fmt.Errorf("evaluating %s: %v", ef.Label, err)
	}

	var v float64
	switch t := res.(type) {
	case float32:
		v = float64(t)
	case float64:
		v = t
	case bool:
		if t {
			v = 1
		}
	default:
		return 0, fmt.Errorf("evaluating %s: unexpected result type %T", ef.Label, res)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ef.Fallback, nil
	}
	return v, nil
}

var namedDifferences = map[string][2]string{
	"NDVI": {"B08", "B04"},
	"NDWI": {"B03", "B08"},
	"NDBI": {"B11", "B08"},
	"NDSI": {"B03", "B11"},
}

var namedExpressions = map[string]string{
	"EVI":  "2.5 * ((B08 - B04) / (B08 + 6 * B04 - 7.5 * B02 + 1))",
	"SAVI": "((B08 - B04) / (B08 + B04 + 0.5)) * (1 + 0.5)",
	"ARVI": "(B08 - (2 * B04 - B02)) / (B08 + (2 * B04 - B02))",
}

// NamedFormulas lists the formula names accepted by LookupFormula.
func NamedFormulas() []string {
	var names []string
	for k := range namedDifferences {
		names = append(names, k)
	}
	for k := range namedExpressions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// LookupFormula returns a well-known index by name, case-insensitively.
func LookupFormula(name string, sentinel float64) (IndexFormula, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	if bands, ok := namedDifferences[key]; ok {
		return NewNormalizedDifference(key, bands[0], bands[1], sentinel)
	}
	if expr, ok := namedExpressions[key]; ok {
		return NewExpressionFormula(key, expr, UnboundedDomain, sentinel)
	}
	return nil, configErrorf("formula.name", "unknown formula %q, valid names are %v", name, NamedFormulas())
}
