package expression

import (
	"math"
	"strconv"
	"strings"

	"github.com/copyleftdev/optplay/internal/optimization"
)

// ParseVector parses a comma-separated list of reals such as "3, -4.5" or
// "[1e-3, 2]". Empty input, empty entries and non-finite values are
// FormatErrors.
func ParseVector(s string) ([]float64, error) {
	const op = "ParseVector"

	body := strings.TrimSpace(s)
	body = strings.TrimPrefix(body, "[")
	body = strings.TrimSuffix(body, "]")
	if strings.TrimSpace(body) == "" {
		return nil, optimization.NewError(optimization.KindFormat, "vector is empty").
			WithComponent(component).WithOperation(op)
	}

	parts := strings.Split(body, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		tok := strings.TrimSpace(p)
		if tok == "" {
			return nil, optimization.NewErrorf(optimization.KindFormat, "entry %d of %q is empty", i+1, s).
				WithComponent(component).WithOperation(op)
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, optimization.WrapErrorf(err, optimization.KindFormat, "entry %d of %q is not a number", i+1, s).
				WithComponent(component).WithOperation(op)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, optimization.NewErrorf(optimization.KindFormat, "entry %d of %q is not finite", i+1, s).
				WithComponent(component).WithOperation(op)
		}
		out[i] = v
	}
	return out, nil
}

// ParseVariables splits a variable list such as "x, y" or "x y" into names.
// Names are validated by Compile.
func ParseVariables(s string) ([]string, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, optimization.NewError(optimization.KindParse, "variable list is empty").
			WithComponent(component).WithOperation("ParseVariables")
	}
	return fields, nil
}
