package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/sosodev/duration"
	"github.com/zclconf/go-cty/cty"
)

// IsExpressionProvided reports whether an optional expression attribute was
// set. gohcl fills unset optional expressions with an empty, zero-length one.
func IsExpressionProvided(expr hcl.Expression) bool {
	return expr != nil && expr.Range().End.Byte > expr.Range().Start.Byte
}

// ParseDuration evaluates a duration expression. A number is a count of
// seconds; a string starting with "P" is an ISO 8601 duration ("PT30S");
// any other string is a Go duration ("30s", "1m30s"). Negative durations are
// rejected.
func (c *Config) ParseDuration(expr hcl.Expression) (time.Duration, hcl.Diagnostics) {
	val, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return 0, diags
	}

	invalid := func(summary, detail string) (time.Duration, hcl.Diagnostics) {
		return 0, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  summary,
			Detail:   detail,
			Subject:  expr.Range().Ptr(),
		})
	}

	if val.IsNull() || !val.IsKnown() {
		return invalid("Invalid duration", "Duration must not be null")
	}

	var d time.Duration

	switch val.Type() {
	case cty.Number:
		seconds, accuracy := val.AsBigFloat().Float64()
		if accuracy != big.Exact {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagWarning,
				Summary:  "Duration precision loss",
				Detail:   "The number provided for duration may have lost precision when converted to seconds",
				Subject:  expr.Range().Ptr(),
			})
		}
		d = time.Duration(seconds * float64(time.Second))

	case cty.String:
		var err error
		d, err = ParseDurationString(val.AsString())
		if err != nil {
			return invalid("Invalid duration format", err.Error())
		}

	default:
		return invalid("Invalid duration type",
			fmt.Sprintf("Duration must be a number (seconds) or string, got %s", val.Type().FriendlyName()))
	}

	if d < 0 {
		return invalid("Invalid duration", "Duration must be positive")
	}

	return d, diags
}

// ParseDurationString parses an ISO 8601 duration or a Go duration string.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "P") {
		d, err := duration.Parse(s)
		if err != nil {
			return 0, fmt.Errorf("failed to parse ISO 8601 duration '%s': %w", s, err)
		}
		return d.ToTimeDuration(), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %w. Expected a number (seconds), ISO 8601 duration (e.g., 'PT5M'), or Go duration (e.g., '5m')", s, err)
	}
	return d, nil
}
