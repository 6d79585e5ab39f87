package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/projectvak/contract-pipeline/constants"
)

// isMissing reports values that carry no data: nil, blank strings and the
// placeholders the extraction prompts ask for.
func isMissing(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		s := strings.TrimSpace(t)
		return s == "" || strings.EqualFold(s, constants.MissingSentinel) || strings.EqualFold(s, "N/A")
	}
	return false
}

// get walks nested maps along keys. Anything missing yields nil.
func get(obj any, keys ...string) any {
	for _, k := range keys {
		m, ok := obj.(map[string]any)
		if !ok {
			return nil
		}
		obj = m[k]
		if isMissing(obj) {
			return nil
		}
	}
	return obj
}

// first returns the value of the first key present in obj.
func first(obj any, keys ...string) any {
	for _, k := range keys {
		if v := get(obj, k); v != nil {
			return v
		}
	}
	return nil
}

// asMap returns v as a map, or an empty map.
func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// text renders a scalar as a trimmed string; nested values become JSON.
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		if isMissing(t) {
			return ""
		}
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func firstText(obj any, keys ...string) string {
	return text(first(obj, keys...))
}

var (
	reCurrency = regexp.MustCompile(`[€$£\s]`)
	reNumber   = regexp.MustCompile(`[\d.,]+`)
	reThousand = regexp.MustCompile(`^[1-9]\d{0,2}([.,]\d{3})+$`)
)

// number coerces JSON numbers and money-like strings ("€ 1.250,50",
// "850 EUR", "75m²") to a float.
func number(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		if isMissing(t) {
			return nil
		}
		m := reNumber.FindString(reCurrency.ReplaceAllString(t, ""))
		if m == "" {
			return nil
		}
		m = strings.Trim(m, ".,")
		if f, err := strconv.ParseFloat(decimalPoint(m), 64); err == nil {
			return &f
		}
	}
	return nil
}

// decimalPoint rewrites Belgian and English number formats to Go syntax.
// With both separators the last one is decimal; a lone separator followed
// by exactly three digits groups thousands.
func decimalPoint(s string) string {
	dot, comma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			return strings.ReplaceAll(strings.ReplaceAll(s, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(s, ",", "")
	case reThousand.MatchString(s):
		return strings.NewReplacer(".", "", ",", "").Replace(s)
	case comma >= 0:
		return strings.Replace(s, ",", ".", 1)
	}
	return s
}

var (
	trueWords  = map[string]bool{"true": true, "ja": true, "yes": true, "toegestaan": true, "1": true}
	falseWords = map[string]bool{"false": true, "nee": true, "no": true, "verboden": true, "0": true, "niet toegestaan": true}
)

// boolean coerces booleans, localized yes/no words and 0/1.
func boolean(v any) *bool {
	var b bool
	switch t := v.(type) {
	case bool:
		b = t
	case float64:
		if t != 0 && t != 1 {
			return nil
		}
		b = t == 1
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		switch {
		case trueWords[s]:
			b = true
		case falseWords[s]:
			b = false
		default:
			return nil
		}
	case map[string]any:
		return boolean(get(t, "toegestaan"))
	default:
		return nil
	}
	return &b
}

var dateLayouts = []string{"2006-1-2", "2-1-2006", "2/1/2006", "2006/1/2"}

// date converts the accepted input formats to YYYY-MM-DD. Unrecognized
// text is kept verbatim so no information is lost.
func date(v any) *string {
	if isMissing(v) {
		return nil
	}
	s := text(v)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("2006-01-02")
			return &out
		}
	}
	return &s
}
