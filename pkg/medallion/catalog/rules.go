package catalog

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rule normalizes or validates one coerced field value. Rules never see nil.
type Rule func(v any) (any, error)

func stringRule(fn func(string) (string, error)) Rule {
	return func(v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		return fn(s)
	}
}

// Trim strips surrounding whitespace.
var Trim = stringRule(func(s string) (string, error) { return strings.TrimSpace(s), nil })

// Upper trims and upper-cases.
var Upper = stringRule(func(s string) (string, error) { return strings.ToUpper(strings.TrimSpace(s)), nil })

// Lower trims and lower-cases.
var Lower = stringRule(func(s string) (string, error) { return strings.ToLower(strings.TrimSpace(s)), nil })

// Title trims and title-cases every word.
var Title = stringRule(func(s string) (string, error) {
	// a Caser is stateful, so one per call
	return cases.Title(language.English).String(strings.TrimSpace(s)), nil
})

// Match requires the whole value to match re.
func Match(re *regexp.Regexp) Rule {
	return stringRule(func(s string) (string, error) {
		if !re.MatchString(s) {
			return s, fmt.Errorf("%q does not match %s", s, re)
		}
		return s, nil
	})
}

// MinLen requires at least n characters.
func MinLen(n int) Rule {
	return stringRule(func(s string) (string, error) {
		if len([]rune(s)) < n {
			return s, fmt.Errorf("%q shorter than %d", s, n)
		}
		return s, nil
	})
}

// OneOf requires the value to equal one of the allowed values.
func OneOf(allowed ...string) Rule {
	return stringRule(func(s string) (string, error) {
		for _, a := range allowed {
			if s == a {
				return s, nil
			}
		}
		return s, fmt.Errorf("%q not one of %s", s, strings.Join(allowed, ", "))
	})
}

// Email requires a bare e-mail address.
var Email = stringRule(func(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return s, fmt.Errorf("%q is not an e-mail address", s)
	}
	return s, nil
})

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

// Positive requires a number greater than zero.
func Positive(v any) (any, error) {
	if f, ok := number(v); ok && f <= 0 {
		return v, fmt.Errorf("%v must be greater than zero", v)
	}
	return v, nil
}

// Between requires a number within [min, max].
func Between(min, max float64) Rule {
	return func(v any) (any, error) {
		if f, ok := number(v); ok && (f < min || f > max || math.IsNaN(f)) {
			return v, fmt.Errorf("%v outside [%g, %g]", v, min, max)
		}
		return v, nil
	}
}

// NonNegative requires a number of at least zero.
var NonNegative = Between(0, math.Inf(1))

// Round rounds a float to the given number of decimals.
func Round(decimals int) Rule {
	p := math.Pow(10, float64(decimals))
	return func(v any) (any, error) {
		if f, ok := v.(float64); ok {
			return math.Round(f*p) / p, nil
		}
		return v, nil
	}
}
