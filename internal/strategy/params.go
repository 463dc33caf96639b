package strategy

import (
	"fmt"
	"strconv"
)

// Params carries strategy parameters merged from profile defaults and CLI
// overrides. Accessors coerce the usual YAML/JSON scalar encodings.
type Params map[string]any

// Float returns the parameter as float64, or def when absent/uncoercible.
func (p Params) Float(key string, def float64) float64 {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns the parameter as int, or def when absent/uncoercible.
func (p Params) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return def
}

// String returns the parameter as string, or def when absent.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Clone returns a shallow copy.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge overlays other on top of p into a new Params.
func (p Params) Merge(other Params) Params {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}
