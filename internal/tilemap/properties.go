package tilemap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Properties is a custom-property bag. The editor writes it as an array of
// {name, type, value}; hand-written maps often use a plain object. Both decode.
type Properties map[string]any

type property struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

func (p *Properties) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	out := make(Properties)
	switch b[0] {
	case '[':
		var list []property
		if err := json.Unmarshal(b, &list); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		for _, e := range list {
			out[e.Name] = e.Value
		}
	case '{':
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("properties: %w", err)
		}
		for k, v := range m {
			out[k] = v
		}
	default:
		return fmt.Errorf("properties: unexpected %q", b[0])
	}
	*p = out
	return nil
}

// Lookup finds a property by case-insensitive name.
func (p Properties) Lookup(name string) (any, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	for k, v := range p {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// Bool returns the property as a bool. Strings "true"/"1" count as true.
func (p Properties) Bool(name string) (bool, bool) {
	v, ok := p.Lookup(name)
	if !ok {
		return false, false
	}
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return b, err == nil
	case float64:
		return t != 0, true
	}
	return false, false
}

// Int returns the property as an int. JSON numbers and numeric strings are accepted.
func (p Properties) Int(name string) (int, bool) {
	v, ok := p.Lookup(name)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// String returns the property as a string.
func (p Properties) String(name string) (string, bool) {
	v, ok := p.Lookup(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// AnyTrue reports whether any of the named properties is a true bool.
func (p Properties) AnyTrue(names ...string) bool {
	for _, n := range names {
		if b, ok := p.Bool(n); ok && b {
			return true
		}
	}
	return false
}
