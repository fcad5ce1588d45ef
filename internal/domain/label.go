package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Label is the analyst verdict on a segment or locate. The zero value is
// LabelUnset, which is distinct from LabelBad everywhere it is stored.
type Label uint8

const (
	LabelUnset Label = iota
	LabelGood
	LabelBad
)

// LabelFromBool maps true to LabelGood and false to LabelBad.
func LabelFromBool(valid bool) Label {
	if valid {
		return LabelGood
	}
	return LabelBad
}

// ParseLabel accepts "good"/"true", "bad"/"false" and ""/"unset"/"null",
// case-insensitively.
func ParseLabel(s string) (Label, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unset", "null":
		return LabelUnset, nil
	case "good", "true", "valid":
		return LabelGood, nil
	case "bad", "false", "invalid":
		return LabelBad, nil
	default:
		return LabelUnset, fmt.Errorf("parse label %q: %w", s, ErrMalformedInput)
	}
}

// IsSet reports whether the label carries a verdict.
func (l Label) IsSet() bool { return l == LabelGood || l == LabelBad }

func (l Label) String() string {
	switch l {
	case LabelGood:
		return "good"
	case LabelBad:
		return "bad"
	default:
		return "unset"
	}
}

// MarshalText encodes unset as the empty string so flat tables keep the
// three states apart.
func (l Label) MarshalText() ([]byte, error) {
	if l == LabelUnset {
		return []byte{}, nil
	}
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	v, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// MarshalJSON encodes unset as null.
func (l Label) MarshalJSON() ([]byte, error) {
	if l == LabelUnset {
		return []byte("null"), nil
	}
	return json.Marshal(l.String())
}

func (l *Label) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*l = LabelUnset
		return nil
	}
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("decode label: %w", err)
	}
	switch v := raw.(type) {
	case bool:
		*l = LabelFromBool(v)
		return nil
	case string:
		return l.UnmarshalText([]byte(v))
	default:
		return fmt.Errorf("decode label %s: %w", b, ErrMalformedInput)
	}
}
