package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"
)

// Amount is a token quantity in base units. It decodes from a JSON number or
// a string such as "1500" or "1.5e21"; the value must be integral.
type Amount struct {
	big.Int
}

// ParseAmount parses s as an integral amount
func ParseAmount(s string) (Amount, error) {
	var a Amount
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return a, fmt.Errorf("invalid amount %q", s)
	}
	if !r.IsInt() {
		return a, fmt.Errorf("amount %q is not integral", s)
	}
	a.Int.Set(r.Num())
	return a, nil
}

// MustAmount is ParseAmount for constants
func MustAmount(s string) Amount {
	a, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Big returns a copy of the amount
func (a *Amount) Big() *big.Int {
	return new(big.Int).Set(&a.Int)
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Int.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// bare number
		s = string(data)
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

func (a Amount) MarshalYAML() (interface{}, error) {
	return a.Int.String(), nil
}

func (a *Amount) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Duration decodes from strings such as "10s" or "1m30s"
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}
