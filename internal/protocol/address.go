package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Address identifies a span or relation on the server.
// The server sends addresses either as JSON numbers or as strings; both decode
// to the same textual form, which is what identity comparisons use.
type Address string

// AddressOf converts a numeric annotation id into an Address
func AddressOf(id int64) Address {
	return Address(strconv.FormatInt(id, 10))
}

func (a Address) String() string {
	return string(a)
}

// Matches reports whether two addresses denote the same annotation
func (a Address) Matches(other Address) bool {
	return a.String() == other.String()
}

// MarshalJSON emits numeric addresses as numbers so the server can bind them to integer fields
func (a Address) MarshalJSON() ([]byte, error) {
	if a == "" {
		return []byte("null"), nil
	}
	// only canonical integers go out bare: "007" or "+5" are not JSON numbers
	if n, err := strconv.ParseInt(string(a), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(a) {
		return []byte(a), nil
	}
	return json.Marshal(string(a))
}

func (a *Address) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to decode address: %w", err)
		}
		*a = Address(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("failed to decode address %s: %w", data, err)
	}
	*a = canonicalNumber(n)
	return nil
}

// canonicalNumber renders integral numbers in plain decimal, so 5, 5.0 and
// 5e0 all address the same annotation
func canonicalNumber(n json.Number) Address {
	if i, err := n.Int64(); err == nil {
		return AddressOf(i)
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<63 {
		return AddressOf(int64(f))
	}
	return Address(n.String())
}
