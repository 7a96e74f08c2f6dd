package spec

import "encoding/json"

// RawJSON is a json.RawMessage that marshals from a value receiver, so it
// encodes correctly when embedded by value in event structs. A nil RawJSON
// encodes as null.
type RawJSON []byte

// MarshalJSON implements the json.Marshaller interface using a value receiver.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON implements the json.Unmarshaller interface using a pointer receiver.
func (r *RawJSON) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Decode unmarshals the raw JSON into v.
func (r RawJSON) Decode(v interface{}) error {
	return json.Unmarshal(r, v)
}

// MustMarshal encodes v, panicking on failure. It is meant for literals in
// tests and for content types that cannot fail to encode.
func MustMarshal(v interface{}) RawJSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic("spec.MustMarshal: " + err.Error())
	}
	return RawJSON(b)
}
