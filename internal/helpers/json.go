package helpers

import (
	"bytes"
	"encoding/json"
)

// MarshalJson encodes v without html escaping and without the trailing
// newline json.Encoder adds.
func MarshalJson(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(v)
	return bytes.TrimRight(buf.Bytes(), "\n"), err
}
