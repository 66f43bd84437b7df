package httpds

import (
	"bytes"
	"fmt"

	json "github.com/goccy/go-json"
)

// Decode unmarshals a JSON body into out, keeping numbers as json.Number so
// identifiers and counts survive without float rounding. Any failure wraps
// ErrMalformedBody.
func Decode(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return nil
}

func encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
