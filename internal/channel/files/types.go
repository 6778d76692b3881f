package files

import "github.com/bytedance/sonic"

// ReadResult is the outcome of a read: a buffer of the requested length and
// the number of bytes actually read into it.
type ReadResult struct {
	Buffer    []byte
	BytesRead int
}

// MarshalJSON encodes the result as the [buffer, bytesRead] tuple clients
// expect
func (r ReadResult) MarshalJSON() ([]byte, error) {
	return sonic.Marshal([]interface{}{r.Buffer, r.BytesRead})
}
