package upstream

import (
	"bytes"
	"io"
	"time"
)

// nowFunc is overridable in tests that need deterministic expiry timestamps.
var nowFunc = time.Now

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func newBytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}
