package gate

import (
	"bytes"
	"net/http"
)

// bufferedWriter holds the wrapped handler's response until the gate knows
// whether settlement succeeded.
type bufferedWriter struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newBufferedWriter() *bufferedWriter {
	return &bufferedWriter{header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header {
	return b.header
}

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.wroteHeader = true
	b.status = status
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) success() bool {
	return b.status >= 200 && b.status < 300
}

// flush copies the buffered response to w, adding extra headers.
func (b *bufferedWriter) flush(w http.ResponseWriter, extra map[string]string) error {
	dst := w.Header()
	for k, v := range b.header {
		dst[k] = v
	}
	for k, v := range extra {
		dst.Set(k, v)
	}
	w.WriteHeader(b.status)
	_, err := w.Write(b.body.Bytes())
	return err
}
