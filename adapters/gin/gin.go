// Package ginadapter mounts a payment gate as gin middleware.
package ginadapter

import (
	"bufio"
	"errors"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitwit/x402-gate/gate"
)

// Middleware runs the rest of the gin chain behind g. Requests the gate
// rejects are aborted with its 402 response.
func Middleware(g *gate.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		original := c.Writer
		invoked := false

		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			invoked = true
			c.Request = r
			if w != http.ResponseWriter(original) {
				c.Writer = &responseWriter{ResponseWriter: original, w: w}
			}
			c.Next()
			c.Writer = original
		})

		g.Middleware(next).ServeHTTP(original, c.Request)
		if !invoked {
			c.Abort()
		}
	}
}

// responseWriter redirects gin's writes into the gate's buffer.
type responseWriter struct {
	gin.ResponseWriter
	w       http.ResponseWriter
	status  int
	size    int
	written bool
}

func (rw *responseWriter) Header() http.Header {
	return rw.w.Header()
}

func (rw *responseWriter) WriteHeader(code int) {
	if code > 0 && !rw.written {
		rw.status = code
	}
}

func (rw *responseWriter) WriteHeaderNow() {
	if !rw.written {
		rw.written = true
		rw.w.WriteHeader(rw.Status())
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.WriteHeaderNow()
	n, err := rw.w.Write(b)
	rw.size += n
	return n, err
}

func (rw *responseWriter) WriteString(s string) (int, error) {
	return rw.Write([]byte(s))
}

func (rw *responseWriter) Status() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

func (rw *responseWriter) Size() int {
	if !rw.written {
		return -1
	}
	return rw.size
}

func (rw *responseWriter) Written() bool {
	return rw.written
}

// Flush is a no-op: the gate releases the body after settlement.
func (rw *responseWriter) Flush() {}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return nil, nil, errors.New("x402: hijacking a gated response is not supported")
}
