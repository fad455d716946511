package http

import (
	"bufio"
	"net"
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
)

// upgradeWriter exposes gin's writer to websocket.Accept without its
// WriteHeaderNow method. Accept calls it to flush the 101, after which gin
// refuses to hijack. The status goes to the raw writer right before the
// hijack instead, and the hijack itself runs through gin so the context
// counts the response as written.
type upgradeWriter struct {
	http.ResponseWriter
	gin gin.ResponseWriter
	raw http.ResponseWriter
}

func (w upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	w.raw.WriteHeader(w.gin.Status())
	return w.gin.Hijack()
}

// acceptWebSocket upgrades the request of c.
func acceptWebSocket(c *gin.Context, opts *websocket.AcceptOptions) (*websocket.Conn, error) {
	u, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter })
	if !ok {
		return websocket.Accept(c.Writer, c.Request, opts)
	}
	w := upgradeWriter{ResponseWriter: c.Writer, gin: c.Writer, raw: u.Unwrap()}
	return websocket.Accept(w, c.Request, opts)
}
