package transport

import (
	"bytes"
	"net"
	"strings"
	"sync"
)

// maxHeaderCapture bounds the bytes recorded per response.
const maxHeaderCapture = 32 * 1024

var headerTerminator = []byte("\r\n\r\n")

// recordingConn records the head of each response read from a plaintext
// connection so the header order can be recovered. net/http exposes
// headers as a map and loses the order the server sent them in.
//
// Recording restarts on every reset, which the client calls when the
// connection is handed to a new request.
type recordingConn struct {
	net.Conn

	mu   sync.Mutex
	buf  []byte
	done bool
}

func (c *recordingConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		c.mu.Lock()
		if !c.done {
			c.buf = append(c.buf, p[:n]...)
			if bytes.Contains(c.buf, headerTerminator) || len(c.buf) >= maxHeaderCapture {
				c.done = true
			}
		}
		c.mu.Unlock()
	}
	return n, err
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = c.buf[:0]
	c.done = false
}

// headerOrder returns the lowercase header names of the last recorded
// response head in the order they appeared, without duplicates.
func (c *recordingConn) headerOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return parseHeaderOrder(c.buf)
}

// parseHeaderOrder extracts header names from a raw HTTP response head.
// Interim 1xx responses are skipped.
func parseHeaderOrder(raw []byte) []string {
	text := string(raw)
	for {
		head, rest, found := strings.Cut(text, "\r\n\r\n")
		if !found {
			head = text
		}
		if strings.HasPrefix(head, "HTTP/1.1 1") || strings.HasPrefix(head, "HTTP/1.0 1") {
			if !found {
				return nil
			}
			text = rest
			continue
		}
		return headerNames(head)
	}
}

func headerNames(head string) []string {
	lines := strings.Split(head, "\r\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "HTTP/") {
		return nil
	}

	seen := make(map[string]bool)
	names := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		name, _, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}
