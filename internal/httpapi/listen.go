package httpapi

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ListenWithFallback binds the server to port, and on EADDRINUSE tries each
// of the next maxAttempts adjacent ports in turn, per spec.md §6 ("the
// server searches upward through 9 adjacent ports on EADDRINUSE").
func ListenWithFallback(port, maxAttempts int, r *Router) (srv *http.Server, addr string, err error) {
	for i := 0; i <= maxAttempts; i++ {
		candidate := port + i
		addr = fmt.Sprintf(":%d", candidate)
		ln, lerr := net.Listen("tcp", addr)
		if lerr == nil {
			srv = NewServer(addr, r)
			go func() { _ = srv.Serve(ln) }()
			return srv, addr, nil
		}
		if !isAddrInUse(lerr) {
			return nil, "", lerr
		}
	}
	return nil, "", fmt.Errorf("no available port found starting at %d (+%d)", port, maxAttempts)
}

func isAddrInUse(err error) bool {
	return strings.Contains(err.Error(), "address already in use") ||
		strings.Contains(err.Error(), "bind: already in use")
}
