package util

import (
	"net"
	"sync"

	"github.com/replicate/go/must"
)

var (
	ports   = make(map[int]bool)
	portsMu sync.Mutex
)

// FindPort returns a free local TCP port that has not been handed out by
// this process before.
func FindPort() int {
	portsMu.Lock()
	defer portsMu.Unlock()
	for {
		a := must.Get(net.ResolveTCPAddr("tcp", "localhost:0"))
		l := must.Get(net.ListenTCP("tcp", a))
		p := l.Addr().(*net.TCPAddr).Port
		l.Close()
		if !ports[p] {
			ports[p] = true
			return p
		}
	}
}
