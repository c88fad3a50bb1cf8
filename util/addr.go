package util

import (
	"net"
	"strconv"
)

// FormatAddr joins host and port into a dialable address, bracketing IPv6
// literals.
func FormatAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
