// Package common provides shared helpers used by the server and the probe
package common

import (
	"fmt"
	"net"
	"strconv"
)

// URLBuilder builds URLs for a host, omitting default ports
type URLBuilder struct {
	Host string
}

// NewURLBuilder creates a new URL builder for the given host
func NewURLBuilder(host string) *URLBuilder {
	return &URLBuilder{Host: host}
}

func (b *URLBuilder) hostPort(port, defaultPort int) string {
	if port == defaultPort || port == 0 {
		if net.ParseIP(b.Host) != nil && net.ParseIP(b.Host).To4() == nil {
			return "[" + b.Host + "]"
		}
		return b.Host
	}
	return net.JoinHostPort(b.Host, strconv.Itoa(port))
}

// BuildHTTPURL builds an HTTP URL for path with optional port
func (b *URLBuilder) BuildHTTPURL(port int, path string) string {
	return fmt.Sprintf("http://%s%s", b.hostPort(port, 80), path)
}

// BuildHTTPSURL builds an HTTPS URL for path with optional port
func (b *URLBuilder) BuildHTTPSURL(port int, path string) string {
	return fmt.Sprintf("https://%s%s", b.hostPort(port, 443), path)
}
