// Package banner prints the startup summary shown on the console.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"esp32-testserver/internal/common"
	"esp32-testserver/internal/routes"
)

const placeholderHost = "YOUR_IP"

var rule = strings.Repeat("=", 60)

// Info is what the banner describes.
type Info struct {
	HTTPPort  int
	HTTPSPort int
	TLS       bool
	Addresses []string // detected local addresses, see common.LocalIPv4s
}

// Print writes the banner to w.
func Print(w io.Writer, info Info) {
	title := color.New(color.FgCyan, color.Bold)
	heading := color.New(color.Bold)
	url := color.New(color.FgGreen)

	fmt.Fprintln(w, rule)
	title.Fprintln(w, "ESP32 HTTP Test Server Starting...")
	fmt.Fprintln(w, rule)

	fmt.Fprintln(w)
	heading.Fprintln(w, "Available endpoints:")
	builder := common.NewURLBuilder(placeholderHost)
	for _, ep := range routes.Endpoints {
		url.Fprintf(w, "  %-30s", builder.BuildHTTPURL(info.HTTPPort, ep.Path))
		fmt.Fprintf(w, " - %s\n", ep.Description)
	}
	if info.TLS {
		for _, ep := range routes.Endpoints {
			url.Fprintf(w, "  %-30s", builder.BuildHTTPSURL(info.HTTPSPort, ep.Path))
			fmt.Fprintf(w, " - %s (TLS)\n", ep.Description)
		}
	}

	if len(info.Addresses) > 0 {
		fmt.Fprintln(w)
		heading.Fprintln(w, "Detected local addresses:")
		for _, addr := range info.Addresses {
			url.Fprintf(w, "  %s\n", common.NewURLBuilder(addr).BuildHTTPURL(info.HTTPPort, "/"))
		}
	}

	fmt.Fprintln(w)
	heading.Fprintln(w, "To find your IP address:")
	fmt.Fprintln(w, "  Linux: ip addr show | grep 'inet ' | grep -v 127.0.0.1")
	fmt.Fprintln(w, "  Or check your network settings")
	fmt.Fprintln(w, rule)
}
