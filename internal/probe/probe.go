// Package probe runs the same sequence an ESP32 client goes through against a
// test server: DNS lookup, TCP connect, then a GET on every diagnostic route.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/fxamacker/cbor/v2"

	"esp32-testserver/internal/routes"
)

// Result is the outcome of one step.
type Result struct {
	Step     string
	OK       bool
	Detail   string
	Duration time.Duration
}

type Prober struct {
	BaseURL  *url.URL
	Client   *http.Client
	Resolver *net.Resolver
	Dialer   *net.Dialer
	CBOR     bool // ask JSON routes for CBOR
}

// New creates a prober for baseURL, e.g. http://192.168.1.20:5000.
func New(baseURL string, timeout time.Duration) (*Prober, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("base URL %q has no host", baseURL)
	}

	return &Prober{
		BaseURL:  u,
		Client:   &http.Client{Timeout: timeout},
		Resolver: net.DefaultResolver,
		Dialer:   &net.Dialer{Timeout: timeout},
	}, nil
}

func (p *Prober) hostPort() string {
	port := p.BaseURL.Port()
	if port == "" {
		port = "80"
		if p.BaseURL.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(p.BaseURL.Hostname(), port)
}

// Run executes every step. Later steps still run when earlier ones fail so
// the report shows as much as possible.
func (p *Prober) Run(ctx context.Context) []Result {
	results := []Result{
		p.timed("DNS resolution", func() (string, error) { return p.resolve(ctx) }),
		p.timed("TCP connection", func() (string, error) { return p.connect(ctx) }),
	}

	checks := []struct {
		path  string
		check func(resp *http.Response, body []byte) (string, error)
	}{
		{"/", checkHome},
		{"/test", checkTest},
		{"/json", p.checkGreeting},
		{"/sensor", p.checkSensor},
	}
	for _, c := range checks {
		c := c
		results = append(results, p.timed("GET "+c.path, func() (string, error) {
			return p.get(ctx, c.path, c.check)
		}))
	}
	return results
}

func (p *Prober) timed(step string, fn func() (string, error)) Result {
	start := time.Now()
	detail, err := fn()
	r := Result{Step: step, OK: err == nil, Detail: detail, Duration: time.Since(start)}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

func (p *Prober) resolve(ctx context.Context) (string, error) {
	host := p.BaseURL.Hostname()
	if net.ParseIP(host) != nil {
		return host + " (literal address)", nil
	}
	addrs, err := p.Resolver.LookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", host, err)
	}
	return strings.Join(addrs, ", "), nil
}

func (p *Prober) connect(ctx context.Context) (string, error) {
	conn, err := p.Dialer.DialContext(ctx, "tcp", p.hostPort())
	if err != nil {
		return "", fmt.Errorf("connecting to %s: %w", p.hostPort(), err)
	}
	defer conn.Close()
	return fmt.Sprintf("%s -> %s", conn.LocalAddr(), conn.RemoteAddr()), nil
}

func (p *Prober) get(ctx context.Context, path string, check func(*http.Response, []byte) (string, error)) (string, error) {
	target := p.BaseURL.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "esp32-testserver-probe")
	if p.CBOR {
		req.Header.Set("Accept", routes.ContentTypeCBOR)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", target, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	return check(resp, body)
}

func checkHome(resp *http.Response, body []byte) (string, error) {
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return "", fmt.Errorf("unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.Contains(string(body), "Connection Successful!") {
		return "", fmt.Errorf("page does not report a successful connection")
	}
	return fmt.Sprintf("%d bytes of HTML", len(body)), nil
}

func checkTest(resp *http.Response, body []byte) (string, error) {
	if string(body) != routes.TestMessage {
		return "", fmt.Errorf("unexpected body %q", body)
	}
	return string(body), nil
}

func (p *Prober) decode(resp *http.Response, body []byte, v interface{}) error {
	contentType := resp.Header.Get("Content-Type")
	if p.CBOR {
		if contentType != routes.ContentTypeCBOR {
			return fmt.Errorf("expected CBOR, got %q", contentType)
		}
		return cbor.Unmarshal(body, v)
	}
	if !strings.HasPrefix(contentType, routes.ContentTypeJSON) {
		return fmt.Errorf("expected JSON, got %q", contentType)
	}
	return json.Unmarshal(body, v)
}

func (p *Prober) checkGreeting(resp *http.Response, body []byte) (string, error) {
	var g routes.Greeting
	if err := p.decode(resp, body, &g); err != nil {
		return "", fmt.Errorf("decoding greeting: %w", err)
	}
	if g.Message != routes.GreetingMessage || g.Status != routes.GreetingStatus {
		return "", fmt.Errorf("unexpected greeting %+v", g)
	}
	if err := checkTimestamp(g.Timestamp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s at %s", g.Message, g.Timestamp), nil
}

func (p *Prober) checkSensor(resp *http.Response, body []byte) (string, error) {
	var s routes.SensorReading
	if err := p.decode(resp, body, &s); err != nil {
		return "", fmt.Errorf("decoding sensor reading: %w", err)
	}
	if s.Temperature != routes.Temperature || s.Humidity != routes.Humidity || s.Pressure != routes.Pressure {
		return "", fmt.Errorf("unexpected sensor values %+v", s)
	}
	if err := checkTimestamp(s.Timestamp); err != nil {
		return "", err
	}
	return fmt.Sprintf("%.1f°C %.1f%% %.2f hPa", s.Temperature, s.Humidity, s.Pressure), nil
}

func checkTimestamp(ts string) error {
	if _, err := time.ParseInLocation("2006-01-02T15:04:05.999999", ts, time.Local); err != nil {
		return fmt.Errorf("timestamp %q is not ISO-8601: %w", ts, err)
	}
	return nil
}

// Failed reports whether any step failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.OK {
			return true
		}
	}
	return false
}

// Report prints one line per result.
func Report(w io.Writer, results []Result) {
	ok := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)

	for _, r := range results {
		if r.OK {
			ok.Fprint(w, "  OK   ")
		} else {
			fail.Fprint(w, "  FAIL ")
		}
		fmt.Fprintf(w, "%-18s %8s  %s\n", r.Step, r.Duration.Round(time.Millisecond), r.Detail)
	}
}
