// Package routes holds the diagnostic endpoints an ESP32 client is pointed at.
package routes

import (
	"encoding/json"
	"html/template"
	"mime"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/mux"

	"esp32-testserver/internal/logger"
)

// Fixed response content
const (
	TestMessage     = "ESP32 Test - Hello from Flask Server!"
	GreetingMessage = "Hello ESP32!"
	GreetingStatus  = "success"

	Temperature = 23.5
	Humidity    = 65.3
	Pressure    = 1013.25
)

// Content types
const (
	ContentTypeHTML = "text/html; charset=utf-8"
	ContentTypeText = "text/plain; charset=utf-8"
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
)

// Timestamp layouts
const (
	displayLayout  = "2006-01-02 15:04:05"
	isoLayout      = "2006-01-02T15:04:05"
	isoMicroLayout = "2006-01-02T15:04:05.000000"
)

// Endpoint describes a registered route for listings such as the banner.
type Endpoint struct {
	Path        string
	Description string
}

// Endpoints lists the diagnostic routes in registration order.
var Endpoints = []Endpoint{
	{Path: "/", Description: "Main page (HTML)"},
	{Path: "/test", Description: "Simple text response"},
	{Path: "/json", Description: "JSON response"},
	{Path: "/sensor", Description: "Simulated sensor data"},
}

// Greeting is the body of /json.
type Greeting struct {
	Message   string `json:"message" cbor:"message"`
	Timestamp string `json:"timestamp" cbor:"timestamp"`
	Status    string `json:"status" cbor:"status"`
}

// SensorReading is the body of /sensor.
type SensorReading struct {
	Temperature float64 `json:"temperature" cbor:"temperature"`
	Humidity    float64 `json:"humidity" cbor:"humidity"`
	Pressure    float64 `json:"pressure" cbor:"pressure"`
	Timestamp   string  `json:"timestamp" cbor:"timestamp"`
}

// RequestInfo is what the home page reports back to the caller.
type RequestInfo struct {
	Timestamp string
	ClientIP  string
	Method    string
}

// Handlers serves the diagnostic routes. The zero value is not usable; use New.
type Handlers struct {
	now func() time.Time
}

// New creates the handlers. A nil clock means time.Now.
func New(now func() time.Time) *Handlers {
	if now == nil {
		now = time.Now
	}
	return &Handlers{now: now}
}

// Register adds the diagnostic routes to r. Any method is accepted.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/", h.Home)
	r.HandleFunc("/test", h.Test)
	r.HandleFunc("/json", h.JSON)
	r.HandleFunc("/sensor", h.Sensor)
}

// NewRouter returns a router with only the diagnostic routes registered.
func NewRouter(now func() time.Time) *mux.Router {
	r := mux.NewRouter()
	New(now).Register(r)
	return r
}

// Home renders the HTML status page.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	info := RequestInfo{
		Timestamp: FormatDisplayTime(h.now()),
		ClientIP:  ClientIP(r),
		Method:    r.Method,
	}

	w.Header().Set("Content-Type", ContentTypeHTML)
	w.WriteHeader(http.StatusOK)
	if err := homeTemplate.Execute(w, info); err != nil {
		logger.Errorf("Failed to render home page for %s: %v", info.ClientIP, err)
	}
}

// Test returns the fixed text greeting.
func (h *Handlers) Test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", ContentTypeText)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(TestMessage))
}

// JSON returns the greeting object.
func (h *Handlers) JSON(w http.ResponseWriter, r *http.Request) {
	writeObject(w, r, Greeting{
		Message:   GreetingMessage,
		Timestamp: FormatISO8601(h.now()),
		Status:    GreetingStatus,
	})
}

// Sensor returns the simulated sensor reading.
func (h *Handlers) Sensor(w http.ResponseWriter, r *http.Request) {
	writeObject(w, r, SensorReading{
		Temperature: Temperature,
		Humidity:    Humidity,
		Pressure:    Pressure,
		Timestamp:   FormatISO8601(h.now()),
	})
}

// writeObject encodes v as CBOR when the client asks for it and as JSON otherwise.
func writeObject(w http.ResponseWriter, r *http.Request, v interface{}) {
	if WantsCBOR(r) {
		data, err := cbor.Marshal(v)
		if err != nil {
			logger.Errorf("Failed to encode CBOR response for %s: %v", r.URL.Path, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", ContentTypeCBOR)
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debugf("Failed to write JSON response for %s: %v", r.URL.Path, err)
	}
}

// WantsCBOR reports whether the Accept header names application/cbor with a
// non-zero quality.
func WantsCBOR(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, params, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil || mediaType != ContentTypeCBOR {
			continue
		}
		if q, ok := params["q"]; ok {
			weight, err := strconv.ParseFloat(q, 64)
			if err != nil || weight <= 0 {
				return false
			}
		}
		return true
	}
	return false
}

// ClientIP is the peer address of the connection without its port.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// FormatDisplayTime formats t as YYYY-MM-DD HH:MM:SS in local time.
func FormatDisplayTime(t time.Time) string {
	return t.Local().Format(displayLayout)
}

// FormatISO8601 formats t in local time without a zone. Microseconds are
// only included when non-zero.
func FormatISO8601(t time.Time) string {
	t = t.Local()
	if t.Nanosecond()/int(time.Microsecond) == 0 {
		return t.Format(isoLayout)
	}
	return t.Format(isoMicroLayout)
}

var homeTemplate = template.Must(template.New("home.html").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>ESP32 Test Server</title>
    <style>
        body {
            font-family: Arial, sans-serif;
            max-width: 800px;
            margin: 50px auto;
            padding: 20px;
            background-color: #f0f0f0;
        }
        .container {
            background-color: white;
            padding: 30px;
            border-radius: 10px;
            box-shadow: 0 2px 10px rgba(0,0,0,0.1);
        }
        h1 {
            color: #333;
        }
        .info {
            background-color: #e8f4f8;
            padding: 15px;
            border-left: 4px solid #2196F3;
            margin: 20px 0;
        }
        .success {
            color: #4CAF50;
            font-weight: bold;
        }
    </style>
</head>
<body>
    <div class="container">
        <h1>ESP32 HTTP Client Test Server</h1>
        <div class="info">
            <p class="success">Connection Successful!</p>
            <p><strong>Server Time:</strong> {{.Timestamp}}</p>
            <p><strong>Client IP:</strong> {{.ClientIP}}</p>
            <p><strong>Request Method:</strong> {{.Method}}</p>
        </div>
        <h2>Test Data</h2>
        <p>This is a test HTML page served from a Go server.</p>
        <p>Your ESP32 successfully made an HTTP GET request!</p>
        <ul>
            <li>WiFi Connection: OK</li>
            <li>DNS Resolution: OK</li>
            <li>TCP Connection: OK</li>
            <li>HTTP GET Request: OK</li>
        </ul>
    </div>
</body>
</html>
`))
