package routes

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2024, 1, 1, 12, 0, 0, 0, time.Local)

func fixedClock() time.Time { return fixedTime }

func serve(t *testing.T, handler http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeKeys(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var obj map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &obj))
	return obj
}

func keysOf(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func TestHome(t *testing.T) {
	router := NewRouter(fixedClock)

	rr := serve(t, router, http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/html"))

	body := rr.Body.String()
	assert.Contains(t, body, "<strong>Server Time:</strong> 2024-01-01 12:00:00")
	assert.Contains(t, body, "<strong>Client IP:</strong> 192.0.2.1")
	assert.Contains(t, body, "<strong>Request Method:</strong> GET")
	assert.Contains(t, body, "Connection Successful!")
	assert.NotContains(t, body, "192.0.2.1:1234", "port should be stripped from the client address")
}

func TestHomeReportsMethodWithoutRejecting(t *testing.T) {
	router := NewRouter(fixedClock)

	rr := serve(t, router, http.MethodPost, "/", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<strong>Request Method:</strong> POST")
}

func TestHomeTimestampPattern(t *testing.T) {
	router := NewRouter(nil)

	rr := serve(t, router, http.MethodGet, "/", nil)

	pattern := regexp.MustCompile(`Server Time:</strong> \d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}<`)
	assert.Regexp(t, pattern, rr.Body.String())
}

func TestTest(t *testing.T) {
	router := NewRouter(fixedClock)

	rr := serve(t, router, http.MethodGet, "/test", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/plain"))
	assert.Equal(t, "ESP32 Test - Hello from Flask Server!", rr.Body.String())
}

func TestJSON(t *testing.T) {
	router := NewRouter(nil)

	before := time.Now().Add(-time.Second)
	rr := serve(t, router, http.MethodGet, "/json", nil)
	after := time.Now().Add(time.Second)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentTypeJSON, rr.Header().Get("Content-Type"))

	obj := decodeKeys(t, rr.Body.Bytes())
	assert.ElementsMatch(t, []string{"message", "timestamp", "status"}, keysOf(obj))
	assert.Equal(t, "Hello ESP32!", obj["message"])
	assert.Equal(t, "success", obj["status"])

	ts, err := time.ParseInLocation("2006-01-02T15:04:05.999999", obj["timestamp"].(string), time.Local)
	require.NoError(t, err)
	assert.True(t, ts.After(before) && ts.Before(after), "timestamp %s not close to now", ts)
}

func TestSensor(t *testing.T) {
	router := NewRouter(fixedClock)

	rr := serve(t, router, http.MethodGet, "/sensor", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, ContentTypeJSON, rr.Header().Get("Content-Type"))

	obj := decodeKeys(t, rr.Body.Bytes())
	assert.ElementsMatch(t, []string{"temperature", "humidity", "pressure", "timestamp"}, keysOf(obj))
	assert.Equal(t, 23.5, obj["temperature"])
	assert.Equal(t, 65.3, obj["humidity"])
	assert.Equal(t, 1013.25, obj["pressure"])
}

func TestSensorBodyAtFixedTime(t *testing.T) {
	router := NewRouter(fixedClock)

	rr := serve(t, router, http.MethodGet, "/sensor", nil)

	expected := `{"temperature":23.5,"humidity":65.3,"pressure":1013.25,"timestamp":"2024-01-01T12:00:00"}`
	assert.Equal(t, expected, strings.TrimSpace(rr.Body.String()))
}

func TestIdempotentApartFromTimestamp(t *testing.T) {
	router := NewRouter(nil)

	for _, path := range []string{"/json", "/sensor"} {
		t.Run(path, func(t *testing.T) {
			first := decodeKeys(t, serve(t, router, http.MethodGet, path, nil).Body.Bytes())
			second := decodeKeys(t, serve(t, router, http.MethodGet, path, nil).Body.Bytes())
			delete(first, "timestamp")
			delete(second, "timestamp")
			assert.Equal(t, first, second)
		})
	}

	first := serve(t, router, http.MethodGet, "/test", nil).Body.String()
	second := serve(t, router, http.MethodGet, "/test", nil).Body.String()
	assert.Equal(t, first, second)
}

func TestUnknownPath(t *testing.T) {
	router := NewRouter(fixedClock)

	for _, path := range []string{"/unknown", "/sensor/1", "/json/"} {
		rr := serve(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, "path %s", path)
	}
}

func TestCBORNegotiation(t *testing.T) {
	router := NewRouter(fixedClock)

	t.Run("sensor", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/sensor", map[string]string{"Accept": "application/cbor"})

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, ContentTypeCBOR, rr.Header().Get("Content-Type"))

		var reading SensorReading
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &reading))
		assert.Equal(t, SensorReading{
			Temperature: 23.5,
			Humidity:    65.3,
			Pressure:    1013.25,
			Timestamp:   "2024-01-01T12:00:00",
		}, reading)
	})

	t.Run("json", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/json", map[string]string{"Accept": "text/html, application/cbor;q=0.9"})

		assert.Equal(t, ContentTypeCBOR, rr.Header().Get("Content-Type"))

		var obj map[string]interface{}
		require.NoError(t, cbor.Unmarshal(rr.Body.Bytes(), &obj))
		assert.ElementsMatch(t, []string{"message", "timestamp", "status"}, keysOf(obj))
		assert.Equal(t, "Hello ESP32!", obj["message"])
	})

	t.Run("cbor refused with zero quality", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/sensor", map[string]string{"Accept": "application/json, application/cbor;q=0"})

		assert.Equal(t, ContentTypeJSON, rr.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"temperature":23.5,"humidity":65.3,"pressure":1013.25,"timestamp":"2024-01-01T12:00:00"}`, rr.Body.String())
	})

	t.Run("json by default", func(t *testing.T) {
		rr := serve(t, router, http.MethodGet, "/json", map[string]string{"Accept": "*/*"})
		assert.Equal(t, ContentTypeJSON, rr.Header().Get("Content-Type"))
	})
}

func TestWantsCBOR(t *testing.T) {
	tests := []struct {
		accept   string
		expected bool
	}{
		{"", false},
		{"application/json", false},
		{"application/cbor", true},
		{"APPLICATION/CBOR", true},
		{"application/json, application/cbor", true},
		{"application/cbor; q=0.5", true},
		{"application/json, application/cbor;q=0", false},
		{"application/cbor;q=0.0", false},
		{"application/cbor;q=abc", false},
		{"application/cbor-seq", false},
		{";;;", false},
	}

	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/json", nil)
			req.Header.Set("Accept", tt.accept)
			assert.Equal(t, tt.expected, WantsCBOR(req))
		})
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote   string
		expected string
	}{
		{"192.168.4.2:51234", "192.168.4.2"},
		{"[fe80::1]:8080", "fe80::1"},
		{"no-port", "no-port"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		assert.Equal(t, tt.expected, ClientIP(req))
	}
}

func TestFormatISO8601(t *testing.T) {
	assert.Equal(t, "2024-01-01T12:00:00", FormatISO8601(fixedTime))
	assert.Equal(t, "2024-01-01T12:00:00.123456", FormatISO8601(fixedTime.Add(123456789*time.Nanosecond)))
	assert.Equal(t, "2024-01-01T12:00:00", FormatISO8601(fixedTime.Add(999*time.Nanosecond)))
	assert.Equal(t, "2024-01-01T12:00:00.000001", FormatISO8601(fixedTime.Add(time.Microsecond)))
}

func TestFormatDisplayTime(t *testing.T) {
	assert.Equal(t, "2024-01-01 12:00:00", FormatDisplayTime(fixedTime.Add(500*time.Millisecond)))
}

func TestHomeEscapesMethod(t *testing.T) {
	h := New(fixedClock)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Method = "<script>"
	rr := httptest.NewRecorder()

	h.Home(rr, req)

	assert.NotContains(t, rr.Body.String(), "<script>")
	assert.Contains(t, rr.Body.String(), "&lt;script&gt;")
}
