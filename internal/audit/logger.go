package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/miragesec/mirage/internal/logging"
	"github.com/miragesec/mirage/internal/netutil"
)

const (
	RequestLogFile = "proxy_requests.log"
	ServeLogFile   = "served_deceptions.log"
)

// RequestRecord is one line of the general proxy log.
type RequestRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	IP           string    `json:"ip"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	Action       string    `json:"action"`
	ResponseType string    `json:"response_type,omitempty"`
}

// ServeRecord is one line of the decoy-serve log, written on every
// SERVE_DECOY regardless of whether the general log is enabled.
type ServeRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	Endpoint     string    `json:"endpoint"`
	ResponseType string    `json:"response_type"`
	IP           string    `json:"ip"`
}

// Logger appends JSON Lines audit records to the two log files in the
// state directory. The files are append-only for the process lifetime;
// records are never rewritten. Write failures are diagnostics only and
// never affect request handling.
type Logger struct {
	requestLog  *jsonlWriter
	serveLog    *jsonlWriter
	logRequests bool
}

// New opens both audit logs under stateDir. An unopenable log file
// disables that log with a diagnostic; it is not a startup failure.
func New(stateDir string, logRequests bool) *Logger {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		logging.Error("[AUDIT] Cannot create state directory %s: %v", stateDir, err)
	}

	return &Logger{
		requestLog:  openJSONL(filepath.Join(stateDir, RequestLogFile)),
		serveLog:    openJSONL(filepath.Join(stateDir, ServeLogFile)),
		logRequests: logRequests,
	}
}

// Proxied records a forwarded request in the general log.
func (l *Logger) Proxied(ip, method, url string) {
	if !l.logRequests {
		return
	}
	l.requestLog.append(RequestRecord{
		Timestamp: time.Now().UTC(),
		IP:        ip,
		Method:    method,
		URL:       url,
		Action:    "proxied",
	})
}

// DecoyServed records a served decoy. The decoy-serve log entry is
// unconditional; the general-log entry honors the request-log toggle.
func (l *Logger) DecoyServed(ip, method, url, endpoint, responseType string) {
	now := time.Now().UTC()

	if l.logRequests {
		l.requestLog.append(RequestRecord{
			Timestamp:    now,
			IP:           ip,
			Method:       method,
			URL:          url,
			Action:       "deception_served",
			ResponseType: responseType,
		})
	}

	l.serveLog.append(ServeRecord{
		Timestamp:    now,
		Endpoint:     endpoint,
		ResponseType: responseType,
		IP:           netutil.CanonicalIP(ip),
	})
}

func (l *Logger) Close() {
	l.requestLog.close()
	l.serveLog.close()
}

// jsonlWriter serializes concurrent appends so that each record lands as
// exactly one complete line.
type jsonlWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openJSONL(path string) *jsonlWriter {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		logging.Error("[AUDIT] Cannot open %s: %v", path, err)
		file = nil
	}
	return &jsonlWriter{path: path, file: file}
}

func (w *jsonlWriter) append(record interface{}) {
	if w.file == nil {
		return
	}

	line, err := json.Marshal(record)
	if err != nil {
		logging.Error("[AUDIT] Cannot marshal record for %s: %v", w.path, err)
		return
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(line); err != nil {
		logging.Error("[AUDIT] Write to %s failed: %v", w.path, err)
	}
}

func (w *jsonlWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
}
