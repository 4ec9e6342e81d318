package constants

import "time"

// Application constants
const (
	// Application metadata
	AppName        = "htmserve"
	AppDescription = "HTM Predictive Model Server"
	AppVersion     = "0.1.0"

	// Default configuration values
	DefaultPort            = 8080
	DefaultMetricsPort     = 9090
	DefaultHost            = "0.0.0.0"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Request limits
	MaxRequestSize  = 10 * 1024 * 1024 // 10MB
	MaxBatchRows    = 10000
	DefaultRateLimit = 100 // requests per minute

	// Model defaults
	DefaultPredictedField = "c1"
	DefaultTemporalField  = "c0"

	// Encoder tags recognized in model parameters
	DateEncoderType = "DateEncoder"
)

// HTTP headers
const (
	HeaderContentType   = "Content-Type"
	HeaderAccept        = "Accept"
	HeaderRequestID     = "X-Request-ID"
	HeaderForwardedFor  = "X-Forwarded-For"
	HeaderRealIP        = "X-Real-IP"
)

// Content types
const (
	ContentTypeJSON = "application/json"
)

// DatePatterns is the ordered list of layouts tried when parsing a
// non-numeric temporal value. The first successful match wins.
var DatePatterns = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006",
	"2006-01-02T15:04:05.999999Z07:00",
	"2006-01-02T15:04:05Z07:00",
}
