package solr

import (
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// Config describes the Solr endpoint.
type Config struct {
	// URL is the Solr base URL, e.g. http://localhost:8983/solr.
	URL      string
	Username string
	Password string

	// Retries is the number of retries for connection errors and 5xx
	// responses. Zero disables retrying.
	Retries int
	// RetryWait is the minimum wait between retries.
	RetryWait time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
}

// NewClient returns a retrying HTTP client over a pooled transport.
// Responses are always handed back to the caller, including the last one
// after retries are exhausted, so the status can be reported.
func NewClient(cfg Config, log *zap.Logger) *retryablehttp.Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	if cfg.Timeout > 0 {
		c.HTTPClient.Timeout = cfg.Timeout
	}
	c.RetryMax = cfg.Retries
	if cfg.RetryWait > 0 {
		c.RetryWaitMin = cfg.RetryWait
		if c.RetryWaitMax < cfg.RetryWait {
			c.RetryWaitMax = cfg.RetryWait
		}
	}
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	c.Logger = leveledLogger{log.Sugar()}
	return c
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	s *zap.SugaredLogger
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.s.Debugw(msg, kv...) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
