// Package tracer reports every command a session handles, and the kernel calls it makes, to an Elastic APM server.
package tracer

import (
	"net/url"
	"time"

	"github.com/pkg/errors"
	"go.elastic.co/apm"
	apmtransport "go.elastic.co/apm/transport"
)

const userAgent = "tmjlink"

type Tracer struct {
	*apm.Tracer
	logger  apm.Logger
	timeout time.Duration
}

// NewTracer returns a tracer sending to serverUrl, authenticated with serverSecret if not empty.
// Flushing on close gives up after timeout, 0 waits forever.
func NewTracer(logger apm.Logger, timeout time.Duration, serviceName, serverSecret, serverUrl string) (*Tracer, error) {
	u, err := url.Parse(serverUrl)
	if err != nil {
		return nil, errors.Wrap(err, "apm server url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("apm server url %q is not absolute", serverUrl)
	}

	// tracers must not share the default transport
	transport, err := apmtransport.NewHTTPTransport()
	if err != nil {
		return nil, errors.Wrap(err, "apm transport")
	}
	transport.SetUserAgent(userAgent)
	if serverSecret != "" {
		transport.SetSecretToken(serverSecret)
	}
	transport.SetServerURL(u)

	tracer, err := apm.NewTracerOptions(apm.TracerOptions{
		ServiceName: serviceName,
		Transport:   transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "apm tracer")
	}
	tracer.SetLogger(logger)
	tracer.SetMetricsInterval(0) // disable metrics
	return &Tracer{tracer, logger, timeout}, nil
}

// FlushAll sends any buffered events and closes the tracer.
func (t *Tracer) FlushAll() {
	flushed := make(chan struct{})
	go func() {
		t.Flush(nil)
		close(flushed)
	}()

	flushWait := time.After(t.timeout)
	if t.timeout == 0 {
		flushWait = make(<-chan time.Time)
	}
	select {
	case <-flushed:
	case <-flushWait:
		// give up waiting for flush
		t.logger.Errorf("timed out waiting for flush to complete")
	}
	t.Close()
}
