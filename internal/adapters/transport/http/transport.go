package httptransport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bnema/sessionpool/internal/domain"
	"github.com/bnema/sessionpool/internal/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxResponseBytes    = 8 << 20
	defaultMaxRedirects = 10
	tracerName          = "github.com/bnema/sessionpool/internal/adapters/transport/http"
)

type Options struct {
	// Proxy is an http(s) proxy URL. Empty uses the environment.
	Proxy              string
	InsecureSkipVerify bool
	// MaxRedirects caps followed redirects for calls that do not set their own limit.
	MaxRedirects   *int
	HTTPClient     *http.Client
	TracerProvider trace.TracerProvider
}

// Transport executes descriptors over HTTP.
type Transport struct {
	client       *http.Client
	tracer       trace.Tracer
	maxRedirects int
}

var _ ports.Transport = (*Transport)(nil)

type redirectLimitKey struct{}

func NewTransport(opts Options) (*Transport, error) {
	maxRedirects := defaultMaxRedirects
	if opts.MaxRedirects != nil {
		maxRedirects = *opts.MaxRedirects
	}

	var client http.Client
	if opts.HTTPClient != nil {
		client = *opts.HTTPClient
	} else {
		base := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxyURL, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, fmt.Errorf("parse proxy url: %w", err)
			}
			if proxyURL.Scheme == "" || proxyURL.Host == "" {
				return nil, fmt.Errorf("proxy url %q needs a scheme and host", opts.Proxy)
			}
			base.Proxy = http.ProxyURL(proxyURL)
		}
		if opts.InsecureSkipVerify {
			if base.TLSClientConfig == nil {
				base.TLSClientConfig = &tls.Config{}
			}
			base.TLSClientConfig.InsecureSkipVerify = true
		}
		client.Transport = base
	}

	t := &Transport{maxRedirects: maxRedirects}
	client.CheckRedirect = t.checkRedirect
	t.client = &client

	provider := opts.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	t.tracer = provider.Tracer(tracerName)

	return t, nil
}

// Client is the configured HTTP client. The credential exchange reuses it for the proxy and TLS settings.
func (t *Transport) Client() *http.Client {
	return t.client
}

// Execute sends the descriptor and returns whatever the server answered. Only failures
// that produced no response are returned as errors.
func (t *Transport) Execute(ctx context.Context, descriptor domain.Descriptor) (domain.RawResponse, error) {
	ctx, span := t.tracer.Start(ctx, "sessionpool.request",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", descriptor.Method),
			attribute.String("url.full", redactedURL(descriptor.URL)),
		),
	)
	defer span.End()

	if descriptor.Options.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, descriptor.Options.Timeout)
		defer cancel()
	}
	if descriptor.Options.MaxRedirects != nil {
		ctx = context.WithValue(ctx, redirectLimitKey{}, *descriptor.Options.MaxRedirects)
	}

	req, err := newRequest(ctx, descriptor)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.RawResponse{}, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.RawResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.RawResponse{}, fmt.Errorf("read response body: %w", err)
	}
	if len(body) > maxResponseBytes {
		err := fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
		span.SetStatus(codes.Error, err.Error())
		return domain.RawResponse{}, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}

	return domain.RawResponse{
		StatusCode: resp.StatusCode,
		Header:     flattenHeader(resp.Header),
		Body:       body,
	}, nil
}

func (t *Transport) checkRedirect(req *http.Request, via []*http.Request) error {
	limit := t.maxRedirects
	if override, ok := req.Context().Value(redirectLimitKey{}).(int); ok {
		limit = override
	}

	if len(via) > limit {
		return fmt.Errorf("stopped after %d redirects", limit)
	}

	return nil
}

func newRequest(ctx context.Context, descriptor domain.Descriptor) (*http.Request, error) {
	target, err := url.Parse(descriptor.URL)
	if err != nil {
		return nil, fmt.Errorf("parse request url: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("request url %q must use http or https", descriptor.URL)
	}

	if len(descriptor.Query) > 0 {
		query := target.Query()
		for key, value := range descriptor.Query {
			query.Set(key, value)
		}
		target.RawQuery = query.Encode()
	}

	var body io.Reader
	if descriptor.Body != nil {
		encoded, err := json.Marshal(descriptor.Body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	method := descriptor.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range descriptor.Header {
		req.Header.Set(key, value)
	}

	return req, nil
}

func flattenHeader(header http.Header) map[string]string {
	flat := make(map[string]string, len(header))
	for key := range header {
		flat[key] = header.Get(key)
	}

	return flat
}

func redactedURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	parsed.User = nil
	parsed.RawQuery = ""

	return parsed.String()
}
