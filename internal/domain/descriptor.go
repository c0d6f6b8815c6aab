package domain

import (
	"maps"
	"time"
)

const (
	HeaderAuthorization = "Authorization"
	bearerPrefix        = "Bearer "
)

// Descriptor is one fully formed request handed to a Transport.
type Descriptor struct {
	Method  string
	URL     string
	Header  map[string]string
	Query   map[string]string
	Body    map[string]any
	Options CallOptions
}

// CallOptions are transport-level knobs. They are never key-escaped.
type CallOptions struct {
	Timeout      time.Duration
	MaxRedirects *int
}

// Merge returns o with unset fields filled from defaults.
func (o CallOptions) Merge(defaults CallOptions) CallOptions {
	merged := o
	if merged.Timeout <= 0 {
		merged.Timeout = defaults.Timeout
	}
	if merged.MaxRedirects == nil && defaults.MaxRedirects != nil {
		limit := *defaults.MaxRedirects
		merged.MaxRedirects = &limit
	}

	return merged
}

// WithBearer returns a copy carrying the session token in the Authorization header.
func (d Descriptor) WithBearer(token string) Descriptor {
	header := make(map[string]string, len(d.Header)+1)
	maps.Copy(header, d.Header)
	header[HeaderAuthorization] = bearerPrefix + token

	d.Header = header
	return d
}

// Escaped returns a copy whose query and body keys are safe for the dotted queue representation.
func (d Descriptor) Escaped() Descriptor {
	d.Header = maps.Clone(d.Header)
	if d.Query != nil {
		d.Query = EscapeKeys(d.Query).(map[string]string)
	}
	if d.Body != nil {
		d.Body = EscapeKeys(d.Body).(map[string]any)
	}

	return d
}

// Unescaped reverses Escaped.
func (d Descriptor) Unescaped() Descriptor {
	d.Header = maps.Clone(d.Header)
	if d.Query != nil {
		d.Query = UnescapeKeys(d.Query).(map[string]string)
	}
	if d.Body != nil {
		d.Body = UnescapeKeys(d.Body).(map[string]any)
	}

	return d
}

// RawResponse is whatever the remote service answered, before classification.
type RawResponse struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}
