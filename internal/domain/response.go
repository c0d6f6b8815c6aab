package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var errMalformedResponse = errors.New("response is not a structured service payload")

type ServiceMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result is the normalized success payload handed back to callers.
type Result struct {
	StatusCode int
	Response   json.RawMessage
	Messages   []ServiceMessage
}

type serviceEnvelope struct {
	Response json.RawMessage  `json:"response"`
	Messages []ServiceMessage `json:"messages"`
}

// ClassifyResponse turns a received response into a Result or a *ServiceError.
//
// A 502, a body that is not a JSON object, or an error status without a message
// list all collapse into the unavailable error. Otherwise the first message with
// a non-zero code wins.
func ClassifyResponse(raw RawResponse) (Result, error) {
	if raw.StatusCode == http.StatusBadGateway {
		return Result{}, ServiceUnavailable(fmt.Errorf("status %d", raw.StatusCode))
	}

	envelope, err := decodeEnvelope(raw.Body)
	if err != nil {
		return Result{}, ServiceUnavailable(err)
	}

	if len(envelope.Messages) > 0 && envelope.Messages[0].Code != CodeOK {
		first := envelope.Messages[0]
		return Result{}, &ServiceError{Code: first.Code, Message: first.Message}
	}

	if raw.StatusCode < http.StatusOK || raw.StatusCode >= http.StatusMultipleChoices {
		return Result{}, ServiceUnavailable(fmt.Errorf("status %d: %w", raw.StatusCode, errMalformedResponse))
	}

	payload := envelope.Response
	if payload == nil {
		payload = json.RawMessage(bytes.TrimSpace(raw.Body))
	}

	return Result{
		StatusCode: raw.StatusCode,
		Response:   payload,
		Messages:   envelope.Messages,
	}, nil
}

func decodeEnvelope(body []byte) (serviceEnvelope, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return serviceEnvelope{}, errMalformedResponse
	}

	var envelope serviceEnvelope
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return serviceEnvelope{}, fmt.Errorf("%w: %w", errMalformedResponse, err)
	}

	return envelope, nil
}
