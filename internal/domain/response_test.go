package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      RawResponse
		wantCode string
		wantMsg  string
		wantBody string
	}{
		{
			name:     "success envelope",
			raw:      RawResponse{StatusCode: 200, Body: []byte(`{"response":{"data":[1]},"messages":[{"code":"0","message":"OK"}]}`)},
			wantBody: `{"data":[1]}`,
		},
		{
			name:     "success without envelope keeps whole body",
			raw:      RawResponse{StatusCode: 200, Body: []byte(` {"ok":true} `)},
			wantBody: `{"ok":true}`,
		},
		{
			name:     "bad gateway",
			raw:      RawResponse{StatusCode: 502, Body: []byte(`{"messages":[{"code":"0","message":"OK"}]}`)},
			wantCode: CodeServiceUnavailable,
			wantMsg:  MessageServiceUnavailable,
		},
		{
			name:     "html body",
			raw:      RawResponse{StatusCode: 200, Body: []byte(`<html>maintenance</html>`)},
			wantCode: CodeServiceUnavailable,
			wantMsg:  MessageServiceUnavailable,
		},
		{
			name:     "empty body",
			raw:      RawResponse{StatusCode: 500},
			wantCode: CodeServiceUnavailable,
			wantMsg:  MessageServiceUnavailable,
		},
		{
			name:     "error status without messages",
			raw:      RawResponse{StatusCode: 500, Body: []byte(`{"error":"x"}`)},
			wantCode: CodeServiceUnavailable,
			wantMsg:  MessageServiceUnavailable,
		},
		{
			name:     "first service message wins",
			raw:      RawResponse{StatusCode: 401, Body: []byte(`{"response":{},"messages":[{"code":"401","message":"No records match the request"},{"code":"500","message":"other"}]}`)},
			wantCode: "401",
			wantMsg:  "No records match the request",
		},
		{
			name:     "invalid token",
			raw:      RawResponse{StatusCode: 401, Body: []byte(`{"messages":[{"code":"952","message":"Invalid FileMaker Data API token (*)"}]}`)},
			wantCode: CodeInvalidToken,
			wantMsg:  "Invalid FileMaker Data API token (*)",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := ClassifyResponse(tt.raw)
			if tt.wantCode == "" {
				require.NoError(t, err)
				assert.JSONEq(t, tt.wantBody, string(result.Response))
				assert.Equal(t, tt.raw.StatusCode, result.StatusCode)
				return
			}

			var serviceErr *ServiceError
			require.True(t, errors.As(err, &serviceErr))
			assert.Equal(t, tt.wantCode, serviceErr.Code)
			assert.Equal(t, tt.wantMsg, serviceErr.Message)
		})
	}
}

func TestClassifyResponseKeepsMessages(t *testing.T) {
	t.Parallel()

	result, err := ClassifyResponse(RawResponse{
		StatusCode: 200,
		Body:       []byte(`{"response":{"modId":"3"},"messages":[{"code":"0","message":"OK"}]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, []ServiceMessage{{Code: "0", Message: "OK"}}, result.Messages)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(result.Response, &payload))
	assert.Equal(t, "3", payload["modId"])
}
