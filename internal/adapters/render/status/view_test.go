package status

import (
	"strings"
	"testing"
	"time"

	"github.com/bnema/sessionpool/internal/application"
	"github.com/bnema/sessionpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderOutcomes(t *testing.T) {
	output, err := RenderOutcomes([]application.Outcome{
		{
			ID:       "env-1",
			Method:   "GET",
			URL:      "https://fms.example.com/fmi/data/vLatest/databases/Contacts/layouts/People/records",
			Status:   200,
			Code:     domain.CodeOK,
			Duration: 42 * time.Millisecond,
		},
		{
			ID:       "env-2",
			Method:   "POST",
			URL:      "https://fms.example.com/fmi/data/vLatest/databases/Contacts/layouts/People/_find",
			Code:     "401",
			Message:  "No records match the request",
			Duration: 1500 * time.Millisecond,
		},
	}, RenderOptions{Profile: "staging"})

	require.NoError(t, err)
	assert.Contains(t, output, "Requests (staging)")
	assert.Contains(t, output, "requests: 2  ok: 1  failed: 1")
	assert.Contains(t, output, "ok")
	assert.Contains(t, output, "error 401")
	assert.Contains(t, output, "No records match the request")
	assert.Contains(t, output, "42ms")
	assert.Contains(t, output, "1.5s")
	assert.Contains(t, output, "…")
	assert.NotContains(t, output, "_find")
}

func TestRenderOutcomesEmpty(t *testing.T) {
	output, err := RenderOutcomes(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "requests: 0")
	assert.Contains(t, output, "No requests were sent.")
}

func TestRenderSessions(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)
	fresh := domain.NewSession("sess-1", "tok-secret-1", now.Add(-5*time.Minute))
	fresh.Used = now.Add(-3 * time.Minute)
	stale := domain.NewSession("sess-2", "tok-secret-2", now.Add(-20*time.Minute))

	output, err := RenderSessions([]domain.Session{fresh, stale}, RenderOptions{Now: now, Profile: "default"})

	require.NoError(t, err)
	assert.Contains(t, output, "Sessions (default)")
	assert.Contains(t, output, "sessions: 2")
	assert.Contains(t, output, "sess-1")
	assert.Contains(t, output, "in 10 minutes (11:10:00)")
	assert.Contains(t, output, "3 minutes ago")
	assert.Contains(t, output, "expired")
	assert.Contains(t, output, "never")
	assert.NotContains(t, output, "tok-secret")
}

func TestRenderSessionsEmpty(t *testing.T) {
	output, err := RenderSessions(nil, RenderOptions{})

	require.NoError(t, err)
	assert.Contains(t, output, "No cached sessions.")
}

func TestRenderTableAlignsColumns(t *testing.T) {
	s := newStyles()
	table := renderTable([]string{"a", "bb"}, [][]string{{"long-cell", "x"}, {"y", "z"}}, s, func(_ []string, _ int, cell string) string {
		return cell
	})

	lines := strings.Split(table, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[1], "x"), strings.Index(lines[2], "z"))
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		in   time.Duration
		want string
	}{
		{in: 0, want: "-"},
		{in: 500 * time.Microsecond, want: "<1ms"},
		{in: 250 * time.Millisecond, want: "250ms"},
		{in: 2 * time.Second, want: "2.0s"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.want, formatDuration(tc.in))
	}
}

func TestFormatLastUsed(t *testing.T) {
	now := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	assert.Equal(t, "never", formatLastUsed(time.Time{}, now))
	assert.Equal(t, "just now", formatLastUsed(now.Add(-10*time.Second), now))
	assert.Equal(t, "1 minute ago", formatLastUsed(now.Add(-time.Minute), now))
}
