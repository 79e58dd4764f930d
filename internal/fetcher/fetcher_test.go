package fetcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPickUserAgentFromPool(t *testing.T) {
	t.Parallel()

	pool := []string{"ua-1", "ua-2"}
	for i := 0; i < 20; i++ {
		require.Contains(t, pool, PickUserAgent(pool))
	}
}

func TestPickUserAgentFallsBackToDefaults(t *testing.T) {
	t.Parallel()

	for i := 0; i < 20; i++ {
		require.Contains(t, DefaultUserAgents, PickUserAgent(nil))
	}
}

func TestSessionHeaders(t *testing.T) {
	t.Parallel()

	h := SessionHeaders()
	require.NotEmpty(t, h.Get("Accept"))
	require.Contains(t, h.Get("Accept-Language"), "ko-KR")
	require.NotEmpty(t, h.Get("Referer"))
}
