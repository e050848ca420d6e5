package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lbot-tgbot-go/internal/config"
	"github.com/lbot-tgbot-go/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestUserRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 2}, logger.Discard())
	defer rl.Stop()

	assert.True(t, rl.Allow("1"))
	assert.True(t, rl.Allow("1"))
	assert.False(t, rl.Allow("1"))

	// other users have their own bucket
	assert.True(t, rl.Allow("2"))

	rl.Reset("1")
	assert.True(t, rl.Allow("1"))
}

func TestUserRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: false}, logger.Discard())
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("1"))
	}
}

func TestUserRateLimiter_Prune(t *testing.T) {
	rl := NewRateLimiter(&config.RateLimitConfig{Enabled: true, RequestsPerMinute: 60, Burst: 1}, logger.Discard())
	defer rl.Stop()

	now := time.Now()
	rl.now = func() time.Time { return now }
	rl.Allow("old")

	now = now.Add(2 * time.Hour)
	rl.Allow("fresh")

	assert.Equal(t, 1, rl.prune())
	assert.Len(t, rl.limiters, 1)
	assert.Contains(t, rl.limiters, "fresh")
}

func TestSecurityMiddleware_ValidateInput(t *testing.T) {
	s := NewSecurityMiddleware(logger.Discard())

	assert.NoError(t, s.ValidateInput(""))
	assert.NoError(t, s.ValidateInput(strings.Repeat("a", MaxMessageBytes)))
	assert.Error(t, s.ValidateInput(strings.Repeat("a", MaxMessageBytes+1)))
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	before := testutil.ToFloat64(routesTotal.WithLabelValues("literal", "resolved"))
	m.RecordRoute("literal", "resolved")
	assert.Equal(t, before+1, testutil.ToFloat64(routesTotal.WithLabelValues("literal", "resolved")))

	before = testutil.ToFloat64(classifierRequests.WithLabelValues("http", "match"))
	m.RecordClassifier("http", "match", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(classifierRequests.WithLabelValues("http", "match")))

	before = testutil.ToFloat64(storageOperations.WithLabelValues("award_l", "success"))
	m.RecordStorageOperation("award_l", "success", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(storageOperations.WithLabelValues("award_l", "success")))

	m.SetStoredRows("phrases", 7)
	assert.Equal(t, float64(7), testutil.ToFloat64(storedRows.WithLabelValues("phrases")))
}

func TestMetricsRouter(t *testing.T) {
	NewMetrics().RecordMessageReceived("group")

	srv := httptest.NewServer(NewMetricsRouter("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
