package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := New()

	m.RuleFlagged("amount_deviation", 2)
	m.RuleFlagged("amount_deviation", 1)
	m.RuleFlagged("velocity_check", 0)
	m.ProfilesBuilt(12)
	m.CheckCompleted(OutcomeFraud)
	m.CheckCompleted(OutcomeClear)
	m.CheckCompleted(OutcomeClear)
	m.AnalysisCompleted(40*time.Millisecond, nil)
	m.AnalysisCompleted(time.Second, errors.New("boom"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ruleFlags.WithLabelValues("amount_deviation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ruleFlags.WithLabelValues("velocity_check")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.profiles))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.checks.WithLabelValues(OutcomeClear)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.analysisDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.CheckCompleted(OutcomeNoProfile)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `harrier_checks_total{outcome="no_profile"} 1`))
	assert.Contains(t, string(body), "go_goroutines")
}
