package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/elliots/useexports/internal/transform"
)

func TestObserveResult(t *testing.T) {
	m := New()
	m.ObserveResult("batch", &transform.Result{
		Exports:   []*transform.ExportRecord{{LocalName: "foo", PublicName: "foo"}},
		Rewritten: []*transform.OccurrenceRecord{{LocalName: "foo"}, {LocalName: "foo"}},
		Rejected: []transform.Rejection{
			{LocalName: "foo", Reason: transform.ReasonDeclarationName},
			{LocalName: "foo", Reason: transform.ReasonShadowed},
			{LocalName: "foo", Reason: transform.ReasonShadowed},
		},
	}, time.Millisecond)
	m.ObserveResult("batch", &transform.Result{}, time.Millisecond)
	m.ObserveError()
	m.ObserveUnsupported()
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)

	require.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("changed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("unchanged")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.filesTotal.WithLabelValues("error")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.exportsTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(m.rewrittenTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(m.rejectedTotal.WithLabelValues("shadowed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.rejectedTotal.WithLabelValues("declaration-name")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.unsupportedTotal))
	require.Equal(t, 2.0, testutil.ToFloat64(m.cacheTotal.WithLabelValues("miss")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.ObserveResult("server", &transform.Result{}, time.Second)
		m.ObserveError()
		m.ObserveUnsupported()
		m.ObserveCache(true)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveUnsupported()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), "useexports_unsupported_target_total 1"), string(body))
}
