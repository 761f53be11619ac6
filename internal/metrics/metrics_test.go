package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGate struct{ active, waiting, capacity int }

func (g fakeGate) Active() int   { return g.active }
func (g fakeGate) Waiting() int  { return g.waiting }
func (g fakeGate) Capacity() int { return g.capacity }

func TestCounters(t *testing.T) {
	m := New()

	m.Auth("success")
	m.Auth("success")
	m.Auth("fail")
	m.Fetch("error")
	m.Teardown(ReasonReaped)
	m.Login(2 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthTotal.WithLabelValues("fail")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TeardownTotal.WithLabelValues(ReasonReaped)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LoginDuration))
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Auth("success")
		m.Fetch("success")
		m.Teardown(ReasonFetched)
		m.Login(time.Second)
	})
}

func TestHandler_ExposesGauges(t *testing.T) {
	m := New()
	m.ObserveGate(fakeGate{active: 2, waiting: 5, capacity: 3})
	m.ObserveSessions(func() int { return 2 })

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	text := string(body)
	for _, want := range []string{
		"giftcard_gate_active 2",
		"giftcard_gate_waiting 5",
		"giftcard_gate_capacity 3",
		"giftcard_sessions_live 2",
		"go_goroutines",
	} {
		assert.True(t, strings.Contains(text, want), "missing %q", want)
	}
}
