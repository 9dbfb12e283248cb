package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stakingctl/internal/chain"
)

var _ chain.Observer = (*Registry)(nil)

func TestRegistryCounts(t *testing.T) {
	m := NewRegistry()

	m.TxSubmitted(2)
	m.TxConfirmed(1)
	m.TxConfirmed(3)
	m.TxFailed("timeout")
	m.StageDone("configure", "ok")
	m.StageDone("withdraw", "failed")
	m.StageDone("configure", "ok")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.submittedTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.confirmedTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failedTotal.WithLabelValues("timeout")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.stageOutcomesTotal.WithLabelValues("configure", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.stageOutcomesTotal.WithLabelValues("withdraw", "failed")))

	n, err := testutil.GatherAndCount(m.Gatherer(), "stakingctl_confirmation_rounds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPushSendsRunGroup(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		body  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		paths = append(paths, r.Method+" "+r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewRegistry()
	m.TxSubmitted(1)
	require.NoError(t, m.Push(srv.URL, "run-1"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.Equal(t, "PUT /metrics/job/stakingctl/run/run-1", paths[0])
	assert.NotEmpty(t, body)
}

func TestPushRejectsEmptyURL(t *testing.T) {
	require.Error(t, NewRegistry().Push("", "run"))
}
