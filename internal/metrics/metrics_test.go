package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamup/renew-agent/internal/batch"
)

func gather(t *testing.T, r *Recorder) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := r.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestRecordCountsResults(t *testing.T) {
	r := New("")
	ctx := context.Background()

	require.NoError(t, r.Record(ctx, batch.Result{Status: batch.StatusRenewed, Attempts: 3, Reloads: 2, ChallengeClicks: 3}))
	require.NoError(t, r.Record(ctx, batch.Result{Status: batch.StatusLoginFailed}))
	require.NoError(t, r.Record(ctx, batch.Result{Status: batch.StatusRenewed, Attempts: 1, ChallengeClicks: 1}))

	families := gather(t, r)

	accounts := families["renew_accounts_total"]
	require.NotNil(t, accounts)
	assert.Len(t, accounts.GetMetric(), len(batch.AllStatuses))

	byStatus := map[string]float64{}
	for _, m := range accounts.GetMetric() {
		byStatus[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, byStatus["renewed"])
	assert.Equal(t, 1.0, byStatus["login_failed"])
	assert.Equal(t, 0.0, byStatus["exhausted"])

	assert.Equal(t, 4.0, families["renew_attempts_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 2.0, families["renew_page_reloads_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 4.0, families["renew_challenge_clicks_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestFlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renew.prom")
	r := New(path)
	require.NoError(t, r.Record(context.Background(), batch.Result{Status: batch.StatusDeferred, Attempts: 2}))

	require.NoError(t, r.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `renew_accounts_total{status="deferred"} 1`)
	assert.Contains(t, string(data), "renew_attempts_total 2")
}

func TestFlushWithoutTextfileIsNoop(t *testing.T) {
	assert.NoError(t, New("").Flush())
}
