package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/renewal-panel/internal/regress"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestSaveRunRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{DataPath: "data/panel.dta", Rows: 120, Cities: 30, Years: 6}
	records := FromOutcomes([]regress.Outcome{
		{
			Spec: regress.Spec{Name: "baseline_level"},
			Result: &regress.Result{
				SpecName: "baseline_level",
				Coef:     0.25, StdErr: 0.1, PValue: 0.012,
				CILow: 0.054, CIHigh: 0.446, R2Within: 0.4,
				NObs: 120, NCities: 30, NYears: 6,
			},
		},
		{
			Spec: regress.Spec{Name: "hetero_renewal_low"},
			Err:  eris.New("regress: spec underidentified"),
		},
	})

	id, err := s.SaveRun(ctx, run, records)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	runs, err := s.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "data/panel.dta", runs[0].DataPath)
	assert.Equal(t, 120, runs[0].Rows)
	assert.False(t, runs[0].CreatedAt.IsZero())

	got, err := s.RunResults(ctx, id)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// ordered by spec name
	ok := got[0]
	assert.Equal(t, "baseline_level", ok.Spec)
	assert.Equal(t, "ok", ok.Status)
	require.True(t, ok.Coef.Valid)
	assert.Equal(t, 0.25, ok.Coef.Float64)
	require.True(t, ok.NObs.Valid)
	assert.Equal(t, int64(120), ok.NObs.Int64)
	assert.Empty(t, ok.Error)

	failed := got[1]
	assert.Equal(t, "hetero_renewal_low", failed.Spec)
	assert.Equal(t, "failed", failed.Status)
	assert.False(t, failed.Coef.Valid)
	assert.False(t, failed.NObs.Valid)
	assert.Contains(t, failed.Error, "underidentified")
}

func TestSaveRun_DistinctIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	run := Run{DataPath: "data/panel.dta", Rows: 10, Cities: 5, Years: 2}
	id1, err := s.SaveRun(ctx, run, nil)
	require.NoError(t, err)
	id2, err := s.SaveRun(ctx, run, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)
}

func TestRunResults_UnknownRun(t *testing.T) {
	s := openTestStore(t)

	got, err := s.RunResults(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMigrateIdempotent(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestFromOutcomes(t *testing.T) {
	outcomes := []regress.Outcome{
		{
			Spec:   regress.Spec{Name: "baseline_level"},
			Result: &regress.Result{SpecName: "baseline_level", Coef: 1.5, NObs: 12},
		},
		{
			Spec: regress.Spec{Name: "delta_dep"},
			Err:  eris.New("regress: no sample"),
		},
	}

	records := FromOutcomes(outcomes)
	require.Len(t, records, 2)

	assert.Equal(t, "ok", records[0].Status)
	assert.True(t, records[0].Coef.Valid)
	assert.Equal(t, 1.5, records[0].Coef.Float64)

	assert.Equal(t, "failed", records[1].Status)
	assert.False(t, records[1].Coef.Valid)
	assert.Contains(t, records[1].Error, "no sample")
}
