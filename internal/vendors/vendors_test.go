package vendors

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrowlimo/alms/internal/model"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"Fas Gas #12, Ltd.":     "FAS GAS",
		"  co-op   gas bar ":    "CO OP GAS BAR",
		"Staples Inc":           "STAPLES",
		"A&W Restaurants Corp.": "A AND W RESTAURANTS",
		"Tim Horton's #4021":    "TIM HORTONS",
		"Co":                    "CO",
		"#123":                  "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, Similarity("Shell #221", "SHELL"), 1e-9)
	assert.InDelta(t, 1-1.0/11, Similarity("Tim Hortons", "Tim Horton"), 1e-9)
	assert.Less(t, Similarity("Shell", "Staples"), 0.5)
}

func TestClusterNames(t *testing.T) {
	names := []model.VendorCount{
		{Name: "Fas Gas", Count: 4},
		{Name: "FAS GAS #12", Count: 4},
		{Name: "Fas Gas Ltd.", Count: 2},
		{Name: "Fass Gas", Count: 1},
		{Name: "Staples", Count: 3},
		{Name: "#99", Count: 5},
	}
	clusters := ClusterNames(names, 0.85)
	require.Len(t, clusters, 2)

	fas := clusters[0]
	assert.Equal(t, "Fas Gas", fas.Canonical, "ties on count go to the shorter spelling")
	assert.Len(t, fas.Members, 4)
	assert.Equal(t, 11, fas.Total)
	assert.Equal(t, "Staples", clusters[1].Canonical)

	// Input order does not matter.
	reversed := make([]model.VendorCount, len(names))
	for i, n := range names {
		reversed[len(names)-1-i] = n
	}
	assert.Equal(t, clusters, ClusterNames(reversed, 0.85))

	aliases := Aliases(clusters)
	assert.Len(t, aliases, 5)
	for _, a := range aliases {
		if a.Alias == "Fass Gas" {
			assert.Equal(t, "Fas Gas", a.Canonical)
		}
	}
}

type fakeStore struct {
	names   []model.VendorCount
	applied []model.VendorAlias
}

func (f *fakeStore) VendorCounts(context.Context) ([]model.VendorCount, error) { return f.names, nil }

func (f *fakeStore) ApplyVendorAliases(_ context.Context, _ string, a []model.VendorAlias) (int64, error) {
	f.applied = append(f.applied, a...)
	return int64(len(a)), nil
}

func TestServiceApplySkipsSingletons(t *testing.T) {
	store := &fakeStore{names: []model.VendorCount{
		{Name: "Shell", Count: 2}, {Name: "SHELL #221", Count: 1}, {Name: "Staples", Count: 1},
	}}
	svc := NewService(store, 0.85, slog.New(slog.NewTextHandler(io.Discard, nil)))

	clusters, updated, err := svc.Apply(context.Background(), "tester", 0)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "Shell", clusters[0].Canonical)
	assert.Equal(t, int64(2), updated)
	assert.Len(t, store.applied, 2)
}
