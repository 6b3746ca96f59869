package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avery-whitehead/StreetMapsDownload/internal/cluster"
	"github.com/avery-whitehead/StreetMapsDownload/internal/geometry"
	"github.com/avery-whitehead/StreetMapsDownload/internal/grouping"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/metrics"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/palette"
)

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)

	_, err := New(Deps{}, f.set)
	assert.Error(t, err)

	noBuilder := f.deps
	noBuilder.Builder = nil
	_, err = New(noBuilder, f.set)
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "paths.web_map", ce.Item)

	unknown := f.set
	unknown.Provider = "osm"
	_, err = New(f.deps, unknown)
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "provider.name", ce.Item)
}

func TestNew_ProviderFromClient(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.Provider = ""
	p := f.pipeline(t)
	assert.Equal(t, mapclient.ProviderMapbox, p.set.Provider)
	assert.Equal(t, OnFailureMark, p.set.OnFailure)
}

func TestRunSingle_Esri(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	rep, err := f.pipeline(t).RunSingle(context.Background(), "100000000001")
	require.NoError(t, err)

	want := filepath.Join(f.set.OutputDir, "single-100000000001.pdf")
	assert.Equal(t, []string{want}, rep.Pages)
	assert.False(t, rep.Failed())
	assert.FileExists(t, want)

	reqs := f.client.requests()
	require.Len(t, reqs, 2)
	labels := []string{reqs[0].Label, reqs[1].Label}
	assert.ElementsMatch(t, []string{"single 100000000001 scale 1500", "single 100000000001 scale 10000"}, labels)
	for _, r := range reqs {
		require.NotNil(t, r.WebMap)
		assert.Equal(t, 436512.4, r.WebMap.MapOptions.Extent.XMin)
		assert.Equal(t, 493821.1, r.WebMap.MapOptions.Extent.YMax)
	}
	assert.Equal(t, model.PrintStatusComplete, f.store.statuses()["single-100000000001.pdf"])
	assert.NotEmpty(t, rep.RunID)
}

func TestRunSingle_InvalidUPRN(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	_, err := f.pipeline(t).RunSingle(context.Background(), "12345")
	var de *model.DataError
	require.True(t, errors.As(err, &de))
	assert.Empty(t, f.client.requests())
}

func TestRunSingle_MarksMissingScale(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	f.set.Format = "jpg"
	f.client.fail = func(req mapclient.Request) bool {
		return strings.HasSuffix(req.Label, "scale 10000")
	}

	rep, err := f.pipeline(t).RunSingle(context.Background(), "100000000001")
	require.NoError(t, err)

	want := filepath.Join(f.set.OutputDir, "single-100000000001.jpg")
	assert.Equal(t, []string{want}, rep.Incomplete)
	assert.FileExists(t, want)
	assert.Equal(t, model.PrintStatusIncomplete, f.store.statuses()["single-100000000001.jpg"])
}

func TestRunSingle_FailPolicy(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	f.set.OnFailure = OnFailureFail
	f.client.fail = func(req mapclient.Request) bool {
		return strings.HasSuffix(req.Label, "scale 10000")
	}

	rep, err := f.pipeline(t).RunSingle(context.Background(), "100000000001")
	var ese *model.ExternalServiceError
	require.True(t, errors.As(err, &ese))
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StepFetch, rep.Failures[0].Step)
	assert.NoFileExists(t, filepath.Join(f.set.OutputDir, "single-100000000001.pdf"))
	assert.Equal(t, model.PrintStatusFailed, f.store.statuses()["single-100000000001.pdf"])
}

func TestRunGroups_Mapbox(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.Format = "jpg"
	m := metrics.New()
	f.deps.Metrics = m

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(f.set.OutputDir, "all-DL6 2AA.jpg"),
		filepath.Join(f.set.OutputDir, "all-DL7 8BB.jpg"),
	}, rep.Pages)
	for _, p := range rep.Pages {
		assert.FileExists(t, p)
	}

	reqs := f.client.requests()
	require.Len(t, reqs, 2)
	pins := map[string]int{}
	for _, r := range reqs {
		require.NotNil(t, r.Static)
		assert.Equal(t, 16.0, r.Static.Zoom)
		pins[r.Label] = len(r.Static.Pins)
	}
	assert.Equal(t, map[string]int{"group DL6 2AA scale 16": 2, "group DL7 8BB scale 16": 1}, pins)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesRendered.WithLabelValues("group", "complete")))
}

func TestRunGroups_EsriMarkers(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	_, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{Round: "RECY R2"})
	require.NoError(t, err)

	// A one-member group is centred on its member, projected to the grid.
	x, y := geometry.BNG{}.Project(geometry.LatLng{Lat: 54.3425, Lng: -1.4268})

	reqs := f.client.requests()
	require.Len(t, reqs, 2)
	for _, r := range reqs {
		require.NotNil(t, r.WebMap)
		layer := r.WebMap.OperationalLayers[0].FeatureCollection.Layers[0]
		require.Len(t, layer.FeatureSet.Features, 1)
		assert.Equal(t, 437010.0, layer.FeatureSet.Features[0].Geometry.X)
		assert.InDelta(t, x, r.WebMap.MapOptions.Extent.XMin, 1e-6)
		assert.InDelta(t, y, r.WebMap.MapOptions.Extent.YMin, 1e-6)
	}
	assert.FileExists(t, filepath.Join(f.set.OutputDir, "RECY R2-DL7 8BB.pdf"))
}

func TestRunGroups_FailureIsolated(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.OnFailure = OnFailureFail
	m := metrics.New()
	f.deps.Metrics = m
	f.client.fail = func(req mapclient.Request) bool {
		return strings.Contains(req.Label, "DL6 2AA")
	}

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "DL6 2AA", rep.Failures[0].Group)
	assert.Equal(t, StepFetch, rep.Failures[0].Step)
	assert.Equal(t, []string{filepath.Join(f.set.OutputDir, "all-DL7 8BB.pdf")}, rep.Pages)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GroupsFailed.WithLabelValues(StepFetch)))
}

func TestRunGroups_NoMapsIsComposeFailure(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.client.fail = func(req mapclient.Request) bool {
		return strings.Contains(req.Label, "DL7 8BB")
	}

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StepCompose, rep.Failures[0].Step)
	var de *model.DataError
	require.True(t, errors.As(rep.Failures[0].Err, &de))
	assert.Equal(t, "DL7 8BB", de.Group)
}

func TestRunGroups_EmptyScope(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	_, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{Round: "NONE"})
	var de *model.DataError
	assert.True(t, errors.As(err, &de))
}

func TestRunGroups_StoreError(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.store.err = errors.New("connection refused")
	_, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	assert.ErrorContains(t, err, "connection refused")
}

func TestRunGroups_MissingTemplateAborts(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	require.NoError(t, os.Remove(filepath.Join(f.set.AssetsDir, "page.png")))

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	var ce *model.ConfigurationError
	require.True(t, errors.As(err, &ce))
	assert.Empty(t, rep.Failures)
	assert.Empty(t, f.client.requests())
}

func TestRunGroups_Cancelled(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := f.pipeline(t).RunGroups(ctx, model.Scope{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rep.Pages)
	assert.Empty(t, rep.Failures)
}

func TestRunRounds(t *testing.T) {
	f := newFixture(t, mapclient.ProviderEsri)
	f.set.Cleanup = true
	f.set.Publish = true
	m := metrics.New()
	f.deps.Metrics = m

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)

	r1 := filepath.Join(f.set.OutputDir, "RECY R1.pdf")
	r2 := filepath.Join(f.set.OutputDir, "RECY R2.pdf")
	assert.Equal(t, []string{r1, r2}, rep.Merged)
	assert.Equal(t, []string{r1, r2}, f.publisher.sent)
	assert.Equal(t, []string{"s3://prints/RECY R1.pdf", "s3://prints/RECY R2.pdf"}, rep.Published)

	n, err := api.PageCountFile(r1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = api.PageCountFile(r2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// GARD R9 is a known round no location is tagged with.
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "GARD R9", rep.Failures[0].Round)
	assert.Equal(t, StepGroup, rep.Failures[0].Step)

	entries, err := os.ReadDir(f.set.WorkDir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	statuses := f.store.statuses()
	assert.Equal(t, model.PrintStatusMerged, statuses["RECY R1.pdf"])
	assert.Equal(t, model.PrintStatusComplete, statuses["RECY R1-overview.pdf"])
	assert.Equal(t, model.PrintStatusComplete, statuses["RECY R1-DL6 2AA.pdf"])
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoundsMerged))
}

func TestRunRounds_OverviewFirst(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.RoundPrefix = "RECY R1"

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rep.Failures)
	assert.Equal(t, []string{filepath.Join(f.set.OutputDir, "RECY R1.pdf")}, rep.Merged)

	// Pages render in merge order: overview, then groups by position.
	assert.Equal(t, []string{
		filepath.Join(f.set.WorkDir, "RECY R1-overview.pdf"),
		filepath.Join(f.set.WorkDir, "RECY R1-DL6 2AA.pdf"),
		filepath.Join(f.set.WorkDir, "RECY R1-DL7 8BB.pdf"),
	}, rep.Pages)

	reqs := f.client.requests()
	require.NotEmpty(t, reqs)
	assert.Equal(t, "overview RECY R1 scale 13", reqs[0].Label)
	assert.Len(t, reqs[0].Static.Pins, 3)

	// Without cleanup the page artifacts stay in the work dir.
	assert.FileExists(t, filepath.Join(f.set.WorkDir, "RECY R1-overview.pdf"))
}

func TestRunRounds_MergeWithoutFailedOverview(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.RoundPrefix = "RECY R2"
	f.client.fail = func(req mapclient.Request) bool {
		return strings.HasPrefix(req.Label, "overview")
	}

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "overview", rep.Failures[0].Group)
	n, err := api.PageCountFile(filepath.Join(f.set.OutputDir, "RECY R2.pdf"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRunRounds_FailedGroupPageShortensRound(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.RoundPrefix = "RECY R1"
	f.client.fail = func(req mapclient.Request) bool {
		return strings.Contains(req.Label, "DL7 8BB")
	}

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)

	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "RECY R1", rep.Failures[0].Round)
	assert.Equal(t, "DL7 8BB", rep.Failures[0].Group)
	assert.Equal(t, StepCompose, rep.Failures[0].Step)

	merged := filepath.Join(f.set.OutputDir, "RECY R1.pdf")
	assert.Equal(t, []string{merged}, rep.Merged)
	n, err := api.PageCountFile(merged)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunRounds_PublishFailure(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.RoundPrefix = "RECY R2"
	f.set.Publish = true
	f.publisher.err = &model.ExternalServiceError{Provider: "ftp", Op: "stor"}

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, StepPublish, rep.Failures[0].Step)
	assert.Len(t, rep.Merged, 1)
	assert.Empty(t, rep.Published)
}

func TestRunRounds_CleanupKeepsMergedInSharedDir(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.set.OutputDir = f.set.WorkDir
	f.set.Cleanup = true

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Merged, 2)
	for _, m := range rep.Merged {
		assert.FileExists(t, m)
	}
	assert.NoFileExists(t, filepath.Join(f.set.WorkDir, "RECY R1-overview.pdf"))
	assert.NoFileExists(t, filepath.Join(f.set.WorkDir, "RECY R1-DL6 2AA.pdf"))
}

func TestKeepOnCleanup(t *testing.T) {
	keep := keepOnCleanup([]string{"template.jpg"}, []string{"/out/RECY R1.pdf", "/out/RECY R2.pdf"})
	assert.Equal(t, []string{"template.jpg", "RECY R1.pdf", "RECY R2.pdf"}, keep)
}

// pinColors maps each group key to the pin color of its group page request.
func pinColors(reqs []mapclient.Request, keys ...string) map[string]model.Color {
	out := make(map[string]model.Color)
	for _, r := range reqs {
		if r.Static == nil || len(r.Static.Pins) == 0 || !strings.HasPrefix(r.Label, "group ") {
			continue
		}
		for _, k := range keys {
			if strings.Contains(r.Label, k) {
				out[k] = r.Static.Pins[0].Color
			}
		}
	}
	return out
}

func TestRunGroups_ColorsFollowGroupingOrder(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	// DL7 8BB is seen first but sorts after DL6 2AA by position.
	locs := testLocations()
	f.store.locs = []model.Location{locs[2], locs[0], locs[1]}
	f.deps.Palette = palette.New(7, 0.9, 10)

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	require.NoError(t, err)
	require.Len(t, rep.Pages, 2)

	fills := palette.New(7, 0.9, 10).Generate(2)
	palette.SortByHLS(fills)

	got := pinColors(f.client.requests(), "DL6 2AA", "DL7 8BB")
	assert.Equal(t, fills[0], got["DL7 8BB"])
	assert.Equal(t, fills[1], got["DL6 2AA"])
	// Pages still come out in position order.
	assert.Equal(t, filepath.Join(f.set.OutputDir, "all-DL6 2AA.pdf"), rep.Pages[0])
}

func densityGrouper() grouping.Density {
	return grouping.Density{
		Clusterer: cluster.NewDBSCAN(cluster.MetricByName("haversine")),
		Params:    cluster.Params{Eps: 100, MinPts: 2},
	}
}

func TestRunGroups_DensitySkipsNoise(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.deps.Grouper = densityGrouper()

	rep, err := f.pipeline(t).RunGroups(context.Background(), model.Scope{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(f.set.OutputDir, "all-0.pdf")}, rep.Pages)
	assert.Empty(t, rep.Failures)
	assert.NoFileExists(t, filepath.Join(f.set.OutputDir, "all-"+model.NoiseKey+".pdf"))
	for _, r := range f.client.requests() {
		assert.NotContains(t, r.Label, model.NoiseKey)
	}
}

func TestRunRounds_DensitySkipsNoise(t *testing.T) {
	f := newFixture(t, mapclient.ProviderMapbox)
	f.deps.Grouper = densityGrouper()
	f.set.RoundPrefix = "RECY"

	rep, err := f.pipeline(t).RunRounds(context.Background())
	require.NoError(t, err)

	// The lone DL7 8BB address is noise, so RECY R2 has nothing to print.
	assert.Equal(t, []string{filepath.Join(f.set.OutputDir, "RECY R1.pdf")}, rep.Merged)
	n, err := api.PageCountFile(rep.Merged[0])
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, rep.Failures, 1)
	assert.Equal(t, "RECY R2", rep.Failures[0].Round)
	assert.Equal(t, StepGroup, rep.Failures[0].Step)
	for _, r := range f.client.requests() {
		assert.NotContains(t, r.Label, model.NoiseKey)
	}
}
