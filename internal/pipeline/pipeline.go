// Package pipeline renders single, group and round prints end to end.
package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/compose"
	"github.com/avery-whitehead/StreetMapsDownload/internal/geometry"
	"github.com/avery-whitehead/StreetMapsDownload/internal/grouping"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/metrics"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/palette"
	"github.com/avery-whitehead/StreetMapsDownload/internal/printer"
	"github.com/avery-whitehead/StreetMapsDownload/internal/publish"
	"github.com/avery-whitehead/StreetMapsDownload/internal/store"
	"github.com/avery-whitehead/StreetMapsDownload/internal/webmap"
)

// Fetch failure policies.
const (
	OnFailureFail = "fail"
	OnFailureMark = "mark"
)

// Deps are the collaborators a run uses. Builder is required for the esri
// provider. Publisher and Metrics may be nil.
type Deps struct {
	Store     store.Store
	Grouper   grouping.Grouper
	Palette   *palette.Generator
	Builder   *webmap.Builder
	Client    mapclient.Client
	Layouts   *layout.Set
	Publisher publish.Publisher
	Metrics   *metrics.Metrics
}

// Settings hold the per-run options.
type Settings struct {
	Provider      string
	WorkDir       string
	OutputDir     string
	AssetsDir     string
	Format        string // pdf or jpg, for single and group prints
	DPI           int
	OnFailure     string
	OutlineOffset int
	RoundPrefix   string
	Cleanup       bool
	Publish       bool
	FetchParallel int
}

// Pipeline prints pages one group at a time. A failed group is recorded
// and skipped; a ConfigurationError or cancellation aborts the run.
type Pipeline struct {
	deps Deps
	set  Settings
	req  requester
	now  func() time.Time
}

// New validates deps and fills unset settings with defaults.
func New(d Deps, s Settings) (*Pipeline, error) {
	if d.Store == nil || d.Client == nil || d.Layouts == nil {
		return nil, eris.New("pipeline: missing store, client or layouts")
	}
	if s.Provider == "" {
		s.Provider = d.Client.Provider()
	}
	if s.Format == "" {
		s.Format = "pdf"
	}
	if s.DPI <= 0 {
		s.DPI = 300
	}
	if s.OnFailure == "" {
		s.OnFailure = OnFailureMark
	}
	if s.FetchParallel < 1 {
		s.FetchParallel = 3
	}
	if s.OutlineOffset == 0 {
		s.OutlineOffset = palette.DefaultOutlineOffset
	}
	if d.Grouper == nil {
		d.Grouper = grouping.ByPostcode{}
	}
	if d.Palette == nil {
		d.Palette = palette.New(uint64(time.Now().UnixNano()), palette.DefaultPastel, palette.DefaultTrials)
	}
	if d.Publisher == nil {
		d.Publisher = publish.Nop{}
	}

	p := &Pipeline{deps: d, set: s, now: time.Now}
	switch s.Provider {
	case mapclient.ProviderEsri:
		if d.Builder == nil {
			return nil, &model.ConfigurationError{Item: "paths.web_map", Err: eris.New("pipeline: esri prints need web map templates")}
		}
		p.req = esriRequests{b: d.Builder, tr: geometry.ForProvider(s.Provider)}
	case mapclient.ProviderMapbox:
		p.req = mapboxRequests{}
	default:
		return nil, &model.ConfigurationError{Item: "provider.name", Err: eris.Errorf("pipeline: unknown provider %q", s.Provider)}
	}
	return p, nil
}

// RunSingle prints one location at every scale of the single layout.
func (p *Pipeline) RunSingle(ctx context.Context, uprn string) (*Report, error) {
	rep := p.newReport()
	log := zap.L().With(zap.String("run_id", rep.RunID), zap.String("uprn", uprn))
	log.Info("pipeline: starting single print")

	loc, err := p.deps.Store.Location(ctx, uprn)
	if err != nil {
		return rep, err
	}

	pg := page{
		kind:  layout.KindSingle,
		key:   uprn,
		label: compose.AddressLabel(*loc),
		path:  filepath.Join(p.set.OutputDir, printer.ArtifactName("single", uprn, p.set.Format)),
		build: func(slots []layout.Slot) ([]mapclient.Request, error) {
			return p.req.single(*loc, slots)
		},
	}
	if err := p.printPage(ctx, rep, pg); err != nil {
		rep.Failures = append(rep.Failures, failureOf("", uprn, err, StepCompose))
		return rep, err
	}
	log.Info("pipeline: single print complete", zap.String("path", pg.path))
	return rep, nil
}

// RunGroups prints one page per group of the locations in scope.
func (p *Pipeline) RunGroups(ctx context.Context, scope model.Scope) (*Report, error) {
	rep := p.newReport()
	log := zap.L().With(zap.String("run_id", rep.RunID), zap.String("scope", scope.Name()))
	log.Info("pipeline: starting group prints")

	locs, err := p.deps.Store.Locations(ctx, scope)
	if err != nil {
		return rep, err
	}
	groups, err := p.prepare(ctx, rep, locs)
	if err != nil {
		return rep, err
	}

	for _, g := range groups {
		pg := page{
			kind:  layout.KindGroup,
			round: scope.Round,
			key:   g.Key,
			label: compose.GroupLabel(g.First(), scope.Round),
			path:  filepath.Join(p.set.OutputDir, printer.ArtifactName(scope.Name(), g.Key, p.set.Format)),
			build: func(slots []layout.Slot) ([]mapclient.Request, error) {
				return p.req.group(g, slots)
			},
		}
		if err := p.printPage(ctx, rep, pg); err != nil {
			if err := p.handle(ctx, rep, scope.Round, g.Key, err, StepCompose); err != nil {
				return rep, err
			}
		}
	}

	log.Info("pipeline: group prints complete",
		zap.Int("groups", len(groups)),
		zap.Int("pages", len(rep.Pages)),
		zap.Int("failures", len(rep.Failures)),
	)
	return rep, nil
}

// RunRounds prints every round: an overview page, then one page per group,
// merged into a single document per round. Rounds are optionally published
// and intermediate artifacts removed afterwards.
func (p *Pipeline) RunRounds(ctx context.Context) (*Report, error) {
	rep := p.newReport()
	log := zap.L().With(zap.String("run_id", rep.RunID))
	log.Info("pipeline: starting round prints")

	locs, known, err := store.LoadAll(ctx, p.deps.Store, model.Scope{})
	if err != nil {
		return rep, err
	}
	groups, err := p.prepare(ctx, rep, locs)
	if err != nil {
		return rep, err
	}

	rounds := grouping.ByRound(groups, known)
	for _, r := range rounds {
		if !strings.HasPrefix(r.Label, p.set.RoundPrefix) {
			continue
		}
		if err := p.runRound(ctx, rep, r); err != nil {
			return rep, err
		}
	}

	if p.set.Cleanup {
		n, err := printer.Cleanup(p.set.WorkDir, keepOnCleanup(p.deps.Layouts.Templates(), rep.Merged))
		if err != nil {
			log.Warn("pipeline: cleanup failed", zap.Error(err))
		} else {
			log.Info("pipeline: cleaned work dir", zap.Int("removed", n))
		}
	}

	log.Info("pipeline: round prints complete",
		zap.Int("merged", len(rep.Merged)),
		zap.Int("failures", len(rep.Failures)),
	)
	return rep, nil
}

// keepOnCleanup lists the files cleanup must leave in the work dir. Merged
// round documents are kept so a shared work and output dir survives.
func keepOnCleanup(templates, merged []string) []string {
	keep := append([]string(nil), templates...)
	for _, m := range merged {
		keep = append(keep, filepath.Base(m))
	}
	return keep
}

func (p *Pipeline) runRound(ctx context.Context, rep *Report, r model.Round) error {
	log := zap.L().With(zap.String("round", r.Label))
	if len(r.Groups) == 0 {
		return p.handle(ctx, rep, r.Label, "", &model.DataError{Reason: "round has no groups"}, StepGroup)
	}

	ov := page{
		kind:  layout.KindOverview,
		round: r.Label,
		key:   "overview",
		label: []string{r.Label + " Overview"},
		path:  filepath.Join(p.set.WorkDir, printer.OverviewName(r.Label)),
		build: func(slots []layout.Slot) ([]mapclient.Request, error) {
			return p.req.overview(r.Label, r.Groups, slots)
		},
	}
	if err := p.printPage(ctx, rep, ov); err != nil {
		if err := p.handle(ctx, rep, r.Label, ov.key, err, StepCompose); err != nil {
			return err
		}
	} else {
		r.Overview = printer.OverviewName(r.Label)
	}

	for _, g := range r.Groups {
		name := printer.ArtifactName(r.Label, g.Key, "pdf")
		pg := page{
			kind:  layout.KindGroup,
			round: r.Label,
			key:   g.Key,
			label: compose.GroupLabel(g.First(), r.Label),
			path:  filepath.Join(p.set.WorkDir, name),
			build: func(slots []layout.Slot) ([]mapclient.Request, error) {
				return p.req.group(g, slots)
			},
		}
		if err := p.printPage(ctx, rep, pg); err != nil {
			if err := p.handle(ctx, rep, r.Label, g.Key, err, StepCompose); err != nil {
				return err
			}
			continue
		}
		r.Pages = append(r.Pages, name)
	}

	out, err := printer.MergeRound(r, p.set.WorkDir, p.set.OutputDir)
	if err != nil {
		return p.handle(ctx, rep, r.Label, "", err, StepMerge)
	}
	rep.Merged = append(rep.Merged, out)
	p.deps.Metrics.RoundMerged()
	p.record(ctx, model.PrintRecord{RunID: rep.RunID, Round: r.Label, GroupKey: r.Label, Path: out, Status: model.PrintStatusMerged})

	if p.set.Publish {
		remote, err := p.deps.Publisher.Publish(ctx, out)
		if err != nil {
			return p.handle(ctx, rep, r.Label, "", err, StepPublish)
		}
		rep.Published = append(rep.Published, remote)
		log.Info("pipeline: round published", zap.String("remote", remote))
	}
	return nil
}

// prepare groups locs, drops noise and empty groups, colors the rest in
// grouper order and then orders them by position.
func (p *Pipeline) prepare(ctx context.Context, rep *Report, locs []model.Location) ([]model.Group, error) {
	if len(locs) == 0 {
		return nil, &model.DataError{Reason: "no locations in scope"}
	}
	groups, err := p.deps.Grouper.Group(ctx, locs)
	if err != nil {
		return nil, err
	}

	valid := make([]model.Group, 0, len(groups))
	for _, g := range grouping.WithoutNoise(groups) {
		if err := g.Validate(); err != nil {
			if err := p.handle(ctx, rep, "", g.Key, err, StepGroup); err != nil {
				return nil, err
			}
			continue
		}
		valid = append(valid, g)
	}
	palette.Assign(valid, p.deps.Palette, p.set.OutlineOffset)
	grouping.SortByPosition(valid)
	return valid, nil
}

// handle records a non-fatal failure and returns nil, or returns the error
// that must abort the run.
func (p *Pipeline) handle(ctx context.Context, rep *Report, round, group string, err error, fallback string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if model.IsFatal(err) {
		return err
	}
	f := failureOf(round, group, err, fallback)
	rep.Failures = append(rep.Failures, f)
	p.deps.Metrics.GroupFailed(f.Step)
	zap.L().Error("pipeline: group failed",
		zap.String("round", round),
		zap.String("group", group),
		zap.String("step", f.Step),
		zap.Error(f.Err),
	)
	return nil
}

func (p *Pipeline) newReport() *Report {
	return &Report{RunID: uuid.New().String()}
}

// record appends to the print log. The log is an audit trail, so a write
// failure is only logged, and a cancelled run still records what it did.
func (p *Pipeline) record(ctx context.Context, rec model.PrintRecord) {
	rec.CreatedAt = p.now().UTC()
	if err := p.deps.Store.RecordPrint(context.WithoutCancel(ctx), rec); err != nil {
		zap.L().Warn("pipeline: record print failed", zap.String("path", rec.Path), zap.Error(err))
	}
}
