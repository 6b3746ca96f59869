package pipeline

import (
	"context"
	"image"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/avery-whitehead/StreetMapsDownload/internal/compose"
	"github.com/avery-whitehead/StreetMapsDownload/internal/layout"
	"github.com/avery-whitehead/StreetMapsDownload/internal/mapclient"
	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
	"github.com/avery-whitehead/StreetMapsDownload/internal/printer"
)

// page is one artifact to render.
type page struct {
	kind  layout.PageKind
	round string
	key   string
	label []string
	path  string
	build func(slots []layout.Slot) ([]mapclient.Request, error)
}

// printPage renders pg and records the outcome in the report, the print
// log and the page metrics.
func (p *Pipeline) printPage(ctx context.Context, rep *Report, pg page) error {
	notes, err := p.render(ctx, pg)

	rec := model.PrintRecord{
		RunID:    rep.RunID,
		Round:    pg.round,
		GroupKey: pg.key,
		Path:     pg.path,
		Status:   model.PrintStatusComplete,
	}
	switch {
	case err != nil:
		rec.Status = model.PrintStatusFailed
		rec.Detail = err.Error()
	case len(notes) > 0:
		rec.Status = model.PrintStatusIncomplete
		rec.Detail = strings.Join(notes, "; ")
		rep.Incomplete = append(rep.Incomplete, pg.path)
	}
	if err == nil {
		rep.Pages = append(rep.Pages, pg.path)
	}
	p.deps.Metrics.PageRendered(string(pg.kind), string(rec.Status))
	p.record(ctx, rec)
	return err
}

// render composes pg on a fresh template copy and saves it. It returns the
// notes of any slots marked incomplete.
func (p *Pipeline) render(ctx context.Context, pg page) ([]string, error) {
	log := zap.L().With(zap.String("page", string(pg.kind)), zap.String("group", pg.key))

	l, err := p.deps.Layouts.For(p.set.Provider, pg.kind)
	if err != nil {
		return nil, err
	}
	doc, err := compose.LoadTemplate(filepath.Join(p.set.AssetsDir, l.Template()))
	if err != nil {
		return nil, err
	}

	slots := l.Slots()
	reqs, err := pg.build(slots)
	if err != nil {
		return nil, atStep(StepRequest, err)
	}

	results := mapclient.FetchAll(ctx, p.deps.Client, reqs, p.set.FetchParallel)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, s := range slots {
		img, err := decode(results[i])
		if err != nil {
			if p.set.OnFailure == OnFailureFail {
				return nil, atStep(StepFetch, err)
			}
			log.Warn("pipeline: map unavailable, marking slot", zap.String("scale", s.Name()), zap.Error(err))
			if err := doc.MarkIncomplete(s.Bounds(), "scale "+s.Name()); err != nil {
				return nil, atStep(StepCompose, err)
			}
			continue
		}
		doc.Paste(img, s.Bounds())
	}

	if err := doc.Label(pg.label, l.LabelAnchor(), l.LabelSize()); err != nil {
		return nil, atStep(StepCompose, err)
	}
	for _, b := range l.MarkerBounds() {
		doc.Ring(b, l.RingWidth(), compose.DefaultAntialias)
	}
	if err := doc.Validate(); err != nil {
		return nil, atStep(StepCompose, withGroup(err, pg.key))
	}

	if err := printer.Save(doc.Image(), pg.path, p.set.DPI); err != nil {
		return nil, atStep(StepSave, err)
	}
	log.Debug("pipeline: page saved", zap.String("path", pg.path), zap.Int("incomplete", len(doc.Incomplete())))
	return doc.Incomplete(), nil
}

func decode(r mapclient.Result) (image.Image, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	return compose.DecodeImage(r.Data)
}

// withGroup fills in the group of a DataError raised without one.
func withGroup(err error, group string) error {
	if de, ok := err.(*model.DataError); ok && de.Group == "" {
		return &model.DataError{Group: group, Reason: de.Reason}
	}
	return err
}
