package webmap

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"

	"github.com/avery-whitehead/StreetMapsDownload/internal/model"
)

// LoadTemplate reads a point template. The file must define mapOptions and
// exportOptions. Any failure is a ConfigurationError.
func LoadTemplate(path string) (*WebMap, error) {
	return load(path)
}

// LoadClusteredTemplate reads a marker template. Besides the point template
// fields it needs a feature-collection operational layer whose first
// feature layer is the prototype for every group's markers.
func LoadClusteredTemplate(path string) (*WebMap, error) {
	w, err := load(path)
	if err != nil {
		return nil, err
	}
	if w.markerLayer() < 0 {
		return nil, &model.ConfigurationError{
			Item: path,
			Err:  eris.New("webmap: template has no feature collection layer"),
		}
	}
	return w, nil
}

func load(path string) (*WebMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: eris.Wrap(err, "webmap: read template")}
	}
	w, err := Parse(data)
	if err != nil {
		return nil, &model.ConfigurationError{Item: path, Err: err}
	}
	return w, nil
}

// Parse decodes and validates template JSON.
func Parse(data []byte) (*WebMap, error) {
	var w WebMap
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&w); err != nil {
		return nil, eris.Wrap(err, "webmap: decode template")
	}
	if w.MapOptions == nil {
		return nil, eris.New("webmap: template missing mapOptions")
	}
	if w.ExportOptions == nil {
		return nil, eris.New("webmap: template missing exportOptions")
	}
	return &w, nil
}
