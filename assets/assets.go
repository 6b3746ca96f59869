// Package assets bundles the default ArcGIS web map templates.
package assets

import _ "embed"

// WebMap is the point template used for single-address maps.
//
//go:embed web_map.json
var WebMap []byte

// WebMapClustered is the marker template used for group and overview maps.
//
//go:embed web_map_clustered.json
var WebMapClustered []byte
