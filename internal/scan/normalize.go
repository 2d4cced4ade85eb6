package scan

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"github.com/dharsanguruparan/FitSpo/internal/model"
)

// Detector outputs disagree on field names. Keys are tried in order and the
// first usable value wins.
var (
	labelKeys      = []string{"name", "label", "category"}
	confidenceKeys = []string{"confidence", "score"}
	boxKeys        = []string{"bbox", "box"}
)

const (
	placeholderLabel = "item"
	shopSearchPrefix = "https://www.google.com/search?q="
)

// Normalize resolves every raw detection on a finished job. A failed job or a
// job without output yields an empty, non-nil slice.
func Normalize(job *model.ScanJob) []model.Detection {
	if job == nil || job.Status == model.JobFailed {
		return []model.Detection{}
	}
	raw := job.Objects()
	out := make([]model.Detection, 0, len(raw))
	for _, obj := range raw {
		out = append(out, NormalizeDetection(obj))
	}
	return out
}

// NormalizeDetection maps one alias-keyed detection to its canonical form.
func NormalizeDetection(obj model.RawDetection) model.Detection {
	d := model.Detection{Label: placeholderLabel, Box: []float64{}}
	for _, key := range labelKeys {
		if s, ok := stringField(obj, key); ok {
			d.Label = s
			break
		}
	}
	for _, key := range confidenceKeys {
		if f, ok := numberField(obj, key); ok {
			d.Confidence = f
			break
		}
	}
	for _, key := range boxKeys {
		if box, ok := boxField(obj, key); ok {
			d.Box = box
			break
		}
	}
	return d
}

// Items turns detections into outfit items with positional ids.
func Items(detections []model.Detection) []model.OutfitItem {
	items := make([]model.OutfitItem, 0, len(detections))
	for i, d := range detections {
		items = append(items, model.OutfitItem{
			ID:      "d" + strconv.Itoa(i),
			Label:   d.Label,
			Brand:   "",
			ShopURL: ShopURL(d.Label),
		})
	}
	return items
}

// ShopURL builds the web-search link for a label. Spaces are encoded as %20
// so the query survives both query and percent decoding.
func ShopURL(label string) string {
	return shopSearchPrefix + strings.ReplaceAll(url.QueryEscape(label), "+", "%20")
}

func stringField(obj model.RawDetection, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, strings.TrimSpace(s) != ""
}

func numberField(obj model.RawDetection, key string) (float64, bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func boxField(obj model.RawDetection, key string) ([]float64, bool) {
	raw, ok := obj[key]
	if !ok {
		return nil, false
	}
	var box []float64
	if err := json.Unmarshal(raw, &box); err != nil || box == nil {
		return nil, false
	}
	return box, true
}
