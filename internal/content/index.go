// Package content attaches descriptive text and imagery to chart placements.
//
// An Index is built once by Load and never mutated afterwards, so it can be
// shared by concurrent requests. Lookup misses are not errors: they yield
// empty text and the placeholder image.
package content

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// DefaultPlaceholderURL is used when a degree has no image asset.
const DefaultPlaceholderURL = "https://via.placeholder.com/400x600?text=No+Image"

// ErrInvalidDegree is returned for a sign/degree pair outside the zodiac.
var ErrInvalidDegree = errors.New("invalid sign or degree")

// SignKey addresses body-in-sign text.
type SignKey struct {
	Body astro.Body
	Sign astro.Sign
}

// HouseKey addresses body-in-house text.
type HouseKey struct {
	Body  astro.Body
	House int
}

// DegreeContent is the text shown for one zodiac degree.
type DegreeContent struct {
	Sentence string `json:"sentence"`
	Header   string `json:"header"`
	Body     string `json:"body"`
}

// Data is the raw material of an Index.
type Data struct {
	Signs   map[SignKey]string
	Houses  map[HouseKey]string
	Degrees map[astro.DegreeRef]DegreeContent
}

// MissRecorder is told about every lookup that fell back to a placeholder.
// kind is one of "sign", "house", "degree" or "image".
type MissRecorder interface {
	ContentMiss(kind string)
}

// Options controls how image URLs are resolved.
type Options struct {
	// AssetsDir is the filesystem root holding degree_images/.
	AssetsDir string

	// StaticURLPrefix is the URL path AssetsDir is served under.
	StaticURLPrefix string

	// PlaceholderURL replaces images that don't exist.
	PlaceholderURL string

	Recorder MissRecorder
}

func (o Options) withDefaults() Options {
	if o.StaticURLPrefix == "" {
		o.StaticURLPrefix = "/static"
	}
	if o.PlaceholderURL == "" {
		o.PlaceholderURL = DefaultPlaceholderURL
	}
	return o
}

// Index is an immutable content lookup table.
type Index struct {
	signs   map[SignKey]string
	houses  map[HouseKey]string
	degrees map[astro.DegreeRef]DegreeContent
	opts    Options
}

// New builds an Index from data. The maps are copied.
func New(data Data, opts Options) *Index {
	ix := &Index{
		signs:   make(map[SignKey]string, len(data.Signs)),
		houses:  make(map[HouseKey]string, len(data.Houses)),
		degrees: make(map[astro.DegreeRef]DegreeContent, len(data.Degrees)),
		opts:    opts.withDefaults(),
	}
	for k, v := range data.Signs {
		ix.signs[k] = v
	}
	for k, v := range data.Houses {
		ix.houses[k] = v
	}
	for k, v := range data.Degrees {
		ix.degrees[k] = v
	}
	return ix
}

// Index returns ix itself, so a plain Index can be used wherever a
// Provider is expected.
func (ix *Index) Index() *Index {
	return ix
}

// Provider hands out the current Index.
type Provider interface {
	Index() *Index
}

// Stats reports how many entries the index holds.
type Stats struct {
	Signs   int `json:"signs"`
	Houses  int `json:"houses"`
	Degrees int `json:"degrees"`
}

// Stats returns entry counts.
func (ix *Index) Stats() Stats {
	return Stats{Signs: len(ix.signs), Houses: len(ix.houses), Degrees: len(ix.degrees)}
}

// SignText returns the body-in-sign text, or "" on a miss.
func (ix *Index) SignText(body astro.Body, sign astro.Sign) string {
	text, ok := ix.signs[SignKey{Body: body, Sign: sign}]
	if !ok {
		ix.miss("sign")
	}
	return text
}

// HouseText returns the body-in-house text, or "" on a miss.
func (ix *Index) HouseText(body astro.Body, house int) string {
	text, ok := ix.houses[HouseKey{Body: body, House: house}]
	if !ok {
		ix.miss("house")
	}
	return text
}

// Degree returns the content for a zodiac degree, or empty fields on a miss.
func (ix *Index) Degree(ref astro.DegreeRef) DegreeContent {
	c, ok := ix.degrees[ref]
	if !ok {
		ix.miss("degree")
	}
	return c
}

// ImageURL returns the URL of the degree's image, or the placeholder when
// <assets>/degree_images/<sign>/<sign><degree>.jpg does not exist.
func (ix *Index) ImageURL(ref astro.DegreeRef) string {
	sign := ref.Sign.Lower()
	rel := path.Join("degree_images", sign, fmt.Sprintf("%s%d.jpg", sign, ref.Degree))

	if ix.opts.AssetsDir != "" {
		info, err := os.Stat(filepath.Join(ix.opts.AssetsDir, filepath.FromSlash(rel)))
		if err == nil && !info.IsDir() {
			return path.Join(ix.opts.StaticURLPrefix, rel)
		}
	}

	ix.miss("image")
	return ix.opts.PlaceholderURL
}

// Placement is a chart row with its descriptive content attached.
type Placement struct {
	astro.Placement
	SignText   string        `json:"sign_text"`
	HouseText  string        `json:"house_text"`
	DegreeText DegreeContent `json:"degree_content"`
	ImageURL   string        `json:"image_url"`
}

// Enrich attaches sign text, house text, degree content and image URL.
func (ix *Index) Enrich(p astro.Placement) Placement {
	ref := astro.DegreeRef{Sign: p.Sign, Degree: p.Degree}
	return Placement{
		Placement:  p,
		SignText:   ix.SignText(p.Body, p.Sign),
		HouseText:  ix.HouseText(p.Body, p.House),
		DegreeText: ix.Degree(ref),
		ImageURL:   ix.ImageURL(ref),
	}
}

// EnrichChart enriches every placement, preserving order.
func (ix *Index) EnrichChart(placements []astro.Placement) []Placement {
	out := make([]Placement, len(placements))
	for i, p := range placements {
		out[i] = ix.Enrich(p)
	}
	return out
}

// DegreeData bundles everything shown for a single zodiac degree.
type DegreeData struct {
	Sign      astro.Sign      `json:"sign"`
	Degree    int             `json:"degree"`
	Content   DegreeContent   `json:"content"`
	ImageURL  string          `json:"image_url"`
	SymbolURL *string         `json:"symbol_url"`
	Next      astro.DegreeRef `json:"next"`
	Prev      astro.DegreeRef `json:"prev"`
}

// DegreeData returns content, image and neighbouring degrees for ref.
func (ix *Index) DegreeData(ref astro.DegreeRef) (DegreeData, error) {
	if !ref.Sign.IsValid() || !astro.ValidDegree(ref.Degree) {
		return DegreeData{}, fmt.Errorf("%w: %s %d", ErrInvalidDegree, ref.Sign, ref.Degree)
	}

	return DegreeData{
		Sign:     ref.Sign,
		Degree:   ref.Degree,
		Content:  ix.Degree(ref),
		ImageURL: ix.ImageURL(ref),
		Next:     ref.Next(),
		Prev:     ref.Prev(),
	}, nil
}

func (ix *Index) miss(kind string) {
	if ix.opts.Recorder != nil {
		ix.opts.Recorder.ContentMiss(kind)
	}
}
