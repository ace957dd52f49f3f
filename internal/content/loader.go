package content

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/zapponejosh/natal-api/internal/astro"
)

// Spreadsheet names, in order of preference.
var (
	placementFiles = []string{"planets in signs.xlsx", "Planets In Signs.xlsx"}
	sentenceFiles  = []string{"degree sentances.xlsx", "degree sentences.xlsx", "Degree Sentences.xlsx"}
	insideFiles    = []string{"inside_degrees_final.xlsx", "Inside_Degrees_Final.xlsx", "inside degrees final.xlsx"}
)

// contentsMarker is an export artefact at the top of long degree texts.
const contentsMarker = "~ Contents ~"

var bodyNameFixes = map[string]astro.Body{
	"Sun / Earth": astro.Sun,
}

// Load builds an Index from the spreadsheets in dir:
//
//   - planets in signs.xlsx: sheet 1 has signs as rows and bodies as
//     columns; sheet 2 has "House N" rows and bodies as columns.
//   - degree sentences.xlsx: one column per sign, data row n is degree n.
//   - inside_degrees_final.xlsx: rows of sign, degree, header, body.
//
// A missing file is logged and skipped. A file that exists but cannot be
// read is reported in the returned error; the Index still holds whatever
// else loaded.
func Load(dir string, opts Options, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data := Data{
		Signs:   make(map[SignKey]string),
		Houses:  make(map[HouseKey]string),
		Degrees: make(map[astro.DegreeRef]DegreeContent),
	}

	var errs []error
	sources := []struct {
		kind  string
		names []string
		load  func(*excelize.File, *Data) (int, error)
	}{
		{"placements", placementFiles, loadPlacements},
		{"degree sentences", sentenceFiles, loadSentences},
		{"degree descriptions", insideFiles, loadDescriptions},
	}

	for _, src := range sources {
		path := findFile(dir, src.names)
		if path == "" {
			logger.Warn("content file not found",
				slog.String("kind", src.kind),
				slog.String("dir", dir),
				slog.Any("tried", src.names),
			)
			continue
		}

		n, err := loadFile(path, &data, src.load)
		if err != nil {
			logger.Error("content file failed to load",
				slog.String("kind", src.kind),
				slog.String("path", path),
				slog.Any("error", err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
			continue
		}

		logger.Info("content loaded",
			slog.String("kind", src.kind),
			slog.String("path", path),
			slog.Int("entries", n),
		)
	}

	return New(data, opts), errors.Join(errs...)
}

func findFile(dir string, names []string) string {
	for _, name := range names {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

func loadFile(path string, data *Data, load func(*excelize.File, *Data) (int, error)) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	return load(f, data)
}

// loadPlacements reads body-in-sign text from the first sheet and
// body-in-house text from the second.
func loadPlacements(f *excelize.File, data *Data) (int, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, errors.New("workbook has no sheets")
	}

	count := 0
	err := eachMatrixCell(f, sheets[0], func(rowLabel string, body astro.Body, text string) {
		sign, err := astro.ParseSign(rowLabel)
		if err != nil {
			return
		}
		data.Signs[SignKey{Body: body, Sign: sign}] = text
		count++
	})
	if err != nil {
		return count, err
	}

	if len(sheets) < 2 {
		return count, nil
	}

	err = eachMatrixCell(f, sheets[1], func(rowLabel string, body astro.Body, text string) {
		house, ok := parseHouseLabel(rowLabel)
		if !ok {
			return
		}
		data.Houses[HouseKey{Body: body, House: house}] = text
		count++
	})
	return count, err
}

// eachMatrixCell walks a sheet whose first row names bodies and whose first
// column labels rows, calling fn for every non-empty cell.
func eachMatrixCell(f *excelize.File, sheet string, fn func(rowLabel string, body astro.Body, text string)) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("get rows for sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}

	header := rows[0]
	bodies := make([]astro.Body, len(header))
	for i := 1; i < len(header); i++ {
		bodies[i] = cleanBodyName(header[i])
	}

	for _, row := range rows[1:] {
		label := cell(row, 0)
		if label == "" {
			continue
		}
		for col := 1; col < len(header); col++ {
			text := cleanText(cell(row, col))
			if text == "" || !bodies[col].IsValid() {
				continue
			}
			fn(label, bodies[col], text)
		}
	}
	return nil
}

// loadSentences reads the short degree sentences: each sign column holds
// thirty rows under its header.
func loadSentences(f *excelize.File, data *Data) (int, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	count := 0
	for col, name := range rows[0] {
		sign, err := astro.ParseSign(titleCase(name))
		if err != nil {
			continue
		}
		for degree := 1; degree < len(rows) && degree <= 30; degree++ {
			ref := astro.DegreeRef{Sign: sign, Degree: degree}
			c := data.Degrees[ref]
			c.Sentence = cleanText(cell(rows[degree], col))
			data.Degrees[ref] = c
			count++
		}
	}
	return count, nil
}

// loadDescriptions reads the long degree texts, one row per degree.
func loadDescriptions(f *excelize.File, data *Data) (int, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}

	count := 0
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		sign, err := astro.ParseSign(titleCase(cell(row, 0)))
		if err != nil {
			continue
		}
		deg, err := strconv.ParseFloat(cell(row, 1), 64)
		if err != nil || !astro.ValidDegree(int(deg)) {
			continue
		}

		ref := astro.DegreeRef{Sign: sign, Degree: int(deg)}
		c := data.Degrees[ref]
		c.Header = cleanText(cell(row, 2))
		c.Body = cleanText(strings.ReplaceAll(cell(row, 3), contentsMarker, ""))
		data.Degrees[ref] = c
		count++
	}
	return count, nil
}

// parseHouseLabel turns "House 7" (any case, "7.0" tolerated) into 7.
func parseHouseLabel(label string) (int, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(strings.ToLower(label), "house", ""))
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	n := int(f)
	if n < 1 || n > 12 {
		return 0, false
	}
	return n, true
}

func cleanBodyName(raw string) astro.Body {
	name := titleCase(raw)
	if fixed, ok := bodyNameFixes[name]; ok {
		return fixed
	}
	return astro.Body(name)
}

// titleCase builds a fresh Caser each call; Casers are not safe for
// concurrent use.
func titleCase(s string) string {
	return cases.Title(language.English).String(strings.TrimSpace(s))
}

// cleanText trims a cell and treats a spreadsheet "nan" as empty.
func cleanText(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "nan") {
		return ""
	}
	return s
}

// cell returns row[i], or "" when the row is shorter.
func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
