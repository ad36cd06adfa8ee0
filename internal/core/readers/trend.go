package readers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/logging"
	"github.com/klauspost/compress/zip"
	"github.com/xuri/excelize/v2"
)

// Bundle member names, matched case-insensitively.
const (
	memberAssets   = "assets.json"
	memberMetadata = "metadata.json"
	memberChart    = "chartdata.xlsx"
)

// chartHeaderRows is the number of header rows above the samples.
const chartHeaderRows = 2

// trendSchema names the trend properties the mapper reads.
var trendSchema = core.PropertySchema{
	SignalKey:      "Name",
	UnitKey:        "Unit",
	DescriptionKey: "Type",
}

func init() {
	core.Register(core.FormatDefinition{
		Info: core.FormatInfo{
			Key:       "trend",
			Label:     "InsightCM trend export",
			Extension: ".zip",
		},
		NewReader: func(opts core.ReaderOptions) core.FormatReader {
			return NewTrendReader(opts.SaveFiles)
		},
	})
}

// TrendReader reads InsightCM trend exports: a zip bundle holding the asset
// document, the trend metadata document and a chart spreadsheet.
type TrendReader struct {
	saveFiles bool
}

// NewTrendReader returns a TrendReader. When saveFiles is set, bundles are
// extracted to a directory named after the archive, next to it, and kept.
// Otherwise a temporary directory is used and removed after reading.
func NewTrendReader(saveFiles bool) *TrendReader {
	return &TrendReader{saveFiles: saveFiles}
}

// Read extracts the bundle at path and returns its single trend descriptor.
func (r *TrendReader) Read(ctx context.Context, path string) ([]core.RawChannelDescriptor, error) {
	log := logging.WithFields(ctx, "artifact", path)

	dir, cleanup, err := r.workDir(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	members, err := extract(path, dir)
	if err != nil {
		return nil, fmt.Errorf("extract bundle: %w", err)
	}
	log.Debug("bundle extracted", "dir", dir, "members", len(members))

	assetsPath, err := findMember(members, memberAssets)
	if err != nil {
		return nil, err
	}
	metadataPath, err := findMember(members, memberMetadata)
	if err != nil {
		return nil, err
	}
	chartPath, err := findMember(members, memberChart)
	if err != nil {
		return nil, err
	}

	trendID, err := readTrendID(metadataPath)
	if err != nil {
		return nil, err
	}
	asset, props, err := readAsset(assetsPath, trendID)
	if err != nil {
		return nil, err
	}

	points, dropped, err := readChart(chartPath)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Warn("dropped unparsable chart rows", "dropped", dropped, "kept", len(points))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no valid datapoints in %s", core.ErrNoData, filepath.Base(chartPath))
	}

	return []core.RawChannelDescriptor{{
		Artifact:   path,
		Channel:    trendID,
		Kind:       core.KindTrend,
		Properties: props,
		Asset:      asset,
		Schema:     trendSchema,
		Points:     points,
	}}, nil
}

// workDir returns the extraction directory for path and the function that
// releases it.
func (r *TrendReader) workDir(path string) (string, func(), error) {
	base := filepath.Dir(path)
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	if r.saveFiles {
		dir := filepath.Join(base, stem)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create extraction directory: %w", err)
		}
		return dir, func() {}, nil
	}

	dir, err := os.MkdirTemp(base, stem+"-")
	if err != nil {
		return "", nil, fmt.Errorf("create temporary directory: %w", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

// extract writes every file member of the archive below dir and returns
// their paths.
func extract(path, dir string) ([]string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, filepath.Clean(dir)+string(os.PathSeparator)) {
			return nil, fmt.Errorf("member %q escapes the extraction directory", f.Name)
		}
		if err := extractFile(f, target); err != nil {
			return nil, fmt.Errorf("member %s: %w", f.Name, err)
		}
		out = append(out, target)
	}
	return out, nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func findMember(paths []string, name string) (string, error) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Base(p), name) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: bundle has no %s", core.ErrMissingProperty, name)
}

func readJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := json.NewDecoder(skipBOM(f))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}

type trendMetadata struct {
	Instructions []struct {
		Props map[string]any `json:"Props"`
	} `json:"Instructions"`
}

// readTrendID returns the TrendPointId of the first instruction of the
// first metadata entry.
func readTrendID(path string) (string, error) {
	var docs []trendMetadata
	if err := readJSON(path, &docs); err != nil {
		return "", err
	}
	if len(docs) == 0 || len(docs[0].Instructions) == 0 {
		return "", fmt.Errorf("%w: TrendPointId in %s", core.ErrMissingProperty, filepath.Base(path))
	}
	id := core.ValueFromJSON(docs[0].Instructions[0].Props["TrendPointId"])
	if !id.Truthy() {
		return "", fmt.Errorf("%w: TrendPointId in %s", core.ErrMissingProperty, filepath.Base(path))
	}
	return id.String(), nil
}

type trendAsset struct {
	ID         any              `json:"Id"`
	FullName   string           `json:"FullName"`
	Properties map[string]any   `json:"Properties"`
	Metrics    []map[string]any `json:"Metrics"`
}

// readAsset returns the owning asset of the trend and its property bag with
// the matching metric merged in.
func readAsset(path, trendID string) (core.AssetRef, core.Properties, error) {
	var assets []trendAsset
	if err := readJSON(path, &assets); err != nil {
		return core.AssetRef{}, nil, err
	}
	if len(assets) == 0 || assets[0].ID == nil || assets[0].FullName == "" {
		return core.AssetRef{}, nil, fmt.Errorf("%w: asset Id or FullName in %s", core.ErrMissingProperty, filepath.Base(path))
	}
	a := assets[0]

	props := make(core.Properties, len(a.Properties))
	for k, v := range a.Properties {
		props[k] = core.ValueFromJSON(v)
	}

	if len(a.Metrics) > 0 {
		var metric map[string]any
		for _, m := range a.Metrics {
			if core.ValueFromJSON(m["Id"]).String() == trendID {
				metric = m
				break
			}
		}
		if metric == nil {
			return core.AssetRef{}, nil, fmt.Errorf("%w: no metric for trend %s on asset %s",
				core.ErrMissingProperty, trendID, a.FullName)
		}
		for k, v := range metric {
			props[k] = core.ValueFromJSON(v)
		}
	}

	return core.AssetRef{
		ExternalUID: core.ValueFromJSON(a.ID).String(),
		DisplayName: a.FullName,
	}, props, nil
}

// readChart returns the (timestamp, value) samples of the first sheet and
// the number of rows dropped because they could not be parsed.
func readChart(path string) ([]core.Datapoint, int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, 0, fmt.Errorf("%s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}

	var points []core.Datapoint
	dropped := 0
	for i, row := range rows {
		if i < chartHeaderRows {
			continue
		}
		if len(row) < 2 {
			dropped++
			continue
		}
		ts, err := chartTimestamp(row[0])
		if err != nil {
			dropped++
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			dropped++
			continue
		}
		points = append(points, core.Datapoint{TimestampMillis: ts, Value: v})
	}
	return points, dropped, nil
}

// chartTimestamp converts a chart time cell to milliseconds since the Unix
// epoch. Cells hold either an Excel serial date or a date string.
func chartTimestamp(cell string) (int64, error) {
	cell = strings.TrimSpace(cell)
	if serial, err := strconv.ParseFloat(cell, 64); err == nil {
		return core.ToMillis(core.ExcelSerialToTime(serial)), nil
	}
	t, err := core.ParseTimestamp(cell)
	if err != nil {
		return 0, err
	}
	return core.ToMillis(t), nil
}
