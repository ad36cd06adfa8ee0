package readers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const assetsDoc = `[{
	"Id": 4711,
	"FullName": "Plant A Pump 1",
	"Properties": {"Location": "Hall 2", "Rated": 1500},
	"Metrics": [
		{"Id": 12, "Name": "Overall", "Unit": "mm/s", "Type": "Velocity RMS"},
		{"Id": 12, "Name": "Duplicate"}
	]
}]`

const metadataDoc = `[{"Instructions": [{"Props": {"TrendPointId": 12}}]}]`

// chartRow is one spreadsheet row; nil cells are left blank.
type chartRow []any

func writeChart(t *testing.T, rows []chartRow) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for i, row := range rows {
		for j, cell := range row {
			if cell == nil {
				continue
			}
			name, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, name, cell))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func defaultChart(t *testing.T) []byte {
	return writeChart(t, []chartRow{
		{"Trend", "Plant A Pump 1"},
		{"Time", "Value"},
		{time.Date(2019, 3, 4, 10, 30, 0, 0, time.UTC), 1.25},
		{"2019-03-04 10:31:00", "2.5"},
		{"2019-03-04 10:32:00", "n/a"},
		{"garbage", 3.0},
	})
}

func writeBundle(t *testing.T, members map[string][]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trend-export.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func TestTrendReader_Read(t *testing.T) {
	path := writeBundle(t, map[string][]byte{
		"Assets.json":         []byte(assetsDoc),
		"export/MetaData.JSON": []byte(metadataDoc),
		"ChartData.xlsx":      defaultChart(t),
	})

	descs, err := NewTrendReader(false).Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, descs, 1)

	d := descs[0]
	assert.Equal(t, core.KindTrend, d.Kind)
	assert.Equal(t, "12", d.Channel)
	assert.Equal(t, core.AssetRef{ExternalUID: "4711", DisplayName: "Plant A Pump 1"}, d.Asset)
	assert.Equal(t, "Overall", d.Properties.Text("Name"))
	assert.Equal(t, "mm/s", d.Properties.Text("Unit"))
	assert.Equal(t, "Hall 2", d.Properties.Text("Location"))
	assert.Equal(t, "1500", d.Properties.Text("Rated"))

	require.Len(t, d.Points, 2, "unparsable rows are dropped")
	assert.Equal(t, time.Date(2019, 3, 4, 10, 30, 0, 0, time.UTC).UnixMilli(), d.Points[0].TimestampMillis)
	assert.Equal(t, 1.25, d.Points[0].Value)
	assert.Equal(t, time.Date(2019, 3, 4, 10, 31, 0, 0, time.UTC).UnixMilli(), d.Points[1].TimestampMillis)
	assert.Equal(t, 2.5, d.Points[1].Value)

	m, err := core.Map(d)
	require.NoError(t, err)
	assert.Equal(t, "Plant_A_Pump_1_Overall_(mm/s)", m.TimeSeries.Name)
	assert.Equal(t, "Velocity RMS", m.TimeSeries.Description)
}

func TestTrendReader_RemovesTemporaryDirectory(t *testing.T) {
	path := writeBundle(t, map[string][]byte{
		"assets.json":    []byte(assetsDoc),
		"metadata.json":  []byte(metadataDoc),
		"chartdata.xlsx": defaultChart(t),
	})

	_, err := NewTrendReader(false).Read(context.Background(), path)
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "trend-export.zip", entries[0].Name())
}

func TestTrendReader_SaveFiles(t *testing.T) {
	path := writeBundle(t, map[string][]byte{
		"assets.json":    []byte(assetsDoc),
		"metadata.json":  []byte(metadataDoc),
		"chartdata.xlsx": defaultChart(t),
	})

	_, err := NewTrendReader(true).Read(context.Background(), path)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(filepath.Dir(path), "trend-export", "assets.json"))
	assert.NoError(t, err)
}

func TestTrendReader_Failures(t *testing.T) {
	tests := []struct {
		name    string
		members map[string][]byte
		wantErr error
	}{
		{
			name: "missing chart",
			members: map[string][]byte{
				"assets.json":   []byte(assetsDoc),
				"metadata.json": []byte(metadataDoc),
			},
			wantErr: core.ErrMissingProperty,
		},
		{
			name: "missing trend id",
			members: map[string][]byte{
				"assets.json":    []byte(assetsDoc),
				"metadata.json":  []byte(`[{"Instructions": [{"Props": {}}]}]`),
				"chartdata.xlsx": nil,
			},
			wantErr: core.ErrMissingProperty,
		},
		{
			name: "unknown metric",
			members: map[string][]byte{
				"assets.json":    []byte(assetsDoc),
				"metadata.json":  []byte(`[{"Instructions": [{"Props": {"TrendPointId": 99}}]}]`),
				"chartdata.xlsx": nil,
			},
			wantErr: core.ErrMissingProperty,
		},
		{
			name: "no valid rows",
			members: map[string][]byte{
				"assets.json":   []byte(assetsDoc),
				"metadata.json": []byte(metadataDoc),
			},
			wantErr: core.ErrNoData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members := tt.members
			if _, ok := members["chartdata.xlsx"]; ok {
				members["chartdata.xlsx"] = defaultChart(t)
			}
			if tt.wantErr == core.ErrNoData {
				members["chartdata.xlsx"] = writeChart(t, []chartRow{{"h"}, {"h"}, {"bad", "bad"}})
			}
			_, err := NewTrendReader(false).Read(context.Background(), writeBundle(t, members))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestChartTimestamp(t *testing.T) {
	ms, err := chartTimestamp("43528.4375")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 4, 10, 30, 0, 0, time.UTC).UnixMilli(), ms)

	ms, err = chartTimestamp("2019-03-04T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2019, 3, 4, 10, 30, 0, 0, time.UTC).UnixMilli(), ms)

	_, err = chartTimestamp("yesterday")
	assert.Error(t, err)
}
