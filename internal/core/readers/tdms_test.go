package readers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/JonMunkholm/cmingest/internal/core"
	"github.com/JonMunkholm/cmingest/internal/tdms"
	"github.com/JonMunkholm/cmingest/internal/tdms/tdmstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recorded = time.Date(2019, time.March, 4, 10, 30, 0, 0, time.UTC)

func writeTDMS(t *testing.T, objs []tdmstest.Object) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "recording.tdms")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	require.NoError(t, tdmstest.NewWriter(f).WriteSegment(objs, tdmstest.SegmentOptions{NewObjectList: true}))
	return path
}

func rootObject() tdmstest.Object {
	return tdmstest.Object{Properties: []tdmstest.Property{
		{Name: "NI_CM_AssetNodeId", Value: "uid-7"},
		{Name: "NI_CM_AssetName", Value: "Pump 1"},
	}}
}

func TestTDMSReader_ClassifiesChannels(t *testing.T) {
	path := writeTDMS(t, []tdmstest.Object{
		rootObject(),
		{Group: "Waveforms"},
		{
			Group: "Waveforms", Channel: "Accel",
			Properties: []tdmstest.Property{
				{Name: "name", Value: "Accel X"},
				{Name: "unit_string", Value: "g"},
				{Name: "wf_start_time", Value: recorded},
				{Name: "wf_increment", Value: 0.5},
			},
			DataType: tdms.TypeFloat32,
			Data:     []any{float32(0), float32(1.5), float32(2.5)},
		},
		{
			Group: "Static", Channel: "Speed",
			Properties: []tdmstest.Property{
				{Name: "Value", Value: "1480"},
				{Name: "DateTime", Value: recorded},
				{Name: "unit_string", Value: "rpm"},
			},
		},
		{Group: "Static", Channel: "Idle", DataType: tdms.TypeFloat64, Data: []any{0.0, 0.0}},
		{
			Group: "Static", Channel: "ZeroValue",
			Properties: []tdmstest.Property{
				{Name: "Value", Value: 0.0},
				{Name: "DateTime", Value: recorded},
			},
		},
	})

	descs, err := NewTDMSReader().Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, descs, 4)

	wave := descs[0]
	assert.Equal(t, core.KindWaveform, wave.Kind)
	assert.Equal(t, "/'Waveforms'/'Accel'", wave.Path)
	assert.Equal(t, core.AssetRef{ExternalUID: "uid-7", DisplayName: "Pump 1"}, wave.Asset)
	assert.Equal(t, "Waveforms", wave.Properties.Text(core.PropGroup))
	assert.Equal(t, "Accel", wave.Properties.Text(core.PropChannel))
	assert.Equal(t, "Pump 1", wave.Properties.Text("NI_CM_AssetName"))
	require.NotNil(t, wave.Waveform)
	assert.Equal(t, core.ElemFloat32, wave.Waveform.ValueType)
	assert.Equal(t, core.ElemTimestampNs, wave.Waveform.TimeType)
	assert.Equal(t, 3, wave.Waveform.Len())
	base := recorded.UnixNano()
	assert.Equal(t, []int64{base, base + 500_000_000, base + 1_000_000_000}, wave.Waveform.Times)

	assert.Equal(t, core.KindStatic, descs[1].Kind)
	assert.Equal(t, "Speed", descs[1].Channel)
	assert.Equal(t, core.KindEmpty, descs[2].Kind, "all-zero buffer")
	assert.Equal(t, core.KindEmpty, descs[3].Kind, "falsy Value property")
}

func TestTDMSReader_ChannelPropertiesWin(t *testing.T) {
	path := writeTDMS(t, []tdmstest.Object{
		rootObject(),
		{
			Group: "g", Channel: "c",
			Properties: []tdmstest.Property{
				{Name: "NI_CM_AssetName", Value: "Pump 2"},
				{Name: "Value", Value: 3.5},
				{Name: "DateTime", Value: recorded},
			},
		},
	})

	descs, err := NewTDMSReader().Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "Pump 2", descs[0].Asset.DisplayName)
	assert.Equal(t, "uid-7", descs[0].Asset.ExternalUID)
}

func TestTDMSReader_SkipsWaveformWithoutIncrement(t *testing.T) {
	path := writeTDMS(t, []tdmstest.Object{
		rootObject(),
		{
			Group: "g", Channel: "untimed",
			Properties: []tdmstest.Property{{Name: "wf_start_time", Value: recorded}},
			DataType:   tdms.TypeInt32,
			Data:       []any{1, 2, 3},
		},
		{
			Group: "g", Channel: "timed",
			Properties: []tdmstest.Property{
				{Name: "wf_start_time", Value: recorded},
				{Name: "wf_increment", Value: 0.1},
			},
			DataType: tdms.TypeInt32,
			Data:     []any{1, 2, 3},
		},
	})

	descs, err := NewTDMSReader().Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, "timed", descs[0].Channel)
	assert.Equal(t, core.ElemInt32, descs[0].Waveform.ValueType)
}

func TestTDMSReader_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tdms")
	require.NoError(t, os.WriteFile(path, []byte("not a tdms file at all, just text"), 0o644))

	_, err := NewTDMSReader().Read(context.Background(), path)
	assert.ErrorIs(t, err, tdms.ErrNotTDMS)
}

func TestRegisteredFormats(t *testing.T) {
	def, ok := core.Get("tdms")
	require.True(t, ok)
	assert.Equal(t, ".tdms", def.Info.Extension)

	def, ok = core.Get("trend")
	require.True(t, ok)
	assert.Equal(t, ".zip", def.Info.Extension)
	assert.IsType(t, &TrendReader{}, def.NewReader(core.ReaderOptions{SaveFiles: true}))
}
