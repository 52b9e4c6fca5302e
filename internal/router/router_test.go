package router

import (
	"encoding/json"
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/stream"
)

type fakeEngine struct {
	calls      []string
	zoom       float64
	zoomStatus models.ZoomStatus
	maxZoom    float64
	changes    []stream.Change
	recordName string
	photoName  string
	stabilize  bool
	poi        image.Point
	gps        json.RawMessage
	misc       json.RawMessage
	photoErr   error
}

func (f *fakeEngine) SetZoom(level float64) error {
	f.calls = append(f.calls, "zoom")
	f.zoom = level
	return nil
}

func (f *fakeEngine) SetZoomStatus(status models.ZoomStatus) {
	f.calls = append(f.calls, "zoom_status")
	f.zoomStatus = status
}

func (f *fakeEngine) SetMaxZoom(maxZoom float64) error {
	f.calls = append(f.calls, "max_zoom")
	f.maxZoom = maxZoom
	return nil
}

func (f *fakeEngine) Reconfigure(change stream.Change) error {
	f.calls = append(f.calls, "reconfigure")
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeEngine) StartGCS() error { f.calls = append(f.calls, "start_gcs"); return nil }
func (f *fakeEngine) StopGCS()        { f.calls = append(f.calls, "stop_gcs") }

func (f *fakeEngine) StartRecording(name string) error {
	f.calls = append(f.calls, "record")
	f.recordName = name
	return nil
}

func (f *fakeEngine) StopRecording() error { f.calls = append(f.calls, "stop_recording"); return nil }

func (f *fakeEngine) TakePhoto(name string) error {
	f.calls = append(f.calls, "take_photo")
	f.photoName = name
	return f.photoErr
}

func (f *fakeEngine) SetStabilize(on bool)          { f.calls = append(f.calls, "stabilize"); f.stabilize = on }
func (f *fakeEngine) InitTracking(p image.Point)    { f.calls = append(f.calls, "track"); f.poi = p }
func (f *fakeEngine) StopTracking()                 { f.calls = append(f.calls, "stop_tracking") }
func (f *fakeEngine) SetGPSData(d json.RawMessage)  { f.calls = append(f.calls, "gps"); f.gps = d }
func (f *fakeEngine) SetMiscData(d json.RawMessage) { f.calls = append(f.calls, "misc"); f.misc = d }

func TestDispatchRoutesEveryCommand(t *testing.T) {
	eng := &fakeEngine{}
	r := New(eng)

	cmds := []models.Command{
		{Type: models.CommandZoom, Value: "2.5"},
		{Type: models.CommandZoom, Value: "in"},
		{Type: models.CommandMaxZoom, Value: "10"},
		{Type: models.CommandBitrate, Value: "3000"},
		{Type: models.CommandRecord, Value: "clip.ts"},
		{Type: models.CommandStopRecording},
		{Type: models.CommandTakePhoto},
		{Type: models.CommandStabilize, Value: "start"},
		{Type: models.CommandGCSHost, Value: "10.0.0.9:5700"},
		{Type: models.CommandGCSIP, Value: "10.0.0.8"},
		{Type: models.CommandGCSPort, Value: "5800"},
		{Type: models.CommandStartGCSStream},
		{Type: models.CommandStopGCSStream},
		{Type: models.CommandStreamingProtocol, Value: "mpegts"},
		{Type: models.CommandInitTrackingPOI, Value: "640,360"},
		{Type: models.CommandStopTracking},
		{Type: models.CommandGPSData, Value: `{"lat":47.1,"lon":8.5,"alt":120}`},
		{Type: models.CommandMiscData, Value: `{"heading":90}`},
	}
	assert.Empty(t, r.DispatchAll(cmds))
	assert.Len(t, r.Commands(), 17)

	assert.Equal(t, 2.5, eng.zoom)
	assert.Equal(t, models.ZoomIn, eng.zoomStatus)
	assert.Equal(t, 10.0, eng.maxZoom)
	assert.Equal(t, "clip.ts", eng.recordName)
	assert.True(t, eng.stabilize)
	assert.Equal(t, image.Pt(640, 360), eng.poi)
	assert.JSONEq(t, `{"heading":90}`, string(eng.misc))
	assert.NotEmpty(t, eng.gps)

	require.Len(t, eng.changes, 5)
	assert.Equal(t, 3000000, *eng.changes[0].Bitrate)
	assert.Equal(t, models.Host{IP: "10.0.0.9", Port: 5700}, *eng.changes[1].Host)
	assert.Equal(t, "10.0.0.8", *eng.changes[2].IP)
	assert.Equal(t, 5800, *eng.changes[3].Port)
	assert.Equal(t, models.ProtocolMPEGTS, *eng.changes[4].Protocol)
}

func TestValidationFailureDoesNotTouchEngine(t *testing.T) {
	tests := []models.Command{
		{Type: models.CommandGCSHost, Value: "10.0.0.5:70000"},
		{Type: models.CommandGCSIP, Value: "10.0.0"},
		{Type: models.CommandGCSPort, Value: "0"},
		{Type: models.CommandBitrate, Value: "20000"},
		{Type: models.CommandMaxZoom, Value: "20"},
		{Type: models.CommandZoom, Value: "closer"},
		{Type: models.CommandStreamingProtocol, Value: "hls"},
		{Type: models.CommandStabilize, Value: "on"},
		{Type: models.CommandInitTrackingPOI, Value: "x"},
		{Type: models.CommandRecord, Value: "../x.ts"},
		{Type: models.CommandGPSData, Value: "{broken"},
	}

	for _, cmd := range tests {
		t.Run(string(cmd.Type)+" "+cmd.Value, func(t *testing.T) {
			eng := &fakeEngine{}
			err := New(eng).Dispatch(cmd)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, cmd.Type, verr.Type)
			assert.Empty(t, eng.calls)
		})
	}
}

func TestUnknownCommand(t *testing.T) {
	err := New(&fakeEngine{}).Dispatch(models.Command{Type: "self_destruct"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatchAllIsolatesFailures(t *testing.T) {
	eng := &fakeEngine{}
	r := New(eng)

	errs := r.DispatchAll([]models.Command{
		{Type: models.CommandZoom, Value: "2"},
		{Type: models.CommandGCSPort, Value: "99999"},
		{Type: "bogus"},
		{Type: models.CommandZoom, Value: "3"},
	})

	assert.Len(t, errs, 2)
	assert.Equal(t, []string{"zoom", "zoom"}, eng.calls)
	assert.Equal(t, 3.0, eng.zoom)
}

func TestEngineErrorsAreWrapped(t *testing.T) {
	eng := &fakeEngine{photoErr: errors.New("gcs stream not active")}
	err := New(eng).Dispatch(models.Command{Type: models.CommandTakePhoto, Value: "a.jpg"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "take_photo")
	assert.Equal(t, "a.jpg", eng.photoName)
}
