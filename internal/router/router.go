// Package router validates control commands and dispatches them to the engine.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/EchoMAV/PiStreamer/internal/logging"
	"github.com/EchoMAV/PiStreamer/internal/models"
	"github.com/EchoMAV/PiStreamer/internal/stream"
	"github.com/EchoMAV/PiStreamer/internal/validate"
)

var ErrUnknownCommand = errors.New("unknown command")

// ValidationError is returned when a command value is rejected. No state was changed.
type ValidationError struct {
	Type  models.CommandType
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s value %q: %v", e.Type, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Engine is the mutable state the router drives.
type Engine interface {
	SetZoom(level float64) error
	SetZoomStatus(status models.ZoomStatus)
	SetMaxZoom(maxZoom float64) error
	Reconfigure(change stream.Change) error
	StartGCS() error
	StopGCS()
	StartRecording(fileName string) error
	StopRecording() error
	TakePhoto(fileName string) error
	SetStabilize(enabled bool)
	InitTracking(point image.Point)
	StopTracking()
	SetGPSData(data json.RawMessage)
	SetMiscData(data json.RawMessage)
}

type handler func(value string) error

type Router struct {
	engine   Engine
	handlers map[models.CommandType]handler
	log      *logrus.Entry
}

func New(engine Engine) *Router {
	r := &Router{
		engine: engine,
		log:    logging.For("router"),
	}
	r.handlers = map[models.CommandType]handler{
		models.CommandZoom:              r.zoom,
		models.CommandMaxZoom:           r.maxZoom,
		models.CommandBitrate:           r.bitrate,
		models.CommandRecord:            r.record,
		models.CommandStopRecording:     func(string) error { return r.engine.StopRecording() },
		models.CommandTakePhoto:         r.takePhoto,
		models.CommandStabilize:         r.stabilize,
		models.CommandGCSHost:           r.gcsHost,
		models.CommandGCSIP:             r.gcsIP,
		models.CommandGCSPort:           r.gcsPort,
		models.CommandStartGCSStream:    func(string) error { return r.engine.StartGCS() },
		models.CommandStopGCSStream:     func(string) error { r.engine.StopGCS(); return nil },
		models.CommandStreamingProtocol: r.streamingProtocol,
		models.CommandInitTrackingPOI:   r.initTracking,
		models.CommandStopTracking:      func(string) error { r.engine.StopTracking(); return nil },
		models.CommandGPSData:           r.gpsData,
		models.CommandMiscData:          r.miscData,
	}
	return r
}

// Commands lists the supported command types.
func (r *Router) Commands() []models.CommandType {
	return lo.Keys(r.handlers)
}

// Dispatch validates and applies one command.
func (r *Router) Dispatch(cmd models.Command) error {
	h, ok := r.handlers[cmd.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Type)
	}
	r.log.Debugf("dispatch %s %q", cmd.Type, cmd.Value)
	if err := h(cmd.Value); err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return err
		}
		return fmt.Errorf("%s: %w", cmd.Type, err)
	}
	return nil
}

// DispatchAll applies commands in order. A failing command is logged and the
// rest of the batch still runs. The failures are returned.
func (r *Router) DispatchAll(cmds []models.Command) []error {
	var errs []error
	for _, cmd := range cmds {
		if err := r.Dispatch(cmd); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) || errors.Is(err, ErrUnknownCommand) {
				r.log.Warn(err)
			} else {
				r.log.Error(err)
			}
			errs = append(errs, err)
		}
	}
	return errs
}

func invalid(typ models.CommandType, value string, err error) error {
	return &ValidationError{Type: typ, Value: value, Err: err}
}

func (r *Router) zoom(value string) error {
	level, status, err := validate.Zoom(value)
	if err != nil {
		return invalid(models.CommandZoom, value, err)
	}
	if status != "" {
		r.engine.SetZoomStatus(status)
		return nil
	}
	return r.engine.SetZoom(level)
}

func (r *Router) maxZoom(value string) error {
	maxZoom, err := validate.MaxZoom(value)
	if err != nil {
		return invalid(models.CommandMaxZoom, value, err)
	}
	return r.engine.SetMaxZoom(maxZoom)
}

func (r *Router) bitrate(value string) error {
	bps, err := validate.Bitrate(value)
	if err != nil {
		return invalid(models.CommandBitrate, value, err)
	}
	return r.engine.Reconfigure(stream.Change{Bitrate: &bps})
}

func (r *Router) record(value string) error {
	name, err := validate.FileName(value)
	if err != nil {
		return invalid(models.CommandRecord, value, err)
	}
	return r.engine.StartRecording(name)
}

func (r *Router) takePhoto(value string) error {
	name, err := validate.FileName(value)
	if err != nil {
		return invalid(models.CommandTakePhoto, value, err)
	}
	return r.engine.TakePhoto(name)
}

func (r *Router) stabilize(value string) error {
	on, err := validate.Toggle(value)
	if err != nil {
		return invalid(models.CommandStabilize, value, err)
	}
	r.engine.SetStabilize(on)
	return nil
}

func (r *Router) gcsHost(value string) error {
	host, err := validate.Host(value)
	if err != nil {
		return invalid(models.CommandGCSHost, value, err)
	}
	return r.engine.Reconfigure(stream.Change{Host: &host})
}

func (r *Router) gcsIP(value string) error {
	ip, err := validate.IP(value)
	if err != nil {
		return invalid(models.CommandGCSIP, value, err)
	}
	return r.engine.Reconfigure(stream.Change{IP: &ip})
}

func (r *Router) gcsPort(value string) error {
	port, err := validate.Port(value)
	if err != nil {
		return invalid(models.CommandGCSPort, value, err)
	}
	return r.engine.Reconfigure(stream.Change{Port: &port})
}

func (r *Router) streamingProtocol(value string) error {
	p, err := validate.Protocol(value)
	if err != nil {
		return invalid(models.CommandStreamingProtocol, value, err)
	}
	return r.engine.Reconfigure(stream.Change{Protocol: &p})
}

func (r *Router) initTracking(value string) error {
	p, err := validate.Point(value)
	if err != nil {
		return invalid(models.CommandInitTrackingPOI, value, err)
	}
	r.engine.InitTracking(p)
	return nil
}

func (r *Router) gpsData(value string) error {
	data, err := validate.JSON(value)
	if err != nil {
		return invalid(models.CommandGPSData, value, err)
	}
	r.engine.SetGPSData(data)
	return nil
}

func (r *Router) miscData(value string) error {
	data, err := validate.JSON(value)
	if err != nil {
		return invalid(models.CommandMiscData, value, err)
	}
	r.engine.SetMiscData(data)
	return nil
}
