package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	meshlog "github.com/mash-protocol/meshmodel/pkg/log"
	"github.com/mash-protocol/meshmodel/pkg/mesh"
	"github.com/mash-protocol/meshmodel/pkg/model"
	"github.com/mash-protocol/meshmodel/pkg/onoff"
	"github.com/mash-protocol/meshmodel/pkg/sensor"
)

// device is the application built from the configuration together with the
// models the console and the simulation drive.
type device struct {
	cfg    Config
	app    *model.Application
	board  *sensor.Board
	logger *slog.Logger

	onoffClients  map[uint8]*onoff.Client
	sensorClients map[uint8]*sensor.Client

	net     *mesh.Loopback
	session *mesh.Session
}

// modelIdentity returns the model id and company id of a kind.
func modelIdentity(kind ModelKind) (id, vendor uint16) {
	switch kind {
	case KindOnOffServer:
		return onoff.ServerModelID, model.VendorNone
	case KindOnOffClient:
		return onoff.ClientModelID, model.VendorNone
	case KindSensorServer, KindBoardSensor:
		return sensor.ServerModelID, model.VendorNone
	case KindSensorClient:
		return sensor.ClientModelID, model.VendorNone
	default:
		return model.SampleVendorModelID, model.SampleVendorID
	}
}

func buildDevice(cfg Config, logger *slog.Logger, capture meshlog.Logger) (*device, error) {
	d := &device{
		cfg:           cfg,
		board:         sensor.NewBoard(sensor.DefaultBoardState()),
		logger:        logger,
		onoffClients:  make(map[uint8]*onoff.Client),
		sensorClients: make(map[uint8]*sensor.Client),
	}
	d.app = model.NewApplication(cfg.AppPath,
		model.WithIdentity(model.Identity{
			CompanyID: cfg.CompanyID,
			ProductID: cfg.ProductID,
			VersionID: cfg.VersionID,
		}),
		model.WithAppLogger(logger),
		model.WithProtocolLogger(capture),
	)

	for _, ec := range cfg.Elements {
		e := model.NewElement(ec.Index, ec.Location, logger)
		if err := d.app.AddElement(e); err != nil {
			return nil, err
		}
		for _, mc := range ec.Models {
			m := d.newModel(mc.Kind, ec.Index)
			if err := e.AddModel(m); err != nil {
				return nil, fmt.Errorf("element %d: %w", ec.Index, err)
			}
		}
	}
	return d, nil
}

func (d *device) newModel(kind ModelKind, element uint8) model.Model {
	opts := []model.Option{model.WithLogger(d.logger)}
	switch kind {
	case KindOnOffServer:
		return onoff.NewServer(onoff.WithModelOptions(opts...))
	case KindOnOffClient:
		c := onoff.NewClient(onoff.WithClientModelOptions(opts...))
		d.onoffClients[element] = c
		return c
	case KindSensorServer:
		return sensor.NewTemperatureServer(sensor.WithModelOptions(opts...))
	case KindBoardSensor:
		return sensor.NewBoardServer(d.board, sensor.WithModelOptions(opts...))
	case KindSensorClient:
		c := sensor.NewClient(
			sensor.WithTemperatureHandler(func(src uint16, celsius float64) {
				d.logger.Info("temperature", "src", fmt.Sprintf("%04x", src), "celsius", celsius)
			}),
			sensor.WithClientModelOptions(opts...),
		)
		d.sensorClients[element] = c
		return c
	default:
		return model.NewVendor(model.SampleVendorID, model.SampleVendorModelID, nil, opts...)
	}
}

// Application returns the mesh application.
func (d *device) Application() *model.Application {
	return d.app
}

// Board returns the simulated sensor board.
func (d *device) Board() *sensor.Board {
	return d.board
}

// OnOffClient returns the On/Off client of an element.
func (d *device) OnOffClient(element uint8) (*onoff.Client, bool) {
	c, ok := d.onoffClients[element]
	return c, ok
}

// SensorClient returns the sensor client of an element.
func (d *device) SensorClient(element uint8) (*sensor.Client, bool) {
	c, ok := d.sensorClients[element]
	return c, ok
}

// Session returns the mesh session, nil before start.
func (d *device) Session() *mesh.Session {
	return d.session
}

// Address returns the unicast address of an element.
func (d *device) Address(element uint8) (uint16, error) {
	if d.net == nil || d.session == nil {
		return 0, mesh.ErrNotJoined
	}
	return d.net.Address(d.session.Token(), element)
}

// SetPublication configures the publication of a model through the network.
func (d *device) SetPublication(element uint8, modelID, vendor uint16, dst model.Address, period time.Duration) error {
	if d.net == nil || d.session == nil {
		return mesh.ErrNotJoined
	}
	return d.net.SetPublication(d.session.Token(), element, modelID, vendor, dst, period)
}

// applyModelConfig pushes the configured publications and subscriptions
// into the network and waits until the models have them.
func (d *device) applyModelConfig(ctx context.Context) error {
	token := d.session.Token()
	for _, ec := range d.cfg.Elements {
		for _, mc := range ec.Models {
			id, vendor := modelIdentity(mc.Kind)

			if len(mc.Subscriptions) > 0 {
				subs := make([]model.Address, 0, len(mc.Subscriptions))
				for _, s := range mc.Subscriptions {
					a, err := model.ParseAddress(s)
					if err != nil {
						return err
					}
					subs = append(subs, a)
				}
				err := d.net.UpdateModelConfig(token, ec.Index, model.ModelConfig{
					ID:     id,
					Vendor: vendor,
					Update: model.ConfigUpdate{Subscriptions: subs},
				})
				if err != nil {
					return err
				}
			}

			if mc.PublishPeriod > 0 || mc.PublishTo != "" {
				dst := model.NewAddress(model.AllNodesAddress)
				if mc.PublishTo != "" {
					a, err := model.ParseAddress(mc.PublishTo)
					if err != nil {
						return err
					}
					dst = a
				}
				if err := d.net.SetPublication(token, ec.Index, id, vendor, dst, mc.PublishPeriod); err != nil {
					return err
				}
			}
		}
	}
	return d.net.Flush(ctx)
}
