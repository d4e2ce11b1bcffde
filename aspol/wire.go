package main

import (
	"context"
	"time"

	"github.com/itohio/aspol/pkg/clock"
	"github.com/itohio/aspol/pkg/config"
	"github.com/itohio/aspol/pkg/eventlog"
	"github.com/itohio/aspol/pkg/gps"
	"github.com/itohio/aspol/pkg/pulse"
	"github.com/itohio/aspol/pkg/sensor"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// openWall selects the calendar clock. A clock that fails to open leaves
// event timestamps "unavailable".
func openWall(cfg config.ClockConfig, log logrus.FieldLogger, cleanup *closers) clock.Wall {
	switch cfg.Driver {
	case "system":
		return clock.System{}
	case "ds3231":
		rtc, err := clock.OpenDS3231(cfg.I2CBus)
		if err != nil {
			log.WithError(err).Warn("RTC initialization failed")
			return clock.None{}
		}
		cleanup.add(func() { rtc.Close() })
		if lost, err := rtc.LostPower(); err == nil && lost {
			log.Warn("RTC lost power, time may be wrong")
		}
		return rtc
	default:
		if cfg.Driver != "none" {
			log.WithField("driver", cfg.Driver).Warn("Unknown clock driver")
		}
		return clock.None{}
	}
}

// openGPS selects the position source. A receiver that fails to open
// reports no fix, which only suppresses event logging.
func openGPS(cfg config.GPSConfig, log logrus.FieldLogger, cleanup *closers) gps.Source {
	switch cfg.Driver {
	case "serial":
		r := gps.NewReceiver(cfg.Port, cfg.BaudRate, cfg.MaxAge, log)
		if err := r.Connect(); err != nil {
			log.WithError(err).Warn("GPS initialization failed")
			return gps.None{}
		}
		cleanup.add(func() { r.Close() })
		return r
	case "static":
		return gps.Static{Valid: true, Lat: cfg.Lat, Lng: cfg.Lng}
	default:
		if cfg.Driver != "none" {
			log.WithField("driver", cfg.Driver).Warn("Unknown GPS driver")
		}
		return gps.None{}
	}
}

// openSensor selects the pressure sensor and the flow pulse source. A
// sensor that fails to open reads as not initialized; the loop keeps running.
func openSensor(ctx context.Context, cfg *config.Config, counter *pulse.Counter, log logrus.FieldLogger, cleanup *closers) (sensor.Pressure, sensor.Thermometer) {
	switch cfg.Sensor.Driver {
	case "mock":
		m := sensor.NewMock(&cfg.Mock, cfg.Sampling.Calibration, counter, log)
		if err := m.Connect(); err != nil {
			log.WithError(err).Warn("Mock sensor failed")
			return sensor.Absent{}, nil
		}
		cleanup.add(func() { m.Close() })
		return m, m

	case "bmp180":
		if cfg.Sensor.PulsePin != "" {
			edges, err := sensor.OpenEdgeSource(cfg.Sensor.PulsePin, counter, log)
			if err != nil {
				log.WithError(err).Warn("Flow sensor initialization failed")
			} else {
				go edges.Run(ctx)
			}
		}
		b := sensor.NewBMP180(cfg.Sensor.I2CBus, cfg.Sensor.I2CAddress)
		if err := b.Connect(); err != nil {
			log.WithError(err).Warn("Could not find a valid BMP085 sensor")
			return sensor.Absent{}, nil
		}
		cleanup.add(func() { b.Close() })
		return b, b

	case "bridge":
		b := sensor.NewBridge(cfg.Sensor.Port, cfg.Sensor.BaudRate, cfg.Sensor.StaleAfter, counter, log)
		if err := b.Connect(); err != nil {
			log.WithError(err).Warn("Sensor bridge initialization failed")
			return sensor.Absent{}, nil
		}
		cleanup.add(func() { b.Close() })
		if err := b.SetReportInterval(cfg.Sampling.LoopDelay); err != nil {
			log.WithError(err).Warn("Sensor bridge did not take the report interval")
		}
		return b, b

	default:
		log.WithField("driver", cfg.Sensor.Driver).Warn("Unknown sensor driver")
		return sensor.Absent{}, nil
	}
}

// openMirrors attaches the configured remote copies of the event log.
// Unreachable brokers are logged and skipped.
func openMirrors(ctx context.Context, cfg config.MirrorConfig, events *eventlog.Logger, device func() string, log logrus.FieldLogger, cleanup *closers) {
	if cfg.AMQP.URI != "" {
		if m, err := openAMQP(cfg.AMQP, device, cleanup); err != nil {
			log.WithError(err).Warn("AMQP mirror disabled")
		} else {
			events.AddMirror(m)
			log.WithField("queue", cfg.AMQP.Queue).Info("AMQP mirror enabled")
		}
	}

	if cfg.Mongo.URI != "" {
		if m, err := openMongo(ctx, cfg.Mongo, device, cleanup); err != nil {
			log.WithError(err).Warn("Mongo mirror disabled")
		} else {
			events.AddMirror(m)
			log.WithField("collection", cfg.Mongo.Collection).Info("Mongo mirror enabled")
		}
	}
}

func openAMQP(cfg config.AMQPConfig, device func() string, cleanup *closers) (*eventlog.AMQPMirror, error) {
	conn, err := amqp.Dial(cfg.URI)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := eventlog.DeclareQueue(ch, cfg.Queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	cleanup.add(func() {
		ch.Close()
		conn.Close()
	})
	return eventlog.NewAMQPMirror(ch, cfg.Queue, device), nil
}

func openMongo(ctx context.Context, cfg config.MongoConfig, device func() string, cleanup *closers) (*eventlog.MongoMirror, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	cleanup.add(func() { client.Disconnect(context.Background()) })
	return eventlog.NewMongoMirror(client.Database(cfg.Database).Collection(cfg.Collection), device), nil
}
