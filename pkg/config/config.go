package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Storage     StorageConfig     `yaml:"storage"`
	Sensor      SensorConfig      `yaml:"sensor"`
	GPS         GPSConfig         `yaml:"gps"`
	Clock       ClockConfig       `yaml:"clock"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Events      EventsConfig      `yaml:"events"`
	Status      StatusConfig      `yaml:"status"`
	AccessPoint AccessPointConfig `yaml:"access_point"`
	Mirror      MirrorConfig      `yaml:"mirror"`
	Mock        MockConfig        `yaml:"mock"`
	Monitor     MonitorConfig     `yaml:"monitor"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	Level     string `yaml:"level" env:"ASPOL_LOG_LEVEL"`
	Format    string `yaml:"format" env:"ASPOL_LOG_FORMAT"`         // text or json
	DiagLevel string `yaml:"diag_level" env:"ASPOL_LOG_DIAG_LEVEL"` // least severe level mirrored to diagnostics
}

// StorageConfig contains the event and device-config volume.
type StorageConfig struct {
	Root string `yaml:"root" env:"ASPOL_STORAGE_ROOT"` // a missing directory reads as no card
}

// SensorConfig selects and configures the sensor front-end.
type SensorConfig struct {
	Driver     string        `yaml:"driver" env:"ASPOL_SENSOR_DRIVER"` // mock, bmp180 or bridge
	I2CBus     string        `yaml:"i2c_bus" env:"ASPOL_SENSOR_I2C_BUS"`
	I2CAddress uint16        `yaml:"i2c_address"`
	PulsePin   string        `yaml:"pulse_pin" env:"ASPOL_SENSOR_PULSE_PIN"` // GPIO for the flow sensor with the bmp180 driver
	Port       string        `yaml:"port" env:"ASPOL_SENSOR_PORT"`           // serial port of the bridge driver
	BaudRate   int           `yaml:"baud_rate"`
	StaleAfter time.Duration `yaml:"stale_after"` // bridge pressure older than this reads as not initialized
}

// GPSConfig selects and configures the position source.
type GPSConfig struct {
	Driver   string        `yaml:"driver" env:"ASPOL_GPS_DRIVER"` // serial, static or none
	Port     string        `yaml:"port" env:"ASPOL_GPS_PORT"`
	BaudRate int           `yaml:"baud_rate"`
	MaxAge   time.Duration `yaml:"max_age"`
	Lat      float64       `yaml:"lat" env:"ASPOL_GPS_LAT"` // static driver only
	Lng      float64       `yaml:"lng" env:"ASPOL_GPS_LNG"`
}

// ClockConfig selects the wall clock.
type ClockConfig struct {
	Driver string `yaml:"driver" env:"ASPOL_CLOCK_DRIVER"` // system, ds3231 or none
	I2CBus string `yaml:"i2c_bus"`
}

// SamplingConfig contains control loop parameters.
type SamplingConfig struct {
	LoopDelay    time.Duration `yaml:"loop_delay"`
	History      int           `yaml:"history"`
	FlowInterval time.Duration `yaml:"flow_interval"`
	Calibration  float64       `yaml:"calibration" env:"ASPOL_SAMPLING_CALIBRATION"` // pulses per second per L/min
}

// EventsConfig contains event logging parameters.
type EventsConfig struct {
	PressureInterval time.Duration `yaml:"pressure_interval"` // zero logs every anomaly
	FlowInterval     time.Duration `yaml:"flow_interval"`
	PressureFile     string        `yaml:"pressure_file"`
	FlowFile         string        `yaml:"flow_file"`
	MirrorTimeout    time.Duration `yaml:"mirror_timeout"`
}

// StatusConfig contains the status web interface configuration.
type StatusConfig struct {
	Enabled bool   `yaml:"enabled" env:"ASPOL_STATUS_ENABLED"`
	Addr    string `yaml:"addr" env:"ASPOL_STATUS_ADDR"`
}

// AccessPointConfig contains the wireless access point configuration.
type AccessPointConfig struct {
	Driver        string   `yaml:"driver" env:"ASPOL_AP_DRIVER"` // hostapd or none
	ConfigPath    string   `yaml:"config_path"`
	Interface     string   `yaml:"interface"`
	Channel       int      `yaml:"channel"`
	ReloadCommand []string `yaml:"reload_command,omitempty"`
}

// MirrorConfig contains optional remote copies of event records.
type MirrorConfig struct {
	AMQP  AMQPConfig  `yaml:"amqp"`
	Mongo MongoConfig `yaml:"mongo"`
}

// AMQPConfig contains the message queue mirror. Empty URI disables it.
type AMQPConfig struct {
	URI   string `yaml:"uri" env:"ASPOL_AMQP_URI"`
	Queue string `yaml:"queue"`
}

// MongoConfig contains the document store mirror. Empty URI disables it.
type MongoConfig struct {
	URI        string `yaml:"uri" env:"ASPOL_MONGO_URI"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

// MockConfig contains mock sensor configuration.
type MockConfig struct {
	SampleRate         time.Duration `yaml:"sample_rate"`
	BaselineHPa        float64       `yaml:"baseline_hpa"`
	NoiseHPa           float64       `yaml:"noise_hpa"`
	FlowLpm            float64       `yaml:"flow_lpm"`
	AnomalyProbability float64       `yaml:"anomaly_probability"` // per sample
	AnomalyDuration    int           `yaml:"anomaly_duration"`    // samples
	PressureSpikePct   float64       `yaml:"pressure_spike_pct"`
	FlowSpikePct       float64       `yaml:"flow_spike_pct"`
	Seed               uint64        `yaml:"seed"` // zero picks a random seed
}

// MonitorConfig contains the desktop monitor parameters.
type MonitorConfig struct {
	URL          string        `yaml:"url" env:"ASPOL_MONITOR_URL"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Window       time.Duration `yaml:"window"`      // visible trace span
	MinEpisode   time.Duration `yaml:"min_episode"` // shorter anomaly runs are not marked
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			DiagLevel: "info",
		},
		Storage: StorageConfig{
			Root: "./sd",
		},
		Sensor: SensorConfig{
			Driver:     "mock",
			I2CBus:     "",
			I2CAddress: 0x77,
			Port:       "/dev/ttyACM0",
			BaudRate:   115200,
			StaleAfter: 3 * time.Second,
		},
		GPS: GPSConfig{
			Driver:   "none",
			Port:     "/dev/ttyS0",
			BaudRate: 9600,
			MaxAge:   5 * time.Second,
		},
		Clock: ClockConfig{
			Driver: "system",
		},
		Sampling: SamplingConfig{
			LoopDelay:    100 * time.Millisecond,
			History:      10,
			FlowInterval: time.Second,
			Calibration:  7.5,
		},
		Events: EventsConfig{
			PressureInterval: 0,
			FlowInterval:     2500 * time.Millisecond,
			PressureFile:     "/pressure_log.txt",
			FlowFile:         "/flow_log.txt",
			MirrorTimeout:    2 * time.Second,
		},
		Status: StatusConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		AccessPoint: AccessPointConfig{
			Driver:     "none",
			ConfigPath: "/etc/hostapd/hostapd.conf",
			Interface:  "wlan0",
			Channel:    6,
		},
		Mirror: MirrorConfig{
			AMQP: AMQPConfig{
				Queue: "aspol.events",
			},
			Mongo: MongoConfig{
				Database:   "aspol",
				Collection: "events",
			},
		},
		Mock: MockConfig{
			SampleRate:         100 * time.Millisecond,
			BaselineHPa:        1013.25,
			NoiseHPa:           0.05,
			FlowLpm:            12,
			AnomalyProbability: 0.01,
			AnomalyDuration:    20,
			PressureSpikePct:   8,
			FlowSpikePct:       40,
		},
		Monitor: MonitorConfig{
			URL:          "http://192.168.4.1",
			PollInterval: 250 * time.Millisecond,
			Window:       2 * time.Minute,
			MinEpisode:   200 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file and then applies ASPOL_*
// environment overrides. If the file doesn't exist or fields are missing,
// it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Log.DiagLevel == "" {
		c.Log.DiagLevel = def.Log.DiagLevel
	}

	if c.Storage.Root == "" {
		c.Storage.Root = def.Storage.Root
	}

	if c.Sensor.Driver == "" {
		c.Sensor.Driver = def.Sensor.Driver
	}
	if c.Sensor.I2CAddress == 0 {
		c.Sensor.I2CAddress = def.Sensor.I2CAddress
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.StaleAfter == 0 {
		c.Sensor.StaleAfter = def.Sensor.StaleAfter
	}

	if c.GPS.Driver == "" {
		c.GPS.Driver = def.GPS.Driver
	}
	if c.GPS.BaudRate == 0 {
		c.GPS.BaudRate = def.GPS.BaudRate
	}
	if c.GPS.MaxAge == 0 {
		c.GPS.MaxAge = def.GPS.MaxAge
	}

	if c.Clock.Driver == "" {
		c.Clock.Driver = def.Clock.Driver
	}

	if c.Sampling.LoopDelay == 0 {
		c.Sampling.LoopDelay = def.Sampling.LoopDelay
	}
	if c.Sampling.History <= 0 {
		c.Sampling.History = def.Sampling.History
	}
	if c.Sampling.FlowInterval == 0 {
		c.Sampling.FlowInterval = def.Sampling.FlowInterval
	}
	if c.Sampling.Calibration <= 0 {
		c.Sampling.Calibration = def.Sampling.Calibration
	}

	if c.Events.FlowInterval == 0 {
		c.Events.FlowInterval = def.Events.FlowInterval
	}
	if c.Events.PressureFile == "" {
		c.Events.PressureFile = def.Events.PressureFile
	}
	if c.Events.FlowFile == "" {
		c.Events.FlowFile = def.Events.FlowFile
	}
	if c.Events.MirrorTimeout == 0 {
		c.Events.MirrorTimeout = def.Events.MirrorTimeout
	}

	if c.Status.Addr == "" {
		c.Status.Addr = def.Status.Addr
	}

	if c.AccessPoint.Driver == "" {
		c.AccessPoint.Driver = def.AccessPoint.Driver
	}
	if c.AccessPoint.ConfigPath == "" {
		c.AccessPoint.ConfigPath = def.AccessPoint.ConfigPath
	}
	if c.AccessPoint.Interface == "" {
		c.AccessPoint.Interface = def.AccessPoint.Interface
	}
	if c.AccessPoint.Channel == 0 {
		c.AccessPoint.Channel = def.AccessPoint.Channel
	}

	if c.Mirror.AMQP.Queue == "" {
		c.Mirror.AMQP.Queue = def.Mirror.AMQP.Queue
	}
	if c.Mirror.Mongo.Database == "" {
		c.Mirror.Mongo.Database = def.Mirror.Mongo.Database
	}
	if c.Mirror.Mongo.Collection == "" {
		c.Mirror.Mongo.Collection = def.Mirror.Mongo.Collection
	}

	if c.Mock.SampleRate == 0 {
		c.Mock.SampleRate = def.Mock.SampleRate
	}
	if c.Mock.BaselineHPa == 0 {
		c.Mock.BaselineHPa = def.Mock.BaselineHPa
	}
	if c.Mock.AnomalyDuration == 0 {
		c.Mock.AnomalyDuration = def.Mock.AnomalyDuration
	}

	if c.Monitor.URL == "" {
		c.Monitor.URL = def.Monitor.URL
	}
	if c.Monitor.PollInterval == 0 {
		c.Monitor.PollInterval = def.Monitor.PollInterval
	}
	if c.Monitor.Window == 0 {
		c.Monitor.Window = def.Monitor.Window
	}
}
