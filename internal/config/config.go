// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"dataexplorer-comm/internal/comm"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Port        PortConfig        `mapstructure:"port"`
	USB         USBConfig         `mapstructure:"usb"`
	Simulator   SimulatorConfig   `mapstructure:"simulator"`
	TCP         TCPConfig         `mapstructure:"tcp"`
	Acquisition AcquisitionConfig `mapstructure:"acquisition"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Security    SecurityConfig    `mapstructure:"security"`
	App         AppConfig         `mapstructure:"app"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            string        `mapstructure:"port" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig represents the telegram recorder database
type DatabaseConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	DBName         string        `mapstructure:"dbname"`
	SSLMode        string        `mapstructure:"sslmode"`
	MaxOpenConns   int           `mapstructure:"max_open_conns"`
	MaxIdleConns   int           `mapstructure:"max_idle_conns"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	Retention      time.Duration `mapstructure:"retention"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level" validate:"required"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// PortConfig represents the device port and its selection policy. Enum
// settings are kept as strings here and parsed by PortSettings.
type PortConfig struct {
	Kind              string        `mapstructure:"kind"`
	Name              string        `mapstructure:"name"`
	BaudRate          int           `mapstructure:"baud_rate"`
	DataBits          int           `mapstructure:"data_bits"`
	StopBits          string        `mapstructure:"stop_bits"`
	Parity            string        `mapstructure:"parity"`
	FlowControl       string        `mapstructure:"flow_control"`
	RTS               bool          `mapstructure:"rts"`
	DTR               bool          `mapstructure:"dtr"`
	DataBlockSize     int           `mapstructure:"data_block_size"`
	ReadTick          time.Duration `mapstructure:"read_tick"`
	AvailabilityCheck bool          `mapstructure:"availability_check"`
	BlackList         string        `mapstructure:"black_list"`
	WhiteList         string        `mapstructure:"white_list"`
	SubstituteSingle  bool          `mapstructure:"substitute_single"`
}

// USBConfig represents the USB binding configuration
type USBConfig struct {
	VendorID    string        `mapstructure:"vendor_id"`
	ProductID   string        `mapstructure:"product_id"`
	Interface   int           `mapstructure:"interface"`
	InEndpoint  int           `mapstructure:"in_endpoint"`
	OutEndpoint int           `mapstructure:"out_endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SimulatorConfig represents the simulator binding configuration
type SimulatorConfig struct {
	File      string        `mapstructure:"file"`
	ChunkSize int           `mapstructure:"chunk_size"`
	Interval  time.Duration `mapstructure:"interval"`
	Loop      bool          `mapstructure:"loop"`
}

// TCPConfig represents a serial device server reached over TCP
type TCPConfig struct {
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	KeepAlive   bool          `mapstructure:"keep_alive"`
	TLS         bool          `mapstructure:"tls"`
}

// AcquisitionConfig represents the telegram acquisition loop
type AcquisitionConfig struct {
	AutoStart        bool          `mapstructure:"auto_start"`
	ReadMode         string        `mapstructure:"read_mode"`
	TelegramSize     int           `mapstructure:"telegram_size"`
	TimeoutMs        int           `mapstructure:"timeout_ms"`
	StableIndex      int           `mapstructure:"stable_index"`
	MinCount         int           `mapstructure:"min_count"`
	Query            string        `mapstructure:"query"`
	WriteGapMs       int           `mapstructure:"write_gap_ms"`
	CheckFailedQuery bool          `mapstructure:"check_failed_query"`
	CheckLeftover    bool          `mapstructure:"check_leftover"`
	Interval         time.Duration `mapstructure:"interval"`
	MaxFailures      int           `mapstructure:"max_failures"`
	TimeoutFactor    string        `mapstructure:"timeout_factor"`
}

// MQTTConfig represents the MQTT status publisher
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	QoS            byte          `mapstructure:"qos"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// SecurityConfig represents security configuration
type SecurityConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	Version     string `mapstructure:"version" validate:"required"`
	Environment string `mapstructure:"environment" validate:"required"`
	Debug       bool   `mapstructure:"debug"`
}

// Read modes of the acquisition loop
const (
	ReadModeFixed  = "fixed"
	ReadModeStable = "stable"
	ReadModeTimed  = "timed"
)

// Load loads configuration from file and environment variables. An empty
// path searches config.yaml in the working directory and ./configs; a
// missing file is only an error when path is given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// Environment variable support
	v.SetEnvPrefix("DATAEXPLORER_COMM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8085")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "dataexplorer")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_lifetime", "5m")
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("database.retention", "720h")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// Port defaults
	v.SetDefault("port.kind", "serial")
	v.SetDefault("port.name", "")
	v.SetDefault("port.baud_rate", 9600)
	v.SetDefault("port.data_bits", 8)
	v.SetDefault("port.stop_bits", "1")
	v.SetDefault("port.parity", "none")
	v.SetDefault("port.flow_control", "none")
	v.SetDefault("port.rts", false)
	v.SetDefault("port.dtr", false)
	v.SetDefault("port.data_block_size", 0)
	v.SetDefault("port.read_tick", "20ms")
	v.SetDefault("port.availability_check", false)
	v.SetDefault("port.black_list", "")
	v.SetDefault("port.white_list", "")
	v.SetDefault("port.substitute_single", false)

	// USB defaults
	v.SetDefault("usb.interface", 0)
	v.SetDefault("usb.in_endpoint", 1)
	v.SetDefault("usb.out_endpoint", 1)
	v.SetDefault("usb.timeout", "1s")

	// Simulator defaults
	v.SetDefault("simulator.chunk_size", 64)
	v.SetDefault("simulator.interval", "100ms")
	v.SetDefault("simulator.loop", true)

	// TCP defaults
	v.SetDefault("tcp.dial_timeout", "5s")
	v.SetDefault("tcp.keep_alive", true)
	v.SetDefault("tcp.tls", false)

	// Acquisition defaults
	v.SetDefault("acquisition.auto_start", false)
	v.SetDefault("acquisition.read_mode", ReadModeStable)
	v.SetDefault("acquisition.telegram_size", 64)
	v.SetDefault("acquisition.timeout_ms", 2000)
	v.SetDefault("acquisition.stable_index", 20)
	v.SetDefault("acquisition.min_count", 0)
	v.SetDefault("acquisition.query", "")
	v.SetDefault("acquisition.write_gap_ms", 0)
	v.SetDefault("acquisition.check_failed_query", false)
	v.SetDefault("acquisition.check_leftover", false)
	v.SetDefault("acquisition.interval", "1s")
	v.SetDefault("acquisition.max_failures", 5)
	v.SetDefault("acquisition.timeout_factor", "1.5")

	// MQTT defaults
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "dataexplorer-comm")
	v.SetDefault("mqtt.topic_prefix", "dataexplorer")
	v.SetDefault("mqtt.qos", 0)
	v.SetDefault("mqtt.connect_timeout", "10s")

	// Security defaults
	v.SetDefault("security.allowed_origins", []string{"*"})

	// App defaults
	v.SetDefault("app.name", "dataexplorer-comm")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", false)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if config.Server.Port == "" {
		return fmt.Errorf("server.port is required")
	}
	if config.Database.Enabled && config.Database.Host == "" {
		return fmt.Errorf("database.host is required when database is enabled")
	}
	if config.MQTT.Enabled && config.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if config.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
	}

	// Validate environment
	validEnvs := []string{"development", "staging", "production", "test"}
	if !contains(validEnvs, config.App.Environment) {
		return fmt.Errorf("app.environment must be one of: %v", validEnvs)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if _, err := config.PortSettings(); err != nil {
		return err
	}

	validModes := []string{ReadModeFixed, ReadModeStable, ReadModeTimed}
	if !contains(validModes, config.Acquisition.ReadMode) {
		return fmt.Errorf("acquisition.read_mode must be one of: %v", validModes)
	}
	if config.Acquisition.TelegramSize <= 0 {
		return fmt.Errorf("acquisition.telegram_size must be positive")
	}
	if config.Acquisition.TimeoutMs <= 0 {
		return fmt.Errorf("acquisition.timeout_ms must be positive")
	}

	return nil
}

// PortSettings converts the port section into the line settings used to
// open the port
func (c *Config) PortSettings() (comm.PortConfig, error) {
	parity, err := comm.ParseParity(c.Port.Parity)
	if err != nil {
		return comm.PortConfig{}, fmt.Errorf("port.parity: %w", err)
	}
	stopBits, err := comm.ParseStopBits(c.Port.StopBits)
	if err != nil {
		return comm.PortConfig{}, fmt.Errorf("port.stop_bits: %w", err)
	}
	flow, err := comm.ParseFlowControl(c.Port.FlowControl)
	if err != nil {
		return comm.PortConfig{}, fmt.Errorf("port.flow_control: %w", err)
	}

	cfg := comm.PortConfig{
		Port:          c.Port.Name,
		BaudRate:      c.Port.BaudRate,
		DataBits:      c.Port.DataBits,
		StopBits:      stopBits,
		Parity:        parity,
		FlowControl:   flow,
		RTS:           c.Port.RTS,
		DTR:           c.Port.DTR,
		DataBlockSize: c.Port.DataBlockSize,
	}
	if err := cfg.Validate(); err != nil {
		return comm.PortConfig{}, err
	}
	return cfg, nil
}

// EnumeratorConfig returns the port filter of the port section
func (c *Config) EnumeratorConfig() comm.EnumeratorConfig {
	return comm.EnumeratorConfig{
		AvailabilityCheck: c.Port.AvailabilityCheck,
		BlackList:         comm.SplitPortList(c.Port.BlackList),
		WhiteList:         comm.SplitPortList(c.Port.WhiteList),
	}
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.DBName, c.Database.SSLMode)
}

// GetServerAddr returns the server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment checks if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsDebugEnabled checks if debug mode is enabled
func (c *Config) IsDebugEnabled() bool {
	return c.App.Debug || c.IsDevelopment()
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
