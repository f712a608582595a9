// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. MODBUSRTU_SERIAL_DEVICE.
const EnvPrefix = "MODBUSRTU"

// DefaultSerialTimeout is the response margin used when none is configured.
const DefaultSerialTimeout = 500 * time.Millisecond

// DefaultPollInterval is the pause between two polling requests.
const DefaultPollInterval = 2 * time.Second

// Config defines the global configuration structure
type Config struct {
	Log       LogConfig    `mapstructure:"log"`
	Transport string       `mapstructure:"transport"` // "rtu", "rtu-over-tcp"
	Serial    SerialConfig `mapstructure:"serial"`    // Used if Transport is "rtu"
	Tcp       TcpConfig    `mapstructure:"tcp"`       // Used if Transport is "rtu-over-tcp"
	Master    MasterConfig `mapstructure:"master"`
	Slave     SlaveConfig  `mapstructure:"slave"`
}

// LogConfig defines logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`  // Log file path
}

// TcpConfig defines the serial device server an RTU stream is tunnelled through
type TcpConfig struct {
	Address string `mapstructure:"address"` // e.g. "192.168.1.100:4001"
	Listen  bool   `mapstructure:"listen"`  // accept the connection instead of dialing
}

// SerialConfig defines RTU settings
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	DataBits int    `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits int    `mapstructure:"stop_bits"`
	// Timeout bounds the wait for a response, frame silence excluded.
	Timeout     time.Duration `mapstructure:"timeout"`
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// RS485 specific
	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// MasterConfig defines the polling master
type MasterConfig struct {
	SlaveID    int           `mapstructure:"slave_id"`
	Registers  string        `mapstructure:"registers"` // "1,3,4" or "0-4"
	Interval   time.Duration `mapstructure:"interval"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// SlaveConfig defines the served register map
type SlaveConfig struct {
	UnitID   int    `mapstructure:"unit_id"`
	Capacity int    `mapstructure:"capacity"` // 0 means len(values)
	Values   string `mapstructure:"values"`   // initial register values
	Image    string `mapstructure:"image"`    // read-only register image, overrides values
}

// flagKeys maps command line flags onto configuration keys.
var flagKeys = map[string]string{
	"log-level":   "log.level",
	"log-file":    "log.file",
	"transport":   "transport",
	"device":      "serial.device",
	"baud":        "serial.baud_rate",
	"parity":      "serial.parity",
	"timeout":     "serial.timeout",
	"rs485":       "serial.rs485",
	"address":     "tcp.address",
	"listen":      "tcp.listen",
	"slave":       "master.slave_id",
	"registers":   "master.registers",
	"interval":    "master.interval",
	"max-retries": "master.max_retries",
	"unit":        "slave.unit_id",
	"capacity":    "slave.capacity",
	"values":      "slave.values",
	"image":       "slave.image",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("transport", "rtu")

	v.SetDefault("serial.device", "/dev/ttyUSB0")
	v.SetDefault("serial.baud_rate", 9600)
	v.SetDefault("serial.data_bits", 8)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.stop_bits", 1)
	v.SetDefault("serial.timeout", DefaultSerialTimeout)
	v.SetDefault("serial.idle_timeout", 60*time.Second)
	v.SetDefault("serial.rs485", false)
	v.SetDefault("serial.delay_rts_before_send", time.Duration(0))
	v.SetDefault("serial.delay_rts_after_send", time.Duration(0))
	v.SetDefault("serial.rts_high_during_send", false)
	v.SetDefault("serial.rts_high_after_send", false)
	v.SetDefault("serial.rx_during_tx", false)

	v.SetDefault("tcp.address", "127.0.0.1:4001")
	v.SetDefault("tcp.listen", false)

	v.SetDefault("master.slave_id", 1)
	v.SetDefault("master.registers", "1,3,4")
	v.SetDefault("master.interval", DefaultPollInterval)
	v.SetDefault("master.max_retries", 2)

	v.SetDefault("slave.unit_id", 1)
	v.SetDefault("slave.capacity", 0)
	v.SetDefault("slave.values", "12,24,36,48,60")
	v.SetDefault("slave.image", "")
}

// LoadConfig loads configuration from defaults, an optional file, the
// environment and flags, in increasing priority. A missing file is only an
// error when configFile names it explicitly.
func LoadConfig(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-rtu/")
		v.AddConfigPath("$HOME/.modbus-rtu")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate / Fixups
	fixupSerial(&config.Serial)
	config.Transport = strings.ToLower(config.Transport)
	switch config.Transport {
	case "rtu", "rtu-over-tcp":
	default:
		return nil, fmt.Errorf("unknown transport %q", config.Transport)
	}
	if config.Master.MaxRetries < 0 {
		config.Master.MaxRetries = 0
	}

	return &config, nil
}

func fixupSerial(s *SerialConfig) {
	s.Parity = strings.ToUpper(s.Parity)
	if s.Timeout <= 0 {
		s.Timeout = DefaultSerialTimeout
	}
}

// ParseAddressList parses a list of register addresses or values
// (e.g. "1,3,5-10") into a slice.
func ParseAddressList(input string) ([]uint16, error) {
	var addrs []uint16
	parts := strings.Split(input, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "-") {
			// Range
			ranges := strings.Split(part, "-")
			if len(ranges) != 2 {
				return nil, fmt.Errorf("invalid range: %s", part)
			}
			start, err := parseUint16(ranges[0])
			if err != nil {
				return nil, fmt.Errorf("invalid start of range: %w", err)
			}
			end, err := parseUint16(ranges[1])
			if err != nil {
				return nil, fmt.Errorf("invalid end of range: %w", err)
			}
			if start > end {
				return nil, fmt.Errorf("start of range %d is greater than end %d", start, end)
			}
			for i := int(start); i <= int(end); i++ {
				addrs = append(addrs, uint16(i))
			}
		} else {
			// Single
			a, err := parseUint16(part)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}
			addrs = append(addrs, a)
		}
	}
	return addrs, nil
}

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(n), nil
}
