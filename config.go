package wsweb

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

const (
	//DefaultSendBufferSize is the outgoing buffered-amount ceiling above which the
	// sink stops accepting frames.
	DefaultSendBufferSize = 4 << 20
	//DefaultReceiveBufferSize is the ceiling of received but unconsumed bytes.
	DefaultReceiveBufferSize = 64 << 20
	//DefaultBufferPollInterval is how often a backpressured sink rechecks the host.
	DefaultBufferPollInterval = time.Millisecond
	//DefaultCloseTimeout bounds the wait for the host to confirm a local close.
	DefaultCloseTimeout = 5 * time.Second
)

//Interface names the host websocket API a connection is built on.
type Interface string

const (
	//InterfaceAuto picks InterfaceStream where the runtime supports it, else InterfaceStandard.
	InterfaceAuto Interface = "auto"
	//InterfaceStream is the browser's WebSocketStream, with backpressure in both directions.
	InterfaceStream Interface = "stream"
	//InterfaceStandard is the standard WebSocket object (or its native emulation).
	InterfaceStandard Interface = "standard"
)

//Config holds connection settings. The zero value is not usable; start from
// DefaultConfig or DecodeConfig.
type Config struct {
	Protocols          []string      `mapstructure:"protocols"`
	SendBufferSize     int           `mapstructure:"send_buffer_size"`
	ReceiveBufferSize  int           `mapstructure:"receive_buffer_size"`
	BufferPollInterval time.Duration `mapstructure:"buffer_poll_interval"`
	CloseTimeout       time.Duration `mapstructure:"close_timeout"`
	Interface          Interface     `mapstructure:"interface"`

	Logger logrus.FieldLogger `mapstructure:"-"`
	//Dialer overrides the host socket picked by Interface.
	Dialer HostDialer `mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		SendBufferSize:     DefaultSendBufferSize,
		ReceiveBufferSize:  DefaultReceiveBufferSize,
		BufferPollInterval: DefaultBufferPollInterval,
		CloseTimeout:       DefaultCloseTimeout,
		Interface:          InterfaceAuto,
		Logger:             logrus.StandardLogger(),
	}
}

//DecodeConfig overlays generic settings (for example viper's AllSettings) on top of
// DefaultConfig. Durations may be given as strings like "250ms".
func DecodeConfig(settings map[string]interface{}) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           &cfg,
	})
	if err != nil {
		return Config{}, fmt.Errorf("WebSocket: Could not create config decoder; Details: %w", err)
	}
	if err = decoder.Decode(settings); err != nil {
		return Config{}, fmt.Errorf("WebSocket: Could not decode config; Details: %w", err)
	}
	cfg.normalize()
	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch {
	case cfg.SendBufferSize <= 0:
		return fmt.Errorf("WebSocket: Invalid config; Details: send buffer size must be positive, got %d", cfg.SendBufferSize)
	case cfg.ReceiveBufferSize <= 0:
		return fmt.Errorf("WebSocket: Invalid config; Details: receive buffer size must be positive, got %d", cfg.ReceiveBufferSize)
	case cfg.BufferPollInterval <= 0:
		return fmt.Errorf("WebSocket: Invalid config; Details: buffer poll interval must be positive, got %s", cfg.BufferPollInterval)
	case cfg.CloseTimeout <= 0:
		return fmt.Errorf("WebSocket: Invalid config; Details: close timeout must be positive, got %s", cfg.CloseTimeout)
	case !lo.Contains([]Interface{InterfaceAuto, InterfaceStream, InterfaceStandard}, cfg.Interface):
		return fmt.Errorf("WebSocket: Invalid config; Details: unknown interface %q", cfg.Interface)
	}
	return nil
}

//hostDialer resolves the interface and the dialer for it. An explicit Dialer is used as
// is and is taken to follow the standard interface unless Interface names another.
func (cfg Config) hostDialer() (Interface, HostDialer, error) {
	iface := cfg.Interface
	if cfg.Dialer != nil {
		if iface == InterfaceAuto {
			iface = InterfaceStandard
		}
		return iface, cfg.Dialer, nil
	}

	if iface == InterfaceAuto {
		iface = InterfaceStandard
		if InterfaceStream.Supported() {
			iface = InterfaceStream
		}
	}
	if !iface.Supported() {
		return iface, nil, fmt.Errorf("WebSocket: Could not use the %s interface; Details: %w", iface, ErrUnsupportedInterface)
	}
	return iface, hostDialerFor(iface), nil
}

func (cfg *Config) normalize() {
	cfg.Protocols = lo.Uniq(lo.Compact(lo.Map(cfg.Protocols, func(p string, _ int) string {
		return strings.TrimSpace(p)
	})))
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	cfg.Interface = Interface(strings.ToLower(strings.TrimSpace(string(cfg.Interface))))
	if cfg.Interface == "" {
		cfg.Interface = InterfaceAuto
	}
}

//Option adjusts a Config.
type Option func(*Config)

//WithConfig replaces the whole configuration; later options still apply on top.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

//WithProtocols sets the sub-protocols offered to the server.
func WithProtocols(protocols ...string) Option {
	return func(c *Config) { c.Protocols = append([]string(nil), protocols...) }
}

//WithSendBufferSize sets the sink backpressure ceiling in bytes.
func WithSendBufferSize(n int) Option {
	return func(c *Config) { c.SendBufferSize = n }
}

//WithReceiveBufferSize sets the ceiling of received but unconsumed bytes. Exceeding
// it closes the connection.
func WithReceiveBufferSize(n int) Option {
	return func(c *Config) { c.ReceiveBufferSize = n }
}

func WithBufferPollInterval(d time.Duration) Option {
	return func(c *Config) { c.BufferPollInterval = d }
}

func WithCloseTimeout(d time.Duration) Option {
	return func(c *Config) { c.CloseTimeout = d }
}

//WithInterface selects the host websocket API. Connecting fails if the runtime lacks it.
func WithInterface(iface Interface) Option {
	return func(c *Config) { c.Interface = iface }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(c *Config) { c.Logger = logger }
}

//WithHostDialer replaces the platform host socket, mostly useful for tests.
func WithHostDialer(dialer HostDialer) Option {
	return func(c *Config) { c.Dialer = dialer }
}
