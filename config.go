package wsflow

import (
	"net/http"
	"net/url"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/pkg/errors"
)

const DefaultEchoURL = "wss://echo.websocket.events"

// Config describes one flow: where it connects to and the socket timeouts.
type Config struct {
	URL              string        `yaml:"url"`
	UserAgent        string        `yaml:"user_agent"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	CloseGracePeriod time.Duration `yaml:"close_grace_period"`
	PingInterval     time.Duration `yaml:"ping_interval"`
}

func DefaultConfig() Config {
	return Config{
		URL:              DefaultEchoURL,
		UserAgent:        DefaultUserAgent,
		ConnectTimeout:   10 * time.Second,
		WriteTimeout:     DefaultWsConnectionOptions.WriteTimeout,
		CloseGracePeriod: DefaultWsConnectionOptions.CloseGracePeriod,
	}
}

// WithDefaults fills every zero field from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.URL == "" {
		c.URL = d.URL
	}
	if c.UserAgent == "" {
		c.UserAgent = d.UserAgent
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.CloseGracePeriod <= 0 {
		c.CloseGracePeriod = d.CloseGracePeriod
	}
	return c
}

func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return errors.Wrapf(ErrInvalidConfig, "url %q: %s", c.URL, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return errors.Wrapf(ErrInvalidConfig, "url %q: unsupported scheme", c.URL)
	}
	if u.Host == "" {
		return errors.Wrapf(ErrInvalidConfig, "url %q: missing host", c.URL)
	}
	if c.PingInterval < 0 {
		return errors.Wrapf(ErrInvalidConfig, "ping_interval must not be negative, got %s", c.PingInterval)
	}
	return nil
}

func (c Config) ConnectionOptions() WsConnectionOptions {
	return WsConnectionOptions{
		WriteTimeout:     c.WriteTimeout,
		CloseGracePeriod: c.CloseGracePeriod,
		PingInterval:     c.PingInterval,
	}
}

func NewDialer(c Config) *websocket.Dialer {
	return &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.ConnectTimeout,
	}
}

// NewConnectionFactoryFromConfig builds websocket connections described by c.
func NewConnectionFactoryFromConfig(logger Logger, c Config) (ConnectionFactory, error) {
	c = c.WithDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	repo := NewOpenConnectionParamsRepo(
		logger.WithField("repo", "open_conn_params"),
		StaticOpenConnectionParams(c.URL, c.UserAgent),
	)
	return NewWebsocketFactory(logger, NewDialer(c), repo, ErrorAdapters{}, c.ConnectionOptions()), nil
}

// NewFlowFromConfig wires a Flow over a websocket connection described by c.
func NewFlowFromConfig(logger Logger, c Config) (*Flow, error) {
	factory, err := NewConnectionFactoryFromConfig(logger, c)
	if err != nil {
		return nil, err
	}
	return NewFlow(logger, factory), nil
}
