package wsflow

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

const DefaultUserAgent = "WebSocketFlowExample/1.0"

type (
	openConnectionParamsRepo interface {
		Get(ctx context.Context) (OpenConnectionParams, error)
	}

	// OpenConnectionParams identifies the remote end: its URL and the fixed headers sent on the handshake.
	OpenConnectionParams struct {
		URL    url.URL
		Header http.Header
	}

	OpenConnectionParamsGetter func(ctx context.Context) (OpenConnectionParams, error)

	OpenConnectionParamsRepo struct {
		logger Logger
		getter OpenConnectionParamsGetter
	}
)

func (r OpenConnectionParamsRepo) Get(
	ctx context.Context,
) (params OpenConnectionParams, err error) {
	params, err = r.getter(ctx)
	if err != nil {
		r.logger.Errorf("cannot fetch open connection params: %s", err)
		return
	}
	if err = params.validate(); err != nil {
		r.logger.Errorf("invalid open connection params: %s", err)
	}
	return
}

func (p OpenConnectionParams) validate() error {
	switch p.URL.Scheme {
	case "ws", "wss":
	default:
		return WrapErrorUnrecoverableConnection(
			errors.Errorf("unsupported scheme %q", p.URL.Scheme), p.URL)
	}
	if p.URL.Host == "" {
		return WrapErrorUnrecoverableConnection(errors.New("missing host"), p.URL)
	}
	return nil
}

func NewOpenConnectionParamsRepo(
	logger Logger,
	getter OpenConnectionParamsGetter,
) OpenConnectionParamsRepo {
	return OpenConnectionParamsRepo{getter: getter, logger: logger}
}

// StaticOpenConnectionParams always resolves to rawURL, sending userAgent as User-Agent.
// http(s) URLs are rewritten to their ws(s) equivalent.
func StaticOpenConnectionParams(rawURL, userAgent string) OpenConnectionParamsGetter {
	return func(context.Context) (OpenConnectionParams, error) {
		u, err := url.Parse(strings.TrimSpace(rawURL))
		if err != nil {
			return OpenConnectionParams{}, WrapErrorUnrecoverableConnection(err, url.URL{Opaque: rawURL})
		}

		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		case "http":
			u.Scheme = "ws"
		}

		header := http.Header{}
		if userAgent == "" {
			userAgent = DefaultUserAgent
		}
		header.Set("User-Agent", userAgent)

		return OpenConnectionParams{URL: *u, Header: header}, nil
	}
}
