package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"webauth/internal/authflow"
	"webauth/internal/browser"
	"webauth/internal/config"
	"webauth/internal/flowstore"
	"webauth/internal/loopback"
	"webauth/pkg/logging"
	pkgoauth "webauth/pkg/oauth"
)

const discoveryTimeout = 30 * time.Second

// session is one browser surface plus the strategy bound to it. A new
// session is opened for every attempt.
type session struct {
	strategy authflow.Strategy

	// oauth2 is set for OAuth2 flows, for the optional code exchange.
	oauth2 *authflow.OAuth2Strategy

	surface authflow.Surface
	events  <-chan authflow.Event

	// closed fires when the user closes the browser window. Nil for the
	// system browser.
	closed <-chan struct{}

	close func()
}

// sessionOptions carries host-side hooks that are not configuration.
type sessionOptions struct {
	// opener overrides how the system surface opens URLs.
	opener func(url string) error

	// notice receives messages for the user.
	notice io.Writer
}

func openSession(ctx context.Context, cfg config.Config, opts sessionOptions) (*session, error) {
	if cfg.Surface.Type == config.SurfaceEmbedded {
		return openEmbeddedSession(cfg)
	}
	return openSystemSession(ctx, cfg, opts)
}

func openSystemSession(ctx context.Context, cfg config.Config, opts sessionOptions) (*session, error) {
	opener := opts.opener
	if opener == nil {
		opener = func(url string) error {
			if err := loopback.OpenBrowser(url); err != nil {
				logging.Warn("CLI", "Failed to open browser: %v", err)
				if opts.notice != nil {
					fmt.Fprintf(opts.notice, "Open this URL in your browser to sign in:\n\n  %s\n\n", url)
				}
			}
			return nil
		}
	}

	lb, err := loopback.Start(ctx, loopback.Options{
		Port:      cfg.Surface.CallbackPort,
		FieldName: cfg.SAML.FieldName,
		Opener:    opener,
	})
	if err != nil {
		return nil, err
	}

	if cfg.OAuth2.RedirectURI != "" && cfg.OAuth2.RedirectURI != lb.RedirectURI() {
		logging.Warn("CLI", "Ignoring oauth2.redirectURI %s, the system browser redirects to %s", cfg.OAuth2.RedirectURI, lb.RedirectURI())
	}
	cfg.OAuth2.RedirectURI = lb.RedirectURI()
	cfg.SAML.AssertionConsumerURL = lb.AssertionConsumerURL()
	cfg.SAML.AssertionConsumerPattern = ""

	strategy, oauth2Strategy, err := buildStrategy(cfg)
	if err != nil {
		lb.Stop()
		return nil, err
	}

	return &session{
		strategy: strategy,
		oauth2:   oauth2Strategy,
		surface:  lb,
		events:   lb.Events(),
		close:    lb.Stop,
	}, nil
}

func openEmbeddedSession(cfg config.Config) (*session, error) {
	strategy, oauth2Strategy, err := buildStrategy(cfg)
	if err != nil {
		return nil, err
	}

	var script string
	if saml, ok := strategy.(*authflow.SAMLStrategy); ok {
		script = saml.ExtractionScript()
	}

	surface, err := browser.Launch(browser.Options{
		Headless:         cfg.Surface.Headless,
		ExtractionScript: script,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded browser: %w", err)
	}

	return &session{
		strategy: strategy,
		oauth2:   oauth2Strategy,
		surface:  surface,
		events:   surface.Events(),
		closed:   surface.Closed(),
		close: func() {
			if err := surface.Close(); err != nil {
				logging.Debug("CLI", "Closing browser: %v", err)
			}
		},
	}, nil
}

func buildStrategy(cfg config.Config) (authflow.Strategy, *authflow.OAuth2Strategy, error) {
	switch cfg.Protocol {
	case config.ProtocolOAuth2:
		o := cfg.OAuth2
		s, err := authflow.NewOAuth2Strategy(authflow.OAuth2Config{
			Issuer:                o.Issuer,
			AuthorizationEndpoint: o.AuthorizationEndpoint,
			TokenEndpoint:         o.TokenEndpoint,
			ClientID:              o.ClientID,
			ClientSecret:          o.ClientSecret,
			RedirectURI:           o.RedirectURI,
			Scopes:                o.Scopes,
			ResponseType:          o.ResponseType,
			UsePKCE:               o.UsePKCE,
			ExtraParams:           o.ExtraParams,
		}, authflow.WithDiscoveryClient(pkgoauth.NewClient(
			pkgoauth.WithHTTPClient(&http.Client{Timeout: discoveryTimeout}),
		)))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil

	case config.ProtocolSAML:
		s := cfg.SAML
		strategy, err := authflow.NewSAMLStrategy(authflow.SAMLConfig{
			SSOURL:                   s.SSOURL,
			AssertionConsumerURL:     s.AssertionConsumerURL,
			AssertionConsumerPattern: s.AssertionConsumerPattern,
			FieldName:                s.FieldName,
			RelayState:               s.RelayState,
		})
		if err != nil {
			return nil, nil, err
		}
		return strategy, nil, nil

	default:
		return nil, nil, authflow.NewConfigurationError(fmt.Sprintf("unsupported protocol %q", cfg.Protocol), nil)
	}
}

// openStore returns the correlation store selected by cfg and a function
// releasing it.
func openStore(ctx context.Context, cfg config.Config) (authflow.FlowStore, func(), error) {
	switch cfg.Store.Type {
	case config.StoreFile:
		store, err := flowstore.NewFileStore(cfg.Store.Dir, cfg.Store.TTL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil

	case config.StoreRedis:
		client, err := flowstore.NewRedisClient(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		opts := []flowstore.RedisOption{}
		if cfg.Store.TTL > 0 {
			opts = append(opts, flowstore.WithTTL(cfg.Store.TTL))
		}
		return flowstore.NewRedisStore(client, opts...), func() { _ = client.Close() }, nil

	default:
		return authflow.NewMemoryStore(cfg.Store.TTL), func() {}, nil
	}
}
