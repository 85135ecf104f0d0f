package agent

import (
	"context"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/dreamup/renew-agent/internal/config"
)

// SetProxyCredentials replaces the credentials used to answer proxy auth
// challenges. A nil proxy, or one without a username, turns interception off.
func (p *Page) SetProxyCredentials(proxy *config.Proxy) error {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	wantAuth := proxy != nil && proxy.Username != ""
	if wantAuth {
		p.proxy.Store(proxy)
	} else {
		p.proxy.Store(nil)
	}

	if wantAuth == p.fetchEnabled {
		return nil
	}

	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if wantAuth {
			return fetch.Enable().WithHandleAuthRequests(true).Do(ctx)
		}
		return fetch.Disable().Do(ctx)
	}))
	if err != nil {
		return err
	}
	p.fetchEnabled = wantAuth
	p.logger.Debug("Proxy authentication updated", zap.Bool("enabled", wantAuth))
	return nil
}

// executor returns a context able to issue CDP commands from listener goroutines.
func (p *Page) executor() context.Context {
	c := chromedp.FromContext(p.ctx)
	if c == nil || c.Target == nil {
		return nil
	}
	return cdp.WithExecutor(p.ctx, c.Target)
}

func (p *Page) continueRequest(ev *fetch.EventRequestPaused) {
	ctx := p.executor()
	if ctx == nil {
		return
	}
	if err := fetch.ContinueRequest(ev.RequestID).Do(ctx); err != nil && ctx.Err() == nil {
		p.logger.Debug("Failed to continue paused request", zap.Error(err))
	}
}

func (p *Page) answerAuth(ev *fetch.EventAuthRequired) {
	ctx := p.executor()
	if ctx == nil {
		return
	}

	resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
	if ev.AuthChallenge != nil && ev.AuthChallenge.Source == fetch.AuthChallengeSourceProxy {
		if creds := p.proxy.Load(); creds != nil {
			resp = &fetch.AuthChallengeResponse{
				Response: fetch.AuthChallengeResponseResponseProvideCredentials,
				Username: creds.Username,
				Password: creds.Password,
			}
		}
	}

	if err := fetch.ContinueWithAuth(ev.RequestID, resp).Do(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("Failed to answer proxy auth challenge", zap.Error(err))
	}
}
