/* Copyright 2023 Nordeck IT + Consulting GmbH
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package widgettoolkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"golang.org/x/sync/singleflight"
)

// OpenID request states reported by the host.
const (
	openIDAllowed = "allowed"
	openIDBlocked = "blocked"
	openIDRequest = "request"
)

// OpenIDToken proves the user's identity to third party services.
type OpenIDToken struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	MatrixServerName string `json:"matrix_server_name"`
	TokenType        string `json:"token_type"`
}

// OpenIDBlockedError is returned when the user or the client refused to hand
// out an OpenID token.
type OpenIDBlockedError struct{}

func (OpenIDBlockedError) Error() string {
	return "widgettoolkit: OpenID token request was blocked"
}

// tokenCache is a cached token and the time it expires at. The zero value is
// an empty cache.
type tokenCache struct {
	value     *OpenIDToken
	expiresAt time.Time
}

func newTokenCache(token *OpenIDToken, issuedAt time.Time) tokenCache {
	return tokenCache{
		value:     token,
		expiresAt: issuedAt.Add(time.Duration(token.ExpiresIn) * time.Second),
	}
}

// isValid reports whether the token can still be handed out at now, keeping
// leeway before the actual expiry.
func (c tokenCache) isValid(now time.Time, leeway time.Duration) bool {
	return c.value != nil && now.Before(c.expiresAt.Add(-leeway))
}

// openIDProvider hands out OpenID tokens. Concurrent callers share a single
// outstanding host request; a failure empties the cache so the next call
// starts over.
type openIDProvider struct {
	fetch  func(ctx context.Context) (*OpenIDToken, error)
	clock  func() time.Time
	leeway time.Duration

	group singleflight.Group
	mu    sync.Mutex
	cache tokenCache
}

// cached returns the cached token if it is still valid.
func (p *openIDProvider) cached() (*OpenIDToken, bool) {
	p.mu.Lock()
	cache := p.cache
	p.mu.Unlock()
	if cache.isValid(p.clock(), p.leeway) {
		return cache.value, true
	}
	return nil, false
}

func (p *openIDProvider) token(ctx context.Context) (*OpenIDToken, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	// The shared request must outlive the caller that happened to start it.
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan("openid", func() (interface{}, error) {
		// A flight may have refreshed the cache since the check above.
		if token, ok := p.cached(); ok {
			return token, nil
		}
		token, err := p.fetch(shared)
		p.mu.Lock()
		defer p.mu.Unlock()
		if err != nil {
			p.cache = tokenCache{}
			return nil, err
		}
		p.cache = newTokenCache(token, p.clock())
		return token, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*OpenIDToken), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RequestOpenIDConnectToken returns an OpenID token for the current user,
// reusing a cached one until shortly before it expires.
func (w *WidgetAPI) RequestOpenIDConnectToken(ctx context.Context) (*OpenIDToken, error) {
	return w.openID.token(ctx)
}

// fetchOpenIDToken performs one get_openid round trip. If the host needs to
// ask the user first, it answers with state "request" and delivers the token
// later as an openid_credentials broadcast.
func (w *WidgetAPI) fetchOpenIDToken(ctx context.Context) (*OpenIDToken, error) {
	// Only one token request is in flight per session, so until the host
	// told us the id of our request any credentials broadcast is ours.
	var originalRequestID atomic.Pointer[string]
	ex := newExchange(func(b Broadcast) bool {
		creds, ok := b.(OpenIDCredentialsBroadcast)
		if !ok {
			return false
		}
		id := originalRequestID.Load()
		return id == nil || *id == "" || *id == creds.OriginalRequestID
	})
	unsubscribe := w.bus.subscribe(spec.ActionOpenIDCredentials, ex)
	defer unsubscribe()

	raw, err := w.transport.SendRequest(ctx, spec.ActionGetOpenID, struct{}{})
	if err != nil {
		return nil, err
	}
	var res OpenIDCredentialsBroadcast
	if err = json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("widgettoolkit: bad get_openid response: %w", err)
	}
	switch res.State {
	case openIDAllowed:
		return &res.OpenIDToken, nil
	case openIDBlocked:
		return nil, OpenIDBlockedError{}
	case openIDRequest:
	default:
		return nil, fmt.Errorf("widgettoolkit: unknown OpenID state %q", res.State)
	}

	originalRequestID.Store(&res.OriginalRequestID)
	b, err := ex.wait(ctx)
	if err != nil {
		return nil, err
	}
	creds := b.(OpenIDCredentialsBroadcast)
	if creds.State != openIDAllowed {
		return nil, OpenIDBlockedError{}
	}
	return &creds.OpenIDToken, nil
}
