package widgettoolkit_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	widgettoolkit "github.com/nordeck/matrix-widget-toolkit-sub000"
	"github.com/nordeck/matrix-widget-toolkit-sub000/spec"
	"github.com/nordeck/matrix-widget-toolkit-sub000/widgettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testToken = widgettoolkit.OpenIDToken{
	AccessToken:      "access-token",
	ExpiresIn:        3600,
	MatrixServerName: widgettest.ServerName,
	TokenType:        "Bearer",
}

func TestOpenIDConcurrentCallersShareRequest(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)

	release := make(chan struct{})
	var calls atomic.Int32
	host.Handle(spec.ActionGetOpenID, func(spec.RawJSON) (interface{}, error) {
		calls.Add(1)
		<-release
		return widgettoolkit.OpenIDCredentialsBroadcast{State: "allowed", OpenIDToken: testToken}, nil
	})

	var wg sync.WaitGroup
	tokens := make([]*widgettoolkit.OpenIDToken, 2)
	for i := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := api.RequestOpenIDConnectToken(testContext(t))
			assert.NoError(t, err)
			tokens[i] = token
		}()
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	require.NotNil(t, tokens[0])
	assert.Same(t, tokens[0], tokens[1])
	assert.Equal(t, testToken, *tokens[0])
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestOpenIDTokenCachedUntilShortlyBeforeExpiry(t *testing.T) {
	host := widgettest.New()
	c := &clock{now: time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)}
	api := newWidget(t, host, widgetID, nil, widgettoolkit.WithClock(c.Now))
	ctx := testContext(t)

	first, err := api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-token", first.AccessToken)

	c.Advance(3600*time.Second - 31*time.Second)
	cached, err := api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	assert.Same(t, first, cached)
	assert.Len(t, host.Calls(spec.ActionGetOpenID), 1)

	c.Advance(2 * time.Second)
	_, err = api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	assert.Len(t, host.Calls(spec.ActionGetOpenID), 2)
}

func TestOpenIDLeewayOption(t *testing.T) {
	host := widgettest.New()
	c := &clock{now: time.Date(2023, 6, 1, 9, 0, 0, 0, time.UTC)}
	api := newWidget(t, host, widgetID, nil, widgettoolkit.WithClock(c.Now), widgettoolkit.WithOpenIDLeeway(10*time.Minute))
	ctx := testContext(t)

	_, err := api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	c.Advance(50*time.Minute + time.Second)
	_, err = api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	assert.Len(t, host.Calls(spec.ActionGetOpenID), 2)
}

func TestOpenIDFailureIsNotCached(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	ctx := testContext(t)

	host.SetOpenID("blocked", widgettoolkit.OpenIDToken{})
	_, err := api.RequestOpenIDConnectToken(ctx)
	assert.ErrorAs(t, err, &widgettoolkit.OpenIDBlockedError{})

	host.SetOpenID("allowed", testToken)
	token, err := api.RequestOpenIDConnectToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, testToken, *token)
	assert.Len(t, host.Calls(spec.ActionGetOpenID), 2)
}

func TestOpenIDTokenAfterUserConfirmation(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	host.SetOpenID("request", testToken)

	done := make(chan *widgettoolkit.OpenIDToken, 1)
	go func() {
		token, err := api.RequestOpenIDConnectToken(testContext(t))
		assert.NoError(t, err)
		done <- token
	}()
	require.Eventually(t, func() bool { return host.EmitOpenIDCredentials("allowed") }, time.Second, time.Millisecond)

	token := <-done
	require.NotNil(t, token)
	assert.Equal(t, testToken, *token)
	assert.Equal(t, 0, host.Subscribers(spec.ActionOpenIDCredentials))
}

func TestOpenIDRefusedAfterUserConfirmation(t *testing.T) {
	host := widgettest.New()
	api := newWidget(t, host, widgetID, nil)
	host.SetOpenID("request", testToken)

	done := make(chan error, 1)
	go func() {
		_, err := api.RequestOpenIDConnectToken(testContext(t))
		done <- err
	}()
	require.Eventually(t, func() bool { return host.EmitOpenIDCredentials("blocked") }, time.Second, time.Millisecond)
	assert.ErrorAs(t, <-done, &widgettoolkit.OpenIDBlockedError{})
}
