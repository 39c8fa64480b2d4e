package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fsismondi/ioppytest-sub000/pkg/bus"
	"github.com/fsismondi/ioppytest-sub000/pkg/wire"
)

func startBroker(t *testing.T) (*Server, string) {
	t.Helper()
	srv := NewServer(ServerConfig{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Stop()
		ts.Close()
	})
	return srv, ts.URL
}

func dialBroker(t *testing.T, httpURL string) *Client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(httpURL, "http") + PathBus
	c, err := Dial(context.Background(), url, ClientConfig{DialAttempts: 1})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func receive(t *testing.T, ch <-chan *wire.Envelope) *wire.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func TestBrokerPublishSubscribe(t *testing.T) {
	srv, url := startBroker(t)
	coordinator := dialBroker(t, url)
	console := dialBroker(t, url)

	got := make(chan *wire.Envelope, 8)
	_, err := console.Subscribe([]string{"event.testcase.*"}, func(env *wire.Envelope) { got <- env })
	require.NoError(t, err)

	env, err := wire.NewEnvelope(&wire.TestCaseReady{TestCaseID: "TD_1", Objective: "check GET"})
	require.NoError(t, err)
	require.NoError(t, coordinator.Publish(context.Background(), env))

	msg, err := receive(t, got).Decode()
	require.NoError(t, err)
	assert.Equal(t, "TD_1", msg.(*wire.TestCaseReady).TestCaseID)
	assert.Equal(t, 2, srv.ConnectionCount())
}

func TestBrokerInProcessAndRemote(t *testing.T) {
	srv, url := startBroker(t)
	remote := dialBroker(t, url)

	got := make(chan *wire.Envelope, 1)
	_, err := remote.Subscribe([]string{wire.RouteTestSuiteStarted}, func(env *wire.Envelope) { got <- env })
	require.NoError(t, err)

	env, err := wire.NewEnvelope(&wire.TestSuiteStarted{})
	require.NoError(t, err)
	require.NoError(t, srv.Bus().Publish(context.Background(), env))

	assert.Equal(t, wire.RouteTestSuiteStarted, receive(t, got).RoutingKey)
}

func TestBrokerRequestReply(t *testing.T) {
	_, url := startBroker(t)
	analyzer := bus.NewClient(dialBroker(t, url), bus.ClientOptions{Source: "analyzer"})
	coordinator := bus.NewClient(dialBroker(t, url), bus.ClientOptions{Source: "test-coordinator"})

	_, err := analyzer.Subscribe([]string{wire.RouteAnalyze}, func(env *wire.Envelope, msg wire.Message) {
		req := msg.(*wire.AnalyzeTestCase)
		_ = analyzer.Reply(context.Background(), env, &wire.AnalysisReply{
			ReplyStatus: wire.ReplyStatus{OK: true},
			TestCaseID:  req.TestCaseID,
			Partials:    []wire.AnalysisEntry{{Verdict: "pass", Description: "frame ok"}},
		})
	})
	require.NoError(t, err)

	reply, err := coordinator.Request(context.Background(), &wire.AnalyzeTestCase{TestCaseID: "TD_3", Value: "AA=="},
		bus.RequestOptions{Timeout: 2 * time.Second})
	require.NoError(t, err)

	ar := reply.(*wire.AnalysisReply)
	assert.Equal(t, "TD_3", ar.TestCaseID)
	require.Len(t, ar.Partials, 1)
	assert.Equal(t, "pass", ar.Partials[0].Verdict)
}

func TestBrokerUnsubscribe(t *testing.T) {
	srv, url := startBroker(t)
	c := dialBroker(t, url)

	got := make(chan *wire.Envelope, 1)
	sub, err := c.Subscribe([]string{"#"}, func(env *wire.Envelope) { got <- env })
	require.NoError(t, err)
	assert.Equal(t, 1, srv.Bus().SubscriptionCount())

	require.NoError(t, sub.Unsubscribe())
	assert.Equal(t, 0, srv.Bus().SubscriptionCount())

	env, err := wire.NewEnvelope(&wire.TestSuiteAbort{})
	require.NoError(t, err)
	require.NoError(t, c.Publish(context.Background(), env))

	select {
	case env := <-got:
		t.Fatalf("unexpected delivery on %s", env.RoutingKey)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBrokerRejectsInvalidPattern(t *testing.T) {
	_, url := startBroker(t)
	c := dialBroker(t, url)

	_, err := c.Subscribe([]string{"a.#b"}, func(*wire.Envelope) {})
	assert.ErrorIs(t, err, wire.ErrInvalidPattern)
}

func TestBrokerDisconnectCleansUp(t *testing.T) {
	srv, url := startBroker(t)
	c := dialBroker(t, url)
	_, err := c.Subscribe([]string{"control.#"}, func(*wire.Envelope) {})
	require.NoError(t, err)

	require.NoError(t, c.Close())
	<-c.Done()

	require.Eventually(t, func() bool {
		return srv.ConnectionCount() == 0 && srv.Bus().SubscriptionCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	env, err := wire.NewEnvelope(&wire.TestSuiteAbort{})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Publish(context.Background(), env), bus.ErrClosed)
}

func TestBrokerHTTPEndpoints(t *testing.T) {
	srv, url := startBroker(t)
	dialBroker(t, url)
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(url + PathHealthz)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))

	resp, err = http.Get(url + PathStatus)
	require.NoError(t, err)
	defer resp.Body.Close()
	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, 1, st.Connections)

	resp2, err := http.Post(url+PathHealthz, "text/plain", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp2.StatusCode)
}

func TestServerStartStop(t *testing.T) {
	srv := NewServer(ServerConfig{Address: "127.0.0.1:0"})
	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, strings.HasPrefix(srv.URL(), "ws://127.0.0.1:"))

	c, err := Dial(context.Background(), srv.URL(), ClientConfig{DialAttempts: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, srv.Stop())
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client not notified of broker shutdown")
	}
}

func TestDialRetriesThenFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/bus", ClientConfig{
		DialAttempts: 2,
		Backoff:      BackoffConfig{Initial: time.Millisecond},
	})
	assert.Error(t, err)
}
