package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/entrhq/browser-agent/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testConfig(mode config.BrowserMode) config.Config {
	cfg := config.Default()
	cfg.OpenAIAPIKey = "sk-test"
	cfg.BrowserMode = mode
	cfg.FreshUserDataDir = "/tmp/agent-profile"
	return cfg
}

func TestFactory_OwnNeverLaunches(t *testing.T) {
	launcher := &mockLauncher{}
	f := NewFactory(testConfig(config.ModeOwn), WithProber(newFakeProber()), WithLauncher(launcher))

	sess, err := f.Acquire(context.Background())
	assert.Nil(t, sess)

	var attachErr *AttachError
	require.ErrorAs(t, err, &attachErr)
	assert.Equal(t, []string{"http://127.0.0.1:9222", "http://localhost:9222"}, attachErr.Candidates)
	assert.Contains(t, err.Error(), "--remote-debugging-port=9222")
	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestFactory_OwnAttaches(t *testing.T) {
	f := NewFactory(testConfig(config.ModeOwn), WithProber(newFakeProber("http://localhost:9222")), WithLauncher(&mockLauncher{}))

	sess, err := f.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.ModeOwn, sess.Mode)
	assert.Equal(t, "http://localhost:9222", sess.CDPURL)
	assert.Equal(t, "ws://localhost:9222/devtools/browser/abc", sess.WebSocketURL)
	assert.False(t, sess.Launched())
}

func TestFactory_FreshLaunchesOnce(t *testing.T) {
	proc := &fakeProcess{pid: 4242}
	launcher := &mockLauncher{}
	launcher.On("Launch", mock.Anything, mock.MatchedBy(func(o LaunchOptions) bool {
		return o.ProfileDir == "/tmp/agent-profile" && o.Port == 9222
	})).Return(&Launched{
		Process:    proc,
		CDPURL:     "http://127.0.0.1:9222",
		ProfileDir: "/tmp/agent-profile",
		Port:       9222,
	}, nil).Once()

	prober := newFakeProber("http://127.0.0.1:9222")
	f := NewFactory(testConfig(config.ModeFresh), WithProber(prober), WithLauncher(launcher))

	sess, err := f.Acquire(context.Background())
	require.NoError(t, err)
	launcher.AssertNumberOfCalls(t, "Launch", 1)
	assert.Empty(t, prober.calls, "fresh mode does not probe for an existing browser")

	assert.Equal(t, config.ModeFresh, sess.Mode)
	assert.Equal(t, "/tmp/agent-profile", sess.ProfileDir)
	assert.True(t, sess.Launched())

	require.NoError(t, sess.Close(false))
	assert.Equal(t, StateTornDown, sess.State())
	assert.Equal(t, 1, proc.terminated)
}

func TestFactory_FreshLaunchFailure(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	f := NewFactory(testConfig(config.ModeFresh), WithProber(newFakeProber()), WithLauncher(launcher))
	_, err := f.Acquire(context.Background())

	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	assert.Equal(t, "/tmp/agent-profile", launchErr.ProfileDir)
}

func TestFactory_AutoFallsBackExactlyOnce(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Launch", mock.Anything, mock.Anything).Return(&Launched{
		Process: &fakeProcess{pid: 1},
		CDPURL:  "http://127.0.0.1:9222",
	}, nil).Once()

	prober := newFakeProber()
	f := NewFactory(testConfig(config.ModeAuto), WithProber(prober), WithLauncher(launcher))

	sess, err := f.Acquire(context.Background())
	require.NoError(t, err)
	launcher.AssertNumberOfCalls(t, "Launch", 1)
	assert.Equal(t, config.ModeFresh, sess.Mode)
	assert.Equal(t, config.ModeAuto, sess.Requested)
	assert.Len(t, prober.calls, 2, "one probe per candidate")
}

func TestFactory_AutoFallbackFailureDoesNotRecurse(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Launch", mock.Anything, mock.Anything).Return(nil, &LaunchError{Reason: "timeout"}).Once()

	prober := newFakeProber()
	f := NewFactory(testConfig(config.ModeAuto), WithProber(prober), WithLauncher(launcher))

	_, err := f.Acquire(context.Background())
	var launchErr *LaunchError
	require.ErrorAs(t, err, &launchErr)
	launcher.AssertNumberOfCalls(t, "Launch", 1)
	assert.Len(t, prober.calls, 2)
}

func TestFactory_AutoAttachesWhenAlive(t *testing.T) {
	launcher := &mockLauncher{}
	f := NewFactory(testConfig(config.ModeAuto), WithProber(newFakeProber("http://127.0.0.1:9222")), WithLauncher(launcher))

	sess, err := f.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.ModeOwn, sess.Mode)
	assert.Equal(t, config.ModeAuto, sess.Requested)
	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestFactory_AutoWithoutCDPSkipsProbe(t *testing.T) {
	launcher := &mockLauncher{}
	launcher.On("Launch", mock.Anything, mock.Anything).Return(&Launched{CDPURL: "http://127.0.0.1:9222"}, nil).Once()

	cfg := testConfig(config.ModeAuto)
	cfg.ConnectExistingCDP = false
	prober := newFakeProber("http://127.0.0.1:9222")

	sess, err := NewFactory(cfg, WithProber(prober), WithLauncher(launcher)).Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.ModeFresh, sess.Mode)
	assert.Empty(t, prober.calls)
}

func TestFactory_Managed(t *testing.T) {
	launcher := &mockLauncher{}
	prober := newFakeProber()
	sess, err := NewFactory(testConfig(config.ModeManaged), WithProber(prober), WithLauncher(launcher)).Acquire(context.Background())
	require.NoError(t, err)

	assert.True(t, sess.Managed())
	assert.Empty(t, sess.CDPURL)
	assert.False(t, sess.Launched())
	assert.Empty(t, prober.calls)
	launcher.AssertNotCalled(t, "Launch", mock.Anything, mock.Anything)
}

func TestFactory_StrategyTypes(t *testing.T) {
	tests := []struct {
		mode config.BrowserMode
		want Strategy
	}{
		{config.ModeOwn, &AttachStrategy{}},
		{config.ModeFresh, &LaunchStrategy{}},
		{config.ModeManaged, &ManagedStrategy{}},
		{config.ModeAuto, &FallbackStrategy{}},
	}
	for _, tt := range tests {
		s, err := NewFactory(testConfig(tt.mode)).Strategy()
		require.NoError(t, err)
		assert.IsType(t, tt.want, s)
		assert.Equal(t, tt.mode, s.Mode())
	}

	_, err := NewFactory(testConfig("remote")).Strategy()
	assert.Error(t, err)
}
