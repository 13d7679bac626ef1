package app

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/options"
)

type testOptions struct {
	Mqtt *options.MqttOptions `mapstructure:"mqtt"`
	Log  *log.Options         `mapstructure:"log"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{Mqtt: options.NewMqttOptions(), Log: log.NewOptions()}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	errs := append(o.Mqtt.Validate(), o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	t.Cleanup(func() {
		viper.Reset()
		cfgFile = ""
	})
}

func execute(a *App, args ...string) error {
	cmd := a.Command()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestAppLayersConfigAndFlags(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mqtt:\n  topic-root: mesh/test\nlog:\n  level: debug\n"), 0o600))

	opts := newTestOptions()
	ran := false
	a := NewApp("test-node", "test",
		WithOptions(opts),
		WithDefaultValidArgs(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)

	require.NoError(t, execute(a, "--config", path, "--mqtt.broker", "tcp://10.0.0.1:1883"))
	assert.True(t, ran)
	assert.True(t, opts.completed)
	assert.Equal(t, "tcp://10.0.0.1:1883", opts.Mqtt.Broker, "flag")
	assert.Equal(t, "mesh/test", opts.Mqtt.TopicRoot, "config file")
	assert.Equal(t, "debug", opts.Log.Level, "config file")
	assert.Equal(t, options.NewMqttOptions().KeepAlive, opts.Mqtt.KeepAlive, "default")
}

func TestAppRejectsInvalidOptions(t *testing.T) {
	resetViper(t)

	ran := false
	a := NewApp("test-node", "test",
		WithOptions(newTestOptions()),
		WithDefaultValidArgs(),
		WithRunFunc(func() error {
			ran = true
			return nil
		}),
	)

	assert.Error(t, execute(a, "--log.format", "xml"))
	assert.False(t, ran)
}

func TestAppRejectsArgs(t *testing.T) {
	resetViper(t)

	a := NewApp("test-node", "test",
		WithOptions(newTestOptions()),
		WithDefaultValidArgs(),
		WithRunFunc(func() error { return nil }),
	)
	assert.Error(t, execute(a, "extra"))
}

func TestAppMissingConfigFile(t *testing.T) {
	resetViper(t)

	a := NewApp("test-node", "test",
		WithOptions(newTestOptions()),
		WithRunFunc(func() error { return nil }),
	)
	assert.Error(t, execute(a, "--config", filepath.Join(t.TempDir(), "absent.yaml")))
}
