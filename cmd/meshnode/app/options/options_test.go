package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeOptionsDefaults(t *testing.T) {
	o := NewNodeOptions()
	require.NoError(t, o.Complete())
	require.NoError(t, o.Validate())
	assert.Equal(t, "meshnode", o.Log.Name)

	cfg, err := o.Config()
	require.NoError(t, err)
	assert.Same(t, o.DfuOptions, cfg.DfuOptions)
	assert.Same(t, o.HalOptions, cfg.HalOptions)
}

func TestNodeOptionsFlags(t *testing.T) {
	o := NewNodeOptions()
	fss := o.Flags()
	for _, name := range []string{"mqtt", "hal", "dfu", "neighbor", "http", "log"} {
		assert.Contains(t, fss.Order, name)
	}

	require.NoError(t, fss.FlagSet("dfu").Parse([]string{"--dfu.power-timeout=9s"}))
	assert.Equal(t, "9s", o.DfuOptions.PowerTimeout.String())
}

func TestNodeOptionsValidateAggregates(t *testing.T) {
	o := NewNodeOptions()
	o.HalOptions.ResetMode = "halt"
	o.HalOptions.FlashBlockSize = 3000
	o.MqttOptions.Broker = ""

	err := o.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reset-mode")
	assert.Contains(t, err.Error(), "flash-block-size")
}
