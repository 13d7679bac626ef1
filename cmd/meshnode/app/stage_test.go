package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOptionsValidate(t *testing.T) {
	o := newStageOptions()
	assert.Error(t, o.Validate(), "object is required")

	o.Object = "sensor/2.1.bin"
	require.NoError(t, o.Validate())

	o.Start = true
	assert.Error(t, o.Validate(), "target is required with --start")

	o.Target = "00000000000000ab"
	require.NoError(t, o.Validate())
}

func TestStageCommandFlags(t *testing.T) {
	cmd := newStageCommand()
	for _, name := range []string{"object", "target", "start", "s3.endpoint", "mqtt.broker", "hal.staging-path"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}
