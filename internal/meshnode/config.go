package meshnode

import (
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/autopeer-io/meshnode/internal/meshnode/dfu"
	"github.com/autopeer-io/meshnode/internal/meshnode/hal"
	"github.com/autopeer-io/meshnode/internal/meshnode/hub"
	"github.com/autopeer-io/meshnode/internal/meshnode/neighbor"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/meshnode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
	"github.com/autopeer-io/meshnode/pkg/options"
)

type Config struct {
	MqttOptions     *options.MqttOptions
	HalOptions      *options.HalOptions
	DfuOptions      *options.DfuOptions
	NeighborOptions *options.NeighborOptions
	HttpOptions     *options.HttpOptions
}

func (cfg *Config) NewAgent() (*Agent, error) {
	clk := clock.New()

	platform, err := hal.New(cfg.HalOptions, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to init platform: %w", err)
	}

	mqttClient, topicBuilder, err := cfg.initMqttClientAndTopicBuilder(platform.NodeID())
	if err != nil {
		_ = platform.Close()
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	return NewAgent(
		clk,
		platform,
		hub.New(platform.NodeID(), mqttClient, topicBuilder),
		neighbor.NewModule(clk, cfg.NeighborOptions.HeartbeatPeriod,
			neighbor.WithTopologyTimeout(cfg.NeighborOptions.TopologyTimeout)),
		dfu.NewModule(cfg.dfuConfig(), clk),
		cfg.NeighborOptions.SweepInterval,
		cfg.HttpOptions,
	), nil
}

func (cfg *Config) dfuConfig() dfu.Config {
	o := cfg.DfuOptions
	return dfu.Config{
		ImageStartOffset: o.ImageStartOffset,
		CRCTimeout:       o.CRCTimeout,
		TransferTimeout:  o.TransferTimeout,
		FlashTimeout:     o.FlashTimeout,
		PowerTimeout:     o.PowerTimeout,
		RebootDelay:      o.RebootDelay,
		CopyBufferSize:   o.CopyBufferSize,
	}
}

func (cfg *Config) initMqttClientAndTopicBuilder(nodeID uint64) (mqtt.Client, *mqtttopic.Builder, error) {
	topicBuilder := mqtttopic.NewBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("meshnode-%s", mqtttopic.NodeID(nodeID))
	}

	// No timestamp in the payload: the host stamps the will on reception.
	offlinePayload, err := (&wire.OnlineStatus{
		NodeID: nodeID,
		Online: false,
		Reason: "UnexpectedDisconnect",
	}).MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	mqttConfig.WillTopic = topicBuilder.Node(paths.Online, nodeID)
	mqttConfig.WillPayload = offlinePayload
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	mqttClient, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, nil, err
	}

	return mqttClient, topicBuilder, nil
}
