package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/meshnode/internal/meshnode"
	"github.com/autopeer-io/meshnode/pkg/app"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/options"
)

type NodeOptions struct {
	MqttOptions     *options.MqttOptions     `json:"mqtt" mapstructure:"mqtt"`
	HalOptions      *options.HalOptions      `json:"hal" mapstructure:"hal"`
	DfuOptions      *options.DfuOptions      `json:"dfu" mapstructure:"dfu"`
	NeighborOptions *options.NeighborOptions `json:"neighbor" mapstructure:"neighbor"`
	HttpOptions     *options.HttpOptions     `json:"http" mapstructure:"http"`
	Log             *log.Options             `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*NodeOptions)(nil)

func NewNodeOptions() *NodeOptions {
	return &NodeOptions{
		MqttOptions:     options.NewMqttOptions(),
		HalOptions:      options.NewHalOptions(),
		DfuOptions:      options.NewDfuOptions(),
		NeighborOptions: options.NewNeighborOptions(),
		HttpOptions:     options.NewHttpOptions(),
		Log:             log.NewOptions(),
	}
}

func (o *NodeOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.HalOptions.AddFlags(fss.FlagSet("hal"))
	o.DfuOptions.AddFlags(fss.FlagSet("dfu"))
	o.NeighborOptions.AddFlags(fss.FlagSet("neighbor"))
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *NodeOptions) Complete() error {
	if o.Log.Name == "" {
		o.Log.Name = "meshnode"
	}
	return nil
}

func (o *NodeOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.HalOptions.Validate()...)
	errs = append(errs, o.DfuOptions.Validate()...)
	errs = append(errs, o.NeighborOptions.Validate()...)
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *NodeOptions) Config() (*meshnode.Config, error) {
	return &meshnode.Config{
		MqttOptions:     o.MqttOptions,
		HalOptions:      o.HalOptions,
		DfuOptions:      o.DfuOptions,
		NeighborOptions: o.NeighborOptions,
		HttpOptions:     o.HttpOptions,
	}, nil
}
