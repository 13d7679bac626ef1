package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"
	genericapiserver "k8s.io/apiserver/pkg/server"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/meshnode/internal/meshnode/hal"
	"github.com/autopeer-io/meshnode/internal/meshnode/staging"
	"github.com/autopeer-io/meshnode/internal/meshnode/wire"
	"github.com/autopeer-io/meshnode/internal/pkg/mqtt/paths"
	"github.com/autopeer-io/meshnode/pkg/log"
	"github.com/autopeer-io/meshnode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/meshnode/pkg/mqtt/topic"
	"github.com/autopeer-io/meshnode/pkg/options"
)

type stageOptions struct {
	S3   *options.S3Options
	Mqtt *options.MqttOptions
	Hal  *options.HalOptions
	Dfu  *options.DfuOptions
	Log  *log.Options

	Object string
	// Start publishes a start request for the staged image to Target.
	Start     bool
	Target    string
	BuildID   uint32
	Major     uint16
	Minor     uint16
	ChunkSize uint32
}

func newStageOptions() *stageOptions {
	return &stageOptions{
		S3:        options.NewS3Options(),
		Mqtt:      options.NewMqttOptions(),
		Hal:       options.NewHalOptions(),
		Dfu:       options.NewDfuOptions(),
		Log:       log.NewOptions(),
		ChunkSize: 256,
	}
}

func (o *stageOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.S3.AddFlags(fss.FlagSet("s3"))
	o.Mqtt.AddFlags(fss.FlagSet("mqtt"))
	o.Log.AddFlags(fss.FlagSet("log"))

	fs := fss.FlagSet("stage")
	fs.StringVar(&o.Hal.StagingPath, "hal.staging-path", o.Hal.StagingPath, "File backing the staging partition.")
	fs.Int64Var(&o.Hal.StagingSize, "hal.staging-size", o.Hal.StagingSize, "Size of the staging partition in bytes.")
	fs.Uint32Var(&o.Dfu.ImageStartOffset, "dfu.image-start-offset", o.Dfu.ImageStartOffset, "Offset of the image inside the staging partition.")
	fs.IntVar(&o.Dfu.CopyBufferSize, "dfu.copy-buffer-size", o.Dfu.CopyBufferSize, "Buffer size used while staging.")
	fs.StringVar(&o.Object, "object", o.Object, "Object key of the image in the bucket.")
	fs.BoolVar(&o.Start, "start", o.Start, "Publish a start request for the staged image.")
	fs.StringVar(&o.Target, "target", o.Target, "Hex node id to update. Required with --start.")
	fs.Uint32Var(&o.BuildID, "build-id", o.BuildID, "Build id of the image.")
	fs.Uint16Var(&o.Major, "major", o.Major, "Major version of the image.")
	fs.Uint16Var(&o.Minor, "minor", o.Minor, "Minor version of the image.")
	fs.Uint32Var(&o.ChunkSize, "chunk-size", o.ChunkSize, "Chunk size the transfer engine should use.")
	return fss
}

func (o *stageOptions) Complete() error {
	return nil
}

func (o *stageOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.S3.Validate()...)
	errs = append(errs, o.Dfu.Validate()...)
	errs = append(errs, o.Log.Validate()...)

	if o.Object == "" {
		errs = append(errs, errors.New("--object must not be empty"))
	}
	if o.Start {
		errs = append(errs, o.Mqtt.Validate()...)
		if _, err := mqtttopic.ParseNodeID(o.Target); err != nil {
			errs = append(errs, fmt.Errorf("--target: %w", err))
		}
	}
	return utilerrors.NewAggregate(errs)
}

func newStageCommand() *cobra.Command {
	opts := newStageOptions()
	cmd := &cobra.Command{
		Use:          "stage",
		Short:        "Load an image from the firmware bucket into the staging partition",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			log.Init(opts.Log)
			defer func() { _ = log.Sync() }()

			return runStage(genericapiserver.SetupSignalContext(), cmd, opts)
		},
	}

	fs := cmd.Flags()
	for _, f := range opts.Flags().FlagSets {
		fs.AddFlagSet(f)
	}
	return cmd
}

func runStage(ctx context.Context, cmd *cobra.Command, opts *stageOptions) error {
	fetcher, err := staging.NewFetcher(opts.S3)
	if err != nil {
		return err
	}
	if err := fetcher.CheckBucket(ctx); err != nil {
		return err
	}

	part, err := hal.OpenFilePartition(opts.Hal.StagingPath, opts.Hal.StagingSize)
	if err != nil {
		return err
	}
	defer part.Close()

	res, err := fetcher.Stage(ctx, opts.Object, part, opts.Dfu.ImageStartOffset, opts.Dfu.CopyBufferSize)
	if err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("Object:", opts.Object)
	table.AddRow("Partition:", opts.Hal.StagingPath)
	table.AddRow("Offset:", opts.Dfu.ImageStartOffset)
	table.AddRow("Size:", res.Size)
	table.AddRow("CRC:", fmt.Sprintf("%#04x", res.CRC))
	fmt.Fprintln(cmd.OutOrStdout(), table)

	if !opts.Start {
		return nil
	}
	return publishStart(ctx, opts, res)
}

func publishStart(ctx context.Context, opts *stageOptions, res staging.Result) error {
	target, _ := mqtttopic.ParseNodeID(opts.Target)
	msg := &wire.DfuStart{
		Target:    target,
		ImageSize: res.Size,
		ChunkSize: opts.ChunkSize,
		CRC:       res.CRC,
		Major:     opts.Major,
		Minor:     opts.Minor,
		BuildID:   opts.BuildID,
	}
	payload, err := msg.MarshalBinary()
	if err != nil {
		return err
	}

	client, err := mqtt.NewClient(opts.Mqtt.ToClientConfig())
	if err != nil {
		return err
	}
	if err := client.Start(ctx); err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		client.Disconnect(dctx)
	}()

	cctx, cancel := context.WithTimeout(ctx, opts.Mqtt.ConnectTimeout)
	defer cancel()
	if err := client.AwaitConnection(cctx); err != nil {
		return fmt.Errorf("connect to %s: %w", opts.Mqtt.Broker, err)
	}

	topic := mqtttopic.NewBuilder(opts.Mqtt.TopicRoot).Node(paths.DfuStart, target)
	if err := client.Publish(ctx, topic, 1, false, payload); err != nil {
		return err
	}

	log.Info("Start request published", "topic", topic, "target", opts.Target, "size", res.Size)
	return nil
}
