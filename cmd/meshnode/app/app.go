package app

import (
	"fmt"

	genericapiserver "k8s.io/apiserver/pkg/server"

	"github.com/autopeer-io/meshnode/cmd/meshnode/app/options"
	"github.com/autopeer-io/meshnode/pkg/app"
	"github.com/autopeer-io/meshnode/pkg/log"
)

const (
	commandName = "meshnode"
	commandDesc = `The meshnode agent runs on every node of a mesh. It tracks neighbors
from their heartbeats, answers info and neighbor table requests, and updates
the firmware of the node itself or of its peers from the staging partition.`
)

func NewApp() *app.App {
	opts := options.NewNodeOptions()
	application := app.NewApp(
		commandName,
		"Launch a mesh node agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithWatchConfig(),
		app.WithCommands(newStageCommand()),
		app.WithRunFunc(run(opts)),
	)
	return application
}

func run(opts *options.NodeOptions) app.RunFunc {
	return func() error {
		log.Init(opts.Log)
		defer func() { _ = log.Sync() }()

		ctx := genericapiserver.SetupSignalContext()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
