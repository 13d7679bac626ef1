package main

import (
	_ "go.uber.org/automaxprocs"

	"github.com/autopeer-io/meshnode/cmd/meshnode/app"
)

func main() {
	app.NewApp().Run()
}
