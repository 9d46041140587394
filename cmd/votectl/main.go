package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli"
	"go.uber.org/zap"
)

func main() {
	app := cli.NewApp()
	app.Name = "votectl"
	app.Version = "0.1.0"
	app.Compiled = time.Now()
	app.Usage = "operator tool for the shadow-vote gateway: instance status, cache keys and decryption authorizations"
	app.UsageText = "votectl [options] command [command options] [arguments...]"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug, d",
			Usage: "log to stderr at debug level",
		},
	}

	app.Commands = []cli.Command{
		statusCmd(),
		cacheKeyCmd(),
		signCmd(),
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) *zap.Logger {
	if !c.GlobalBool("debug") {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
