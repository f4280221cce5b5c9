// Command s7cli is a reference command-line front end over the s7
// package, wiring Connect/ReadTag/WriteTag/Register/ReadRegistered together as a worked
// example. It is not part of the library itself.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"s7link/logging"
	"s7link/s7"
)

func main() {
	app := &cli.App{
		Name:  "s7cli",
		Usage: "read, write and watch tags on a Siemens S7 PLC",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "address", Aliases: []string{"a"}, Usage: "PLC address, host[:port]", Required: true},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug-level protocol tracing"},
			&cli.BoolFlag{Name: "trace", Usage: "enable trace-level frame hex dumps"},
			&cli.IntFlag{Name: "rack", Value: 0},
			&cli.IntFlag{Name: "slot", Value: 2},
			&cli.IntFlag{Name: "jobs", Value: 8, Usage: "requested max parallel jobs"},
		},
		Commands: []*cli.Command{
			readCommand(),
			writeCommand(),
			watchCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "s7cli:", err)
		os.Exit(1)
	}
}

func newTracer(c *cli.Context) *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	if c.Bool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}
	if c.Bool("trace") {
		log.SetLevel(logrus.TraceLevel)
	}
	return log
}

func connectClient(c *cli.Context) (*s7.Client, error) {
	tracer := logging.NewTracer(newTracer(c), "s7")
	client, err := s7.NewClient(c.String("address"),
		s7.WithRackSlot(c.Int("rack"), c.Int("slot")),
		s7.WithMaxParallelJobs(uint16(c.Int("jobs"))),
		s7.WithTracer(tracer),
	)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func readCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "read one or more tags and print their values",
		ArgsUsage: "TAG [TAG...]",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "register", Usage: "additionally register (parse and cache) these tags on the client before reading"},
		},
		Action: func(c *cli.Context) error {
			client, err := connectClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Register(c.StringSlice("register")); err != nil {
				return err
			}

			for _, tag := range c.Args().Slice() {
				v, err := client.ReadTag(tag)
				if err != nil {
					fmt.Printf("%s: error: %v\n", tag, err)
					continue
				}
				fmt.Printf("%s = %v\n", tag, v.GoValue())
			}
			return nil
		},
	}
}

func writeCommand() *cli.Command {
	return &cli.Command{
		Name:      "write",
		Usage:     "write a single tag",
		ArgsUsage: "TAG VALUE",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return fmt.Errorf("write requires TAG and VALUE arguments")
			}
			client, err := connectClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			tag := c.Args().Get(0)
			raw := []byte(c.Args().Get(1))
			if err := client.WriteTag(tag, raw); err != nil {
				return err
			}
			fmt.Printf("%s <- %q\n", tag, raw)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:      "watch",
		Usage:     "poll a set of tags repeatedly",
		ArgsUsage: "TAG [TAG...]",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "loops", Value: 0, Usage: "number of polls, 0 for unlimited"},
			&cli.DurationFlag{Name: "wait", Value: time.Second, Usage: "delay between polls"},
		},
		Action: func(c *cli.Context) error {
			client, err := connectClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			tags := c.Args().Slice()
			if err := client.Register(tags); err != nil {
				return err
			}

			loops := c.Int("loops")
			wait := c.Duration("wait")
			for i := 0; loops == 0 || i < loops; i++ {
				values, err := client.ReadRegistered()
				if err != nil {
					return err
				}
				for _, tag := range tags {
					fmt.Printf("%s = %v\n", tag, values[tag].GoValue())
				}
				if loops == 0 || i < loops-1 {
					time.Sleep(wait)
				}
			}
			return nil
		},
	}
}
