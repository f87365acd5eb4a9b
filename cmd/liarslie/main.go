// Command liarslie drives the truthtellers-and-liars demonstrator: spawn a
// population of agents, then ask either coordinator to recover the ground
// truth from their claims.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/quorumlabs/liarslie/agent"
	"github.com/quorumlabs/liarslie/coordinator"
	"github.com/quorumlabs/liarslie/launcher"
	"github.com/quorumlabs/liarslie/wire"
)

func main() {
	app := &cli.App{
		Name:                 "liarslie",
		Usage:                "a didactic distributed-consensus demonstrator",
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			agentCommand(),
			startCommand(),
			playCommand(),
			playExpertCommand(),
		},
		Action: func(c *cli.Context) error {
			cli.ShowAppHelp(c)
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func agentCommand() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "run a single agent carrying one boolean claim",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:     "value",
				Usage:    "the claim this agent holds",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return agent.Run(ctx, c.Bool("value"), os.Stdout)
		},
	}
}

func startCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "spawn N agent processes and write agents.conf",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "value",
				Usage: "ground truth V; defaults to a random coin flip",
			},
			&cli.IntFlag{
				Name:  "num-agents",
				Value: 10,
				Usage: "number of agent processes to spawn",
			},
			&cli.Float64Flag{
				Name:  "liar-ratio",
				Value: 0.1,
				Usage: "fraction of agents whose claim is the negation of value",
			},
		},
		Action: func(c *cli.Context) error {
			value := c.Bool("value")
			if !c.IsSet("value") {
				value = rand.Intn(2) == 0
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("liarslie: could not locate self: %w", err)
			}

			started, err := launcher.Start(context.Background(), launcher.Args{
				Exe:       exe,
				Value:     value,
				NumAgents: c.Int("num-agents"),
				LiarRatio: c.Float64("liar-ratio"),
			})
			if err != nil {
				return err
			}

			fmt.Printf("wrote agents.conf with %d agents (value=%v)\n", len(started.Config.Children), value)
			return nil
		},
	}
}

func playCommand() *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "recover V via the simple poll",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "agents",
				Value: "agents.conf",
				Usage: "path to the agents.conf written by start",
			},
		},
		Action: func(c *cli.Context) error {
			conf, err := wire.LoadConfig(c.String("agents"))
			if err != nil {
				return err
			}

			result := coordinator.SimplePoll(context.Background(), conf.Children)
			reportResult(conf, result)
			return nil
		},
	}
}

func playExpertCommand() *cli.Command {
	return &cli.Command{
		Name:  "playexpert",
		Usage: "recover V via the expert (campaign-based) poll",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "agents",
				Value: "agents.conf",
				Usage: "path to the agents.conf written by start",
			},
			&cli.Float64Flag{
				Name:  "liar-ratio",
				Value: 0.1,
				Usage: "fraction of agents assumed to be lying, used to size the interlocutor sample",
			},
		},
		Action: func(c *cli.Context) error {
			conf, err := wire.LoadConfig(c.String("agents"))
			if err != nil {
				return err
			}

			result := coordinator.ExpertPoll(context.Background(), conf.Children, c.Float64("liar-ratio"), coordinator.VerifyWithIssuer)
			reportResult(conf, result)
			return nil
		},
	}
}

// reportResult prints the decided value, or a "not enough participants"
// message, followed by a table of the agents consulted.
func reportResult(conf wire.Config, result *bool) {
	if result == nil {
		fmt.Println("not enough participants to reach a decision")
	} else {
		fmt.Printf("decided value: %v\n", *result)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"pid", "port"})
	for _, id := range conf.Children {
		table.Append([]string{fmt.Sprintf("%d", id.PID), fmt.Sprintf("%d", id.Port)})
	}
	table.Render()
}
