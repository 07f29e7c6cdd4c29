package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/dashchat/pkg/service/boundary"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func checkCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg        config
		confidence float64
	)

	flags := []cli.Flag{
		&cli.FloatFlag{
			Name:        "confidence",
			Usage:       "Confidence to test against the uncertainty threshold",
			Value:       1.0,
			Destination: &confidence,
		},
	}
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:      "check",
		Usage:     "Run only the boundary and uncertainty checks on a question",
		ArgsUsage: "<question>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := setupLogger(ctx, logCfg)
			if err != nil {
				return err
			}

			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return goerr.New("question is required")
			}

			checker, err := cfg.newBoundary(ctx)
			if err != nil {
				return err
			}

			decision, err := checker.Check(ctx, question)
			if err != nil {
				return goerr.Wrap(err, "failed to check question")
			}

			out, err := json.MarshalIndent(struct {
				Boundary    *boundary.Decision    `json:"boundary"`
				Uncertainty *boundary.Uncertainty `json:"uncertainty"`
			}{
				Boundary:    decision,
				Uncertainty: checker.CheckUncertainty(question, confidence),
			}, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal result")
			}

			fmt.Fprintln(c.Root().Writer, string(out))
			return nil
		},
	}
}
