package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func askCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg        config
		merchantID string
		jsonOutput bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "merchant",
			Aliases:     []string{"m"},
			Usage:       "ID of the merchant already in focus",
			Destination: &merchantID,
		},
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print the whole turn result as JSON",
			Destination: &jsonOutput,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)

	return &cli.Command{
		Name:      "ask",
		Usage:     "Answer a single question",
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

			repo, closer, err := cfg.newRepository()
			if err != nil {
				return err
			}
			defer closer.Close()

			pipeline, err := cfg.newPipeline(ctx, repo)
			if err != nil {
				return err
			}

			convCtx := model.NewConversationContext(0)
			if merchantID != "" {
				merchant, err := repo.GetMerchant(ctx, model.MerchantID(merchantID))
				if err != nil {
					return goerr.Wrap(err, "failed to get merchant")
				}
				convCtx.SetSubject(merchant.ID, merchant.Name)
			}

			result, err := pipeline.ProcessTurn(ctx, question, convCtx)
			if err != nil {
				return goerr.Wrap(err, "failed to answer question")
			}

			if jsonOutput {
				out, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return goerr.Wrap(err, "failed to marshal result")
				}
				fmt.Fprintln(c.Root().Writer, string(out))
				return nil
			}

			fmt.Fprintln(c.Root().Writer, result.Response)
			return nil
		},
	}
}
