package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/dashchat/pkg/model"
	"github.com/m-mizutani/dashchat/pkg/usecase/chat"
	"github.com/m-mizutani/dashchat/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand(logCfg *logConfig) *cli.Command {
	var (
		cfg       config
		historyID string
		window    int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "history-id",
			Usage:       "Continue an exported conversation",
			Sources:     cli.EnvVars("DASHCHAT_HISTORY_ID"),
			Destination: &historyID,
		},
		&cli.IntFlag{
			Name:        "window",
			Usage:       "Number of recent messages kept as conversation context",
			Value:       model.DefaultMessageWindow,
			Sources:     cli.EnvVars("DASHCHAT_WINDOW"),
			Destination: &window,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, pipelineFlags(&cfg)...)
	flags = append(flags, historyFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive conversation about merchants",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, err := setupLogger(ctx, logCfg)
			if err != nil {
				return err
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
			pipeline.StartCleanup(ctx, 0)
			defer pipeline.Stop()

			storage, err := cfg.newStorage(ctx)
			if err != nil {
				return err
			}

			input := chat.SessionInput{
				Pipeline: pipeline,
				Repo:     repo,
				Storage:  storage,
				Window:   int(window),
			}
			if historyID != "" {
				id := model.HistoryID(historyID)
				input.History = &id
			}

			session, err := chat.NewSession(ctx, input)
			if err != nil {
				return goerr.Wrap(err, "failed to create chat session")
			}
			defer func() {
				if err := session.Close(ctx); err != nil {
					logging.From(ctx).Error("failed to save conversation", "error", err)
					return
				}
				if id := session.HistoryID(); id != "" {
					fmt.Fprintf(c.Root().Writer, "History saved: %s\n", id)
				}
			}()

			return runREPL(ctx, c.Root().Writer, session)
		},
	}
}

func runREPL(ctx context.Context, w io.Writer, session *chat.Session) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		HistoryFile:     replHistoryFile(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          w,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to initialize readline")
	}
	defer rl.Close()

	fmt.Fprintln(w, "Chat session started. Type /help for commands, 'exit' to quit.")

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return goerr.Wrap(err, "failed to read input")
		}

		message := strings.TrimSpace(line)
		switch message {
		case "":
			continue
		case "exit", "/exit", "/quit":
			return nil
		case "/help":
			fmt.Fprintln(w, "/stats    show cache statistics")
			fmt.Fprintln(w, "/context  show the merchant in focus")
			fmt.Fprintln(w, "exit      end the session")
			continue
		case "/stats":
			stats := session.CacheStats()
			fmt.Fprintf(w, "cache: %d/%d entries, ttl %s\n", stats.Size, stats.MaxSize, stats.TTL)
			continue
		case "/context":
			convCtx := session.Context()
			if !convCtx.HasSubject() {
				fmt.Fprintln(w, "no merchant in focus")
			} else {
				fmt.Fprintf(w, "merchant: %s (%s), last intent: %s\n",
					convCtx.MerchantName, convCtx.MerchantID, convCtx.LastIntent)
			}
			continue
		}

		s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
		s.Suffix = " thinking..."
		s.Start()
		reply := session.Send(ctx, message)
		s.Stop()

		fmt.Fprintf(w, "%s\n\n", reply.Text)
		if reply.Result != nil && reply.Result.Confidence != nil {
			logging.From(ctx).Debug("turn finished",
				"turn_id", reply.Result.TurnID,
				"confidence", reply.Result.Confidence.Overall,
				"cache_hit", reply.Result.CacheHit)
		}
	}
}

func replHistoryFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	dir = filepath.Join(dir, "dashchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return ""
	}
	return filepath.Join(dir, "readline_history")
}
