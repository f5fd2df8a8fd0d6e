package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/limen/internal"
	"github.com/starford/limen/internal/notation"
	pkgconfig "github.com/starford/limen/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func importFiles(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := internal.ImportOptions{Dir: cmd.String("dir")}
	if e := cmd.String("export"); e != "" {
		kind, err := notation.Parse(e)
		if err != nil {
			return err
		}
		opts.Export = kind
	}
	return internal.Import(ctx, cmd.Args().Slice(), opts, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Check(ctx, cmd.Args().Slice(), internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg))
}

func main() {
	cmd := &cli.Command{
		Name:   "limen",
		Usage:  "Document graphs for overlapping, discontinuous and non-linear markup",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and watch the corpus",
				Action: serve,
			},
			{
				Name:      "import",
				Usage:     "Import notation files into the corpus",
				ArgsUsage: "FILE...",
				Action:    importFiles,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "dir",
						Usage: "Corpus directory to place the files in",
					},
					&cli.StringFlag{
						Name:  "export",
						Usage: "Print each imported document in this notation (tagml)",
					},
				},
			},
			{
				Name:      "check",
				Usage:     "Parse notation files and report errors without storing them",
				ArgsUsage: "FILE...",
				Action:    check,
			},
			{
				Name:   "mcp",
				Usage:  "Run the MCP server on stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
