package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/relnotes/internal"
	pkgconfig "github.com/starford/relnotes/pkg/config"
)

var version = "dev"

// loadConfig reads the config file over the defaults. A missing file leaves
// the defaults in place.
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
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func embed(ctx context.Context, cmd *cli.Command) error {
	noteID := cmd.Args().First()
	if noteID == "" {
		return fmt.Errorf("usage: %s <noteId>", cmd.FullName())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rec, err := internal.Embed(ctx, noteID, internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\t%s\t%d\n", rec.NoteID, rec.Model, rec.Dimensions)
	return err
}

func similar(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return fmt.Errorf("usage: %s <query>", cmd.FullName())
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	results, err := internal.Similar(ctx, query, cmd.String("exclude"), internal.WithConfig(cfg))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func main() {
	cmd := &cli.Command{
		Name:    "relnotes",
		Usage:   "Related-notes search over JSON notes with stored embeddings",
		Version: version,
		Action:  serve,
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
				Usage:  "Run the HTTP API, file watcher and event stream",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdin/stdout",
				Action: mcp,
			},
			{
				Name:      "embed",
				Usage:     "Generate and store the embedding of a note",
				ArgsUsage: "<noteId>",
				Action:    embed,
			},
			{
				Name:      "similar",
				Usage:     "Print the notes most similar to a query as JSON",
				ArgsUsage: "<query>",
				Action:    similar,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "exclude",
						Usage: "Note id to leave out of the results",
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
