package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/quill/internal"
	"github.com/starford/quill/internal/frontmatter"
	"github.com/starford/quill/internal/models"
	pkgconfig "github.com/starford/quill/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if root := cmd.String("root"); root != "" {
		cfg.Content.Root = root
	}
	err = internal.RunCheck(ctx, internal.WithConfig(cfg))
	if errors.Is(err, internal.ErrInvalidPosts) {
		return cli.Exit(err.Error(), 2)
	}
	return err
}

func newPost(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	path := cmd.Args().First()
	if path == "" {
		return cli.Exit("usage: quill new [flags] <path>", 1)
	}

	parseOpts, err := cfg.Content.ParseOptions()
	if err != nil {
		return err
	}
	date := time.Now().Truncate(time.Second)
	if s := cmd.String("date"); s != "" {
		date, err = frontmatter.ParseDate(s, parseOpts...)
		if err != nil {
			return err
		}
	}

	doc := models.Document{
		Title:      cmd.String("title"),
		Date:       date,
		Categories: splitList(cmd.StringSlice("category")),
		Tags:       splitList(cmd.StringSlice("tag")),
		TOC:        cmd.Bool("toc"),
	}

	return internal.RunNew(ctx, path, doc, internal.WithConfig(cfg))
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

// splitList accepts both repeated flags and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func main() {
	cmd := &cli.Command{
		Name:    "quill",
		Usage:   "Blog post loader: parses front-matter posts, keeps a browsable catalog and serves it over HTTP and MCP",
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
				Usage:  "Sync the catalog, watch the content directory and serve the HTTP API",
				Action: serve,
			},
			{
				Name:   "check",
				Usage:  "Parse every post and report the ones that are rejected",
				Action: check,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "root",
						Usage: "Content directory (overrides content.root)",
					},
				},
			},
			{
				Name:      "new",
				Usage:     "Create a post with a valid metadata block",
				ArgsUsage: "<path>",
				Action:    newPost,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "title",
						Aliases:  []string{"t"},
						Usage:    "Post title",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Publication date, e.g. \"2024-01-02 15:04:05 +0100\" (default: now)",
					},
					&cli.StringSliceFlag{
						Name:  "category",
						Usage: "Category (repeatable or comma-separated)",
					},
					&cli.StringSliceFlag{
						Name:  "tag",
						Usage: "Tag (repeatable or comma-separated)",
					},
					&cli.BoolFlag{
						Name:  "toc",
						Usage: "Render a table of contents",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
