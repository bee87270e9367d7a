// catalogctl manages the recording catalog: schema migration and
// spreadsheet import.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"vibe-transcriber-service/internal/config"
	"vibe-transcriber-service/internal/observability/logging"
	"vibe-transcriber-service/internal/store"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: catalogctl [-config path] <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  migrate          create tables if missing\n")
	fmt.Fprintf(os.Stderr, "  import <xlsx>    upsert catalog rows from a workbook\n")
	fmt.Fprintf(os.Stderr, "  dry-run <xlsx>   parse a workbook without writing\n")
	flag.PrintDefaults()
}

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "Path to YAML config")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	logging.Init(logging.Config{Level: "info", Format: "console", Service: "catalogctl"})

	if err := run(context.Background(), *configPath, flag.Args()); err != nil {
		log.Fatal().Err(err).Str("command", flag.Arg(0)).Msg("Command failed")
	}
}

func run(ctx context.Context, configPath string, args []string) error {
	cmd := args[0]

	if cmd == "dry-run" {
		if len(args) < 2 {
			return errors.New("dry-run requires a workbook path")
		}
		entries, report, err := store.ReadCatalogSheet(args[1])
		if err != nil {
			return err
		}
		log.Info().
			Str("path", args[1]).
			Int("rows", report.Rows).
			Int("valid", len(entries)).
			Int("skipped", report.Skipped).
			Msg("Workbook parsed")
		return nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	switch cmd {
	case "migrate":
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		log.Info().Str("driver", cfg.Database.Driver).Msg("Schema up to date")
		return nil
	case "import":
		if len(args) < 2 {
			return errors.New("import requires a workbook path")
		}
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		_, err := st.ImportCatalog(ctx, args[1])
		return err
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
