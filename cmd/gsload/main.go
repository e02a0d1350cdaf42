// Command gsload bulk loads CSV files into a node table of a graphstore
// database.
//
//	gsload --config load.yaml
//	gsload -c load.yaml --file people-1.csv --file people-2.csv --archive-dir /backups
//	gsload -c load.yaml --archive-backend s3 --archive-bucket backups
//
// Each CSV file is read by its own producer. The table is created when it
// does not exist and must be empty otherwise.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/graphstore"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "gsload:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) (err error) {
	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := LoadConfig(fs)
	if err != nil {
		return err
	}
	level, _ := cfg.level()
	props, err := cfg.Properties()
	if err != nil {
		return err
	}

	db, err := graphstore.Open(ctx, cfg.Dir,
		graphstore.WithNodeGroupSizeLog2(cfg.NodeGroupSizeLog2),
		graphstore.WithLogger(graphstore.NewTextLogger(level)),
	)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	if _, err := db.Table(cfg.Table.Name); errors.Is(err, graphstore.ErrTableNotFound) {
		if _, err := db.CreateNodeTable(ctx, cfg.Table.Name, props, cfg.Table.PrimaryKey); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	delim := []rune(cfg.CSV.Delimiter)[0]
	sources := make([]graphstore.RowSource, len(cfg.CSV.Files))
	var expected uint64
	for i, path := range cfg.CSV.Files {
		n, err := countRows(path, cfg.CSV.Header)
		if err != nil {
			return err
		}
		expected += n
		sources[i] = csvSource(path, props, cfg.CSV.Header, delim, cfg.CSV.Null)
	}
	res, err := db.BulkLoad(ctx, cfg.Table.Name, sources, func(o *graphstore.BulkLoadOptions) {
		o.ExpectedRows = expected
		if cfg.IndexWorkers > 0 {
			o.IndexWorkers = cfg.IndexWorkers
		}
	})
	if err != nil {
		return err
	}
	if err := db.Checkpoint(ctx); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "loaded %d rows into %s (%d node groups) in %s\n", res.Rows, cfg.Table.Name, res.NodeGroups, res.Duration)

	if cfg.Archive.Enabled() {
		store, err := openArchiveStore(ctx, &cfg.Archive)
		if err != nil {
			return fmt.Errorf("archive store: %w", err)
		}
		info, err := db.Archive(ctx, store, func(o *graphstore.ArchiveOptions) {
			o.Compression = cfg.Archive.Compression
			o.Keep = cfg.Archive.Keep
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "archived %d files (%d -> %d bytes) as %s\n", len(info.Files), info.Bytes, info.CompressedBytes, info.ID)
	}
	return nil
}
