package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/robinjoseph08/golib/logger"
	"github.com/tankobon/tankobon/pkg/archive"
	"github.com/tankobon/tankobon/pkg/pageindex"
)

func main() {
	log := logger.New()

	var opts struct {
		Output   string `short:"o" long:"output" description:"Directory to extract into. Defaults to a temporary directory."`
		Format   string `short:"f" long:"format" default:"archive" choice:"archive" choice:"epub" choice:"pdf" choice:"image" description:"Declared format of the files"`
		MaxBytes int64  `long:"max-entry-bytes" description:"Largest file to extract, in bytes"`
		Keep     bool   `short:"k" long:"keep" description:"Keep the extracted files"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) == 0 {
		fmt.Println("go run ./cmd/scripts/debug/extract-chapter [-o dir] <file>...")
		os.Exit(1)
	}

	dest := opts.Output
	if dest == "" {
		dest, err = os.MkdirTemp("", "extract-chapter-")
		if err != nil {
			log.Err(err).Fatal("temp dir error")
		}
	}
	if !opts.Keep {
		defer os.RemoveAll(dest)
	}

	sources := make([]archive.Source, 0, len(args))
	for _, a := range args {
		sources = append(sources, archive.Source{Path: a, Format: opts.Format})
	}

	ctx := log.WithContext(context.Background())
	result, err := archive.New(archive.Options{MaxEntryBytes: opts.MaxBytes}).Extract(ctx, sources, dest)
	if err != nil {
		log.Err(err).Fatal("extract error")
	}

	pages, err := pageindex.Build(dest, pageindex.Options{
		Content: result.Kind == archive.KindEpub,
		Order:   result.ContentOrder,
	})
	if err != nil {
		log.Err(err).Fatal("index error")
	}

	fmt.Printf("Kind: %s\nEntries: %d\nPages: %d\nDirectory: %s\n", result.Kind, result.EntryCount, len(pages), dest)
	for i, p := range pages {
		fmt.Printf("%4d  %s\n", i, p.Rel)
	}
}
