// Command ingest reads one or more files from disk and inserts them into
// a graphrag working directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/graphrag-go/graphrag"
	"github.com/graphrag-go/graphrag/config"
	"github.com/graphrag-go/graphrag/providers/openaicompat"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	configPath := flag.String("config", "", "path to a YAML config file overriding defaults")
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: ingest [-config path] file [file ...]")
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			slog.Error("ingest: failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	client := openaicompat.New(openaicompat.Config{
		APIKey:         os.Getenv("OPENAI_API_KEY"),
		BaseURL:        os.Getenv("OPENAI_BASE_URL"),
		ChatModel:      envOrDefault("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		EmbeddingModel: envOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
	})

	g, err := graphrag.New(cfg, client.Generate, client.ChatGenerate, client.Embed, nil, nil)
	if err != nil {
		slog.Error("ingest: failed to initialize graphrag", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for _, path := range files {
		if err := g.InsertDocument(ctx, path); err != nil {
			slog.Error("ingest: failed to insert document", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("ingest: inserted document", "path", path)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
