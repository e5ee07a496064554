// Command query runs a single retrieval-augmented query against a
// graphrag working directory and prints the answer.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/graphrag-go/graphrag"
	"github.com/graphrag-go/graphrag/config"
	"github.com/graphrag-go/graphrag/model"
	"github.com/graphrag-go/graphrag/providers/openaicompat"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	configPath := flag.String("config", "", "path to a YAML config file overriding defaults")
	mode := flag.String("mode", "mix", "retrieval mode: local, global, hybrid, naive, mix, bypass")
	onlyContext := flag.Bool("only-context", false, "print the assembled context instead of generating an answer")
	flag.Parse()

	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: query [-config path] [-mode mix] [-only-context] question")
		os.Exit(2)
	}
	question := strings.Join(flag.Args(), " ")

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			slog.Error("query: failed to load config", "error", err)
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
		slog.Error("query: failed to initialize graphrag", "error", err)
		os.Exit(1)
	}

	result, err := g.Query(context.Background(), question, model.QueryParam{
		Mode:            model.Mode(*mode),
		OnlyNeedContext: *onlyContext,
	})
	if err != nil {
		slog.Error("query: failed", "error", err)
		os.Exit(1)
	}

	if *onlyContext {
		fmt.Println(result.Context)
		return
	}
	fmt.Println(result.Response)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
