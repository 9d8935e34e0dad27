// Package main provides the docuchat CLI: ingest documents, ask
// questions, and manage the knowledge base from the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docuchat/docuchat/internal/app"
	"github.com/docuchat/docuchat/internal/config"
	"github.com/docuchat/docuchat/internal/knowledge"
	mcpserver "github.com/docuchat/docuchat/internal/mcp"
)

var (
	cfgFile   string
	sessionID string
)

var rootCmd = &cobra.Command{
	Use:   "docuchat",
	Short: "Document question answering over your own files",
	Long: `Ingest PDF and DOCX files, then ask questions answered strictly from
their content, with page-level citations.

Environment variables (DOCUCHAT_ prefix) and an optional YAML config
file control providers:
  DOCUCHAT_EMBEDDING_PROVIDER   ollama or openai (default: ollama)
  DOCUCHAT_GENERATION_PROVIDER  ollama or openai (default: ollama)
  DOCUCHAT_OLLAMA_HOST          Ollama base URL (default: http://127.0.0.1:11434)
  DOCUCHAT_INDEX_BACKEND        memory or qdrant (default: memory)
  OPENAI_API_KEY                required for the openai providers`,
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Extract, chunk, embed, and index documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIngest,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question answered from the ingested documents",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var removeCmd = &cobra.Command{
	Use:   "remove <document-id>",
	Short: "Remove a document and its indexed chunks",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the session",
	Args:  cobra.NoArgs,
	RunE:  runClear,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the engine as MCP tools over stdio",
	Args:  cobra.NoArgs,
	RunE:  runMCP,
}

var clearHistory bool

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&sessionID, "session", "", "session id (empty for the default session)")
	clearCmd.Flags().BoolVar(&clearHistory, "history", false, "also delete the session's chat history")

	rootCmd.AddCommand(ingestCmd, askCmd, listCmd, removeCmd, clearCmd, mcpCmd)
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildApp assembles the engine; callers must Close it.
func buildApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg.LogLevel)
	return app.New(ctx, cfg, logger)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	for _, path := range args {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		doc, err := application.Engine.Knowledge().Ingest(ctx, content, filepath.Base(path), sessionID, knowledge.IngestOptions{})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		fmt.Printf("Ingested %s: %d pages, %d chunks (id %s)\n",
			doc.Filename, doc.Pages, doc.ChunkCount, doc.ID)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	result, err := application.Engine.Ask(ctx, args[0], sessionID, 0)
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	if len(result.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, c := range result.Citations {
			fmt.Printf("  [%d] %s, page %d\n", c.Index, c.Source, c.Page)
		}
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	docs, err := application.Engine.Knowledge().List(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents ingested.")
		return nil
	}
	for _, doc := range docs {
		fmt.Printf("%s  %s  %d pages  %d chunks  %d bytes\n",
			doc.ID, doc.Filename, doc.Pages, doc.ChunkCount, doc.SizeBytes)
	}
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Engine.Knowledge().Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Removed document %s\n", args[0])
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	if err := application.Engine.Knowledge().Clear(ctx, sessionID, clearHistory); err != nil {
		return err
	}
	fmt.Println("Knowledge base cleared.")
	return nil
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	application, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer application.Close()

	tools := mcpserver.NewServer(application.Engine, application.Config.RetrievalTopK)
	return tools.Run(ctx)
}
