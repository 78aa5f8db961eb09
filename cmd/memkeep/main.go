// Package main is the entry point for the memkeep CLI: operational tooling
// over the hybrid conversation memory store.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/memkeep/memkeep/internal/config"
	"github.com/memkeep/memkeep/internal/memory"
	"github.com/memkeep/memkeep/modules/embedder/chromem"
	"github.com/memkeep/memkeep/modules/store/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "memkeep",
		Short:         "Bounded conversation memory with durable snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.AddCommand(versionCmd(), sessionsCmd(), showCmd(), addCmd(), contextCmd(), purgeCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("memkeep %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			infos, err := store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No stored sessions.")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%s\t%d messages\tupdated %s\n",
					info.SessionID, info.MessageCount, info.UpdatedAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's stored messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msgs, err := store.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Println("No stored messages.")
				return nil
			}
			printMessages(msgs)
			return nil
		},
	}
	return cmd
}

func addCmd() *cobra.Command {
	var (
		session   string
		role      string
		reference string
	)
	cmd := &cobra.Command{
		Use:   "add <text>",
		Short: "Append a message to a session and flush it to the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, store, err := openMemory(cmd, session)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msgRole, err := parseRole(role)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			mem.AddMessage(ctx, memory.Message{Role: msgRole, Text: args[0]}, reference)
			if err := mem.Close(ctx); err != nil {
				return err
			}
			fmt.Printf("Session %s now holds %d messages.\n", mem.SessionID(), len(mem.GetAllMessages()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session identifier (required)")
	cmd.Flags().StringVarP(&role, "role", "r", string(memory.RoleUser), "Message role: user, assistant, or system")
	cmd.Flags().StringVar(&reference, "context", "", "Context string used for relevance pruning")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func contextCmd() *cobra.Command {
	var (
		session  string
		maxBytes int
	)
	cmd := &cobra.Command{
		Use:   "context <query>",
		Short: "Print a session's messages ranked by relevance to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, store, err := openMemory(cmd, session)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			msgs := mem.GetRelevantContext(cmd.Context(), args[0], maxBytes)
			if len(msgs) == 0 {
				fmt.Println("No relevant messages.")
				return nil
			}
			printMessages(msgs)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session identifier (required)")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "Byte budget for the returned context (0 = unlimited)")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func purgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge <session-id>",
		Short: "Delete a session's stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Purged session %s.\n", args[0])
			return nil
		},
	}
}

func printMessages(msgs []memory.Message) {
	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).Local().Format("2006-01-02 15:04:05")
		fmt.Printf("[%s] %-9s %s\n", ts, m.Role, m.Text)
	}
}

func parseRole(role string) (memory.Role, error) {
	switch memory.Role(role) {
	case memory.RoleUser, memory.RoleAssistant, memory.RoleSystem:
		return memory.Role(role), nil
	default:
		return "", fmt.Errorf("invalid role %q (want user, assistant, or system)", role)
	}
}

// openStore loads the configuration and opens the SQLite snapshot store.
func openStore(cmd *cobra.Command) (*config.Config, *sqlite.Store, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	if cfgPath == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return nil, nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := sqlite.Open(cfg.Store, newLogger(cmd))
	if err != nil {
		return nil, nil, err
	}
	return cfg, store, nil
}

// openMemory opens the store and builds a Memory on it for the given
// session, with the configured scorer.
func openMemory(cmd *cobra.Command, sessionID string) (*memory.Memory, *sqlite.Store, error) {
	cfg, store, err := openStore(cmd)
	if err != nil {
		return nil, nil, err
	}

	logger := newLogger(cmd)
	memCfg := cfg.Memory.MemoryOptions(sessionID)
	memCfg.Logger = logger

	mem, err := memory.New(cmd.Context(), store, newScorer(cfg.Embedding, logger), memCfg)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return mem, store, nil
}

// newScorer builds the configured scoring strategy: vector when an
// embedding provider is set, lexical otherwise.
func newScorer(cfg config.EmbeddingConfig, logger *slog.Logger) memory.Scorer {
	if !cfg.Enabled() {
		return memory.LexicalScorer{}
	}

	var embedder memory.Embedder
	switch cfg.Provider {
	case config.EmbeddingProviderOpenAI:
		embedder = chromem.NewOpenAI(cfg.APIKey, cfg.Model)
	case config.EmbeddingProviderOpenAICompat:
		embedder = chromem.NewOpenAICompat(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case config.EmbeddingProviderOllama:
		embedder = chromem.NewOllama(cfg.Model, cfg.BaseURL)
	default:
		// Validation rejects unknown providers before this point.
		return memory.LexicalScorer{}
	}
	return memory.NewVectorScorer(embedder, logger)
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/memkeep/memkeep.yaml → ./memkeep.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "memkeep", "memkeep.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "memkeep", "memkeep.yaml"))
	}
	candidates = append(candidates, "memkeep.yaml")

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", errors.New("no configuration file found (use --config or create memkeep.yaml)")
}
