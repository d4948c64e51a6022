// Command libracore is a thin CLI exerciser over the Service facade,
// shaped after the route list in spec §6.1. It is not a shipped HTTP
// server — just enough surface to drive the core from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/libracore/libracore/internal/config"
	"github.com/libracore/libracore/pkg/core"
	"github.com/libracore/libracore/pkg/index"
	"github.com/libracore/libracore/pkg/persist"
)

var jsonOutput bool

var rootCmd = &cobra.Command{
	Use:   "libracore",
	Short: "CLI for the libracore vector database",
}

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage libraries",
}

var libraryCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dims, _ := cmd.Flags().GetInt("dims")
		kind, _ := cmd.Flags().GetString("index-kind")

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		params := index.DefaultParams(index.Kind(kind))
		lib, err := svc.service.CreateLibrary(cmd.Context(), args[0], dims, index.Kind(kind), params, nil)
		if err != nil {
			return fmt.Errorf("create library: %w", err)
		}
		return printResult(cmd, lib)
	},
}

var libraryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		libs, err := svc.service.ListLibraries(cmd.Context())
		if err != nil {
			return fmt.Errorf("list libraries: %w", err)
		}
		return printResult(cmd, libs)
	},
}

var libraryGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get a library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		lib, err := svc.service.GetLibrary(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get library: %w", err)
		}
		return printResult(cmd, lib)
	},
}

var libraryUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a library's name and/or metadata (dims/index-kind are immutable)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var name *string
		if cmd.Flags().Changed("name") {
			n, _ := cmd.Flags().GetString("name")
			name = &n
		}
		metadataStr, _ := cmd.Flags().GetString("metadata")
		var metadata map[string]string
		if metadataStr != "" {
			if err := json.Unmarshal([]byte(metadataStr), &metadata); err != nil {
				return fmt.Errorf("invalid metadata JSON: %w", err)
			}
		}

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		lib, err := svc.service.UpdateLibrary(cmd.Context(), args[0], name, metadata, nil, nil)
		if err != nil {
			return fmt.Errorf("update library: %w", err)
		}
		return printResult(cmd, lib)
	},
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a library",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.service.DeleteLibrary(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete library: %w", err)
		}
		fmt.Printf("library %s deleted\n", args[0])
		return nil
	},
}

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage documents",
}

var documentCreateCmd = &cobra.Command{
	Use:   "create <library-id> <title>",
	Short: "Create a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		doc, err := svc.service.CreateDocument(cmd.Context(), args[0], args[1], nil)
		if err != nil {
			return fmt.Errorf("create document: %w", err)
		}
		return printResult(cmd, doc)
	},
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete <library-id> <document-id>",
	Short: "Delete a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.service.DeleteDocument(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("delete document: %w", err)
		}
		fmt.Printf("document %s deleted\n", args[1])
		return nil
	},
}

var chunkCmd = &cobra.Command{
	Use:   "chunk",
	Short: "Manage chunks",
}

var chunkAddCmd = &cobra.Command{
	Use:   "add <library-id> <document-id> <text>",
	Short: "Add a chunk",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		chunk, err := svc.service.CreateChunk(cmd.Context(), args[0], args[1], args[2], vector, nil)
		if err != nil {
			return fmt.Errorf("create chunk: %w", err)
		}
		return printResult(cmd, chunk)
	},
}

var chunkDeleteCmd = &cobra.Command{
	Use:   "delete <library-id> <chunk-id>",
	Short: "Delete a chunk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.service.DeleteChunk(cmd.Context(), args[0], args[1]); err != nil {
			return fmt.Errorf("delete chunk: %w", err)
		}
		fmt.Printf("chunk %s deleted\n", args[1])
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <library-id>",
	Short: "Search a library by vector",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("k")

		vector, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		results, err := svc.service.Search(cmd.Context(), args[0], vector, k)
		if err != nil {
			return fmt.Errorf("search: %w", err)
		}
		return printResult(cmd, results)
	},
}

var trainCmd = &cobra.Command{
	Use:   "train <library-id>",
	Short: "Train a library's index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.service.Train(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("train: %w", err)
		}
		fmt.Printf("library %s trained\n", args[0])
		return nil
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <library-id>",
	Short: "Rebuild a library's index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.service.Rebuild(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("rebuild: %w", err)
		}
		fmt.Printf("library %s rebuilt\n", args[0])
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats <library-id>",
	Short: "Show library statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openService(cmd.Context())
		if err != nil {
			return err
		}
		defer svc.Close()

		stats, err := svc.service.Stats(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}
		return printResult(cmd, stats)
	},
}

func parseVector(str string) ([]float32, error) {
	if str == "" {
		return nil, fmt.Errorf("vector is required")
	}
	parts := strings.Split(str, ",")
	vector := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vector = append(vector, float32(val))
	}
	return vector, nil
}

// printResult renders v as indented JSON, or as a plain %+v dump when
// --json=false, matching the per-command JSON/plain toggle the teacher
// CLI exposes on its embed/search/stats commands.
func printResult(cmd *cobra.Command, v any) error {
	if !jsonOutput {
		fmt.Printf("%+v\n", v)
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// boundService pairs the core facade with the adapter so the CLI can
// close the database after each command.
type boundService struct {
	service *core.Service
	adapter persist.Adapter
}

func (b *boundService) Close() error {
	return b.adapter.Close()
}

func openService(ctx context.Context) (*boundService, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if err := os.MkdirAll(cfg.Persistence.URI, 0o755); err != nil {
		return nil, fmt.Errorf("create persistence directory: %w", err)
	}

	dbPath := filepath.Join(cfg.Persistence.URI, cfg.Persistence.DatabaseName)
	adapter, err := persist.OpenSQLite(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open persistence: %w", err)
	}

	logger := core.NewStdLogger(core.LevelInfo)
	svc, err := core.NewService(ctx, adapter, core.NopEmbedder{}, logger)
	if err != nil {
		adapter.Close()
		return nil, fmt.Errorf("start service: %w", err)
	}

	return &boundService{service: svc, adapter: adapter}, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", true, "output as JSON")

	libraryCreateCmd.Flags().Int("dims", 0, "vector dimensions")
	libraryCreateCmd.Flags().String("index-kind", string(index.Flat), "index kind: FLAT, IVF, or LSH_SIMHASH")
	libraryCreateCmd.MarkFlagRequired("dims")

	libraryUpdateCmd.Flags().String("name", "", "new library name")
	libraryUpdateCmd.Flags().String("metadata", "", "metadata as JSON object")

	libraryCmd.AddCommand(libraryCreateCmd, libraryListCmd, libraryGetCmd, libraryUpdateCmd, libraryDeleteCmd)
	documentCmd.AddCommand(documentCreateCmd, documentDeleteCmd)

	chunkAddCmd.Flags().String("vector", "", "chunk embedding (comma-separated floats)")
	chunkAddCmd.MarkFlagRequired("vector")
	chunkCmd.AddCommand(chunkAddCmd, chunkDeleteCmd)

	searchCmd.Flags().String("vector", "", "query vector (comma-separated floats)")
	searchCmd.Flags().Int("k", 10, "number of results")
	searchCmd.MarkFlagRequired("vector")

	rootCmd.AddCommand(libraryCmd, documentCmd, chunkCmd, searchCmd, trainCmd, rebuildCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
