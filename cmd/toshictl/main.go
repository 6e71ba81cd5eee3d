// cmd/toshictl is the CLI client.
//
// Usage:
//
//	toshictl list                                  --server http://localhost:8080
//	toshictl create books '[{"name":"title","type":"text","stored":true,"indexed":true}]'
//	toshictl add books '{"document":{"title":"Dune"}}'
//	toshictl flush books
//	toshictl search books '{"query":{"term":{"title":"dune"}},"limit":10}'
//	toshictl delete books '{"terms":{"title":"dune"}}'
//	toshictl summary books --include-sizes
//
// A JSON argument starting with '@' is read from the named file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jason-Cooke/Toshi/internal/client"
	"github.com/Jason-Cooke/Toshi/internal/index"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "toshictl",
		Short: "CLI client for the search cluster",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"http://localhost:8080", "Node address")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(listCmd(), searchCmd(), createCmd(), addCmd(),
		deleteCmd(), summaryCmd(), flushCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(serverAddr, timeout)
}

// jsonArg returns the literal argument, or the contents of a file when the
// argument starts with '@'.
func jsonArg(arg string) ([]byte, error) {
	if strings.HasPrefix(arg, "@") {
		return os.ReadFile(strings.TrimPrefix(arg, "@"))
	}
	return []byte(arg), nil
}

func prettyPrint(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(out))
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the indexes hosted by the node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := newClient().List(context.Background())
			if err != nil {
				return err
			}
			prettyPrint(names)
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <index> [search-json]",
		Short: "Search an index across the whole cluster",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := query.AllDocs()
			if len(args) == 2 {
				raw, err := jsonArg(args[1])
				if err != nil {
					return err
				}
				if err := json.Unmarshal(raw, &req); err != nil {
					return err
				}
			}
			if limit > 0 {
				req.Limit = limit
			}
			results, err := newClient().Search(context.Background(), args[0], req)
			if err != nil {
				return err
			}
			prettyPrint(results)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Override the hit limit")
	return cmd
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <index> <schema-json>",
		Short: "Create a new index from a schema",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := jsonArg(args[1])
			if err != nil {
				return err
			}
			if err := newClient().CreateIndex(context.Background(), args[0], schema); err != nil {
				return err
			}
			fmt.Printf("created index %q\n", args[0])
			return nil
		},
	}
}

func addCmd() *cobra.Command {
	var commit bool
	cmd := &cobra.Command{
		Use:   "add <index> <document-json>",
		Short: "Add a document to a local index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := jsonArg(args[1])
			if err != nil {
				return err
			}
			var doc index.AddDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return err
			}
			if commit {
				doc.Options = &index.WriteOptions{Commit: true}
			}
			if err := newClient().AddDocument(context.Background(), args[0], doc); err != nil {
				return err
			}
			fmt.Println("document staged")
			return nil
		},
	}
	cmd.Flags().BoolVar(&commit, "commit", false, "Commit immediately")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index> <terms-json>",
		Short: "Delete documents matching exact terms",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := jsonArg(args[1])
			if err != nil {
				return err
			}
			var del index.DeleteDoc
			if err := json.Unmarshal(raw, &del); err != nil {
				return err
			}
			if err := newClient().DeleteTerms(context.Background(), args[0], del); err != nil {
				return err
			}
			fmt.Println("deletions staged")
			return nil
		},
	}
}

func summaryCmd() *cobra.Command {
	var includeSizes bool
	cmd := &cobra.Command{
		Use:   "summary <index>",
		Short: "Show the index manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := newClient().Summary(context.Background(), args[0], includeSizes)
			if err != nil {
				return err
			}
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			prettyPrint(v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeSizes, "include-sizes", false, "Include segment sizes")
	return cmd
}

func flushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "flush <index>",
		Short: "Commit pending mutations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Flush(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Println("flushed")
			return nil
		},
	}
}
