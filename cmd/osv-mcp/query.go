package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/i2y/osv-mcp/internal/adapter/inbound/mcptools"
	"github.com/i2y/osv-mcp/internal/domain"
	"github.com/i2y/osv-mcp/internal/usecase"
)

func newQueryCmd() *cobra.Command {
	var input queryInput
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a single OSV query and print the request and response",
		Example: `  osv-mcp query --version 2.4.1 --package-name jinja2 --ecosystem PyPI
  osv-mcp query --commit 6879efc2c1596d11a6a6ad296f80063b558d5e0f
  echo '{"version":"1.0.0","package":{"purl":"pkg:npm/lodash"}}' | osv-mcp query --json -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			args, err := input.arguments(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runQuery(cmd, args, false)
		},
	}
	input.register(cmd)
	return cmd
}

func newQueryBatchCmd() *cobra.Command {
	var jsonArg string
	cmd := &cobra.Command{
		Use:     "query-batch",
		Short:   "Run an OSV batch query from a JSON document",
		Example: `  osv-mcp query-batch --json '{"queries":[{"commit":"abc"},{"version":"1.0","package":{"purl":"pkg:npm/x"}}]}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonArg == "" {
				return errors.New("--json is required")
			}
			args, err := decodeJSONArg(jsonArg, cmd.InOrStdin())
			if err != nil {
				return err
			}
			return runQuery(cmd, args, true)
		},
	}
	cmd.Flags().StringVar(&jsonArg, "json", "", "Batch arguments as JSON, or - to read stdin")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the declared MCP tools as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printTools(cmd.OutOrStdout())
		},
	}
}

// queryInput collects osv_query arguments from flags.
type queryInput struct {
	jsonArg   string
	commit    string
	version   string
	name      string
	ecosystem string
	purl      string
	pageToken string
}

func (q *queryInput) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&q.jsonArg, "json", "", "Query arguments as JSON, or - to read stdin (other query flags are ignored)")
	f.StringVar(&q.commit, "commit", "", "Commit SHA to query")
	f.StringVar(&q.version, "version", "", "Version string to query (requires a package)")
	f.StringVar(&q.name, "package-name", "", "Package name (with --ecosystem)")
	f.StringVar(&q.ecosystem, "ecosystem", "", "Package ecosystem (with --package-name)")
	f.StringVar(&q.purl, "purl", "", "Package URL")
	f.StringVar(&q.pageToken, "page-token", "", "Pagination token from a previous response")
}

// arguments builds the same map an MCP client would send. Unset flags are
// left out so the validator sees exactly what the user supplied.
func (q *queryInput) arguments(stdin io.Reader) (any, error) {
	if q.jsonArg != "" {
		return decodeJSONArg(q.jsonArg, stdin)
	}

	args := map[string]any{}
	setIf := func(m map[string]any, key, value string) {
		if value != "" {
			m[key] = value
		}
	}
	setIf(args, "commit", q.commit)
	setIf(args, "version", q.version)
	setIf(args, "pageToken", q.pageToken)

	pkg := map[string]any{}
	setIf(pkg, "name", q.name)
	setIf(pkg, "ecosystem", q.ecosystem)
	setIf(pkg, "purl", q.purl)
	if len(pkg) > 0 {
		args["package"] = pkg
	}
	return args, nil
}

func decodeJSONArg(arg string, stdin io.Reader) (any, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return v, nil
}

func runQuery(cmd *cobra.Command, args any, batch bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, closeLog := newLogger(cfg, transportHTTP)
	defer closeLog()

	queryUC, _, err := newQueryUseCase(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	var result *usecase.QueryResult
	if batch {
		result, err = queryUC.QueryBatch(cmd.Context(), args)
	} else {
		result, err = queryUC.Query(cmd.Context(), args)
	}
	if err != nil {
		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) {
			for _, issue := range validationErr.Issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "- %s\n", issue)
			}
		}
		return err
	}

	text, err := result.Text()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
	return err
}

func printTools(w io.Writer) error {
	tools := make([]any, 0, 2)
	for _, tool := range mcptools.Tools() {
		mcpTool, err := mcptools.ToMCPTool(tool)
		if err != nil {
			return err
		}
		tools = append(tools, mcpTool)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{"tools": tools})
}
