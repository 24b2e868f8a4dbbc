package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/output"
)

var opsCmd = &cobra.Command{
	Use:     "ops [prefix]",
	Aliases: []string{"operations"},
	Short:   "List the operations published by the service",
	Long: `Fetch the service schema and list its callable operations.

An optional prefix filters operations by id, e.g. "widget." lists the
operations of the widget namespace.

Examples:
  # List every operation
  yeepctl ops

  # Only the session operations
  yeepctl ops session.

  # As JSON
  yeepctl ops -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOps,
}

// OperationInfo describes one callable operation.
type OperationInfo struct {
	ID     string `json:"id" yaml:"id"`
	Method string `json:"method" yaml:"method"`
	Path   string `json:"path" yaml:"path"`
}

// OperationList is the ops output.
type OperationList struct {
	Version    string          `json:"version" yaml:"version"`
	Operations []OperationInfo `json:"operations" yaml:"operations"`
}

// Headers implements TableRenderer.
func (l OperationList) Headers() []string {
	return []string{"OPERATION", "METHOD", "PATH"}
}

// Rows implements TableRenderer.
func (l OperationList) Rows() [][]string {
	rows := make([][]string, 0, len(l.Operations))
	for _, op := range l.Operations {
		rows = append(rows, []string{op.ID, op.Method, op.Path})
	}
	return rows
}

func runOps(cmd *cobra.Command, args []string) error {
	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	client, err := cmdutil.OpenClient(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	table, err := client.API(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load schema: %s", cmdutil.DescribeError(err))
	}

	prefix := ""
	if len(args) == 1 {
		prefix = args[0]
	}

	list := OperationList{Version: table.Version()}
	for _, op := range table.Operations() {
		if !strings.HasPrefix(op.ID(), prefix) {
			continue
		}
		list.Operations = append(list.Operations, OperationInfo{ID: op.ID(), Method: op.Method(), Path: op.Path()})
	}

	out := cmd.OutOrStdout()
	if format, _ := cmdutil.GetOutputFormatParsed(); format == output.FormatTable && list.Version != "" {
		fmt.Fprintf(out, "Schema version: %s\n\n", list.Version)
	}
	return cmdutil.PrintOutput(out, list, len(list.Operations) == 0, "No operations found.", list)
}
