package commands

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/yeep/cmd/yeepctl/cmdutil"
	"github.com/marmos91/yeep/internal/cli/output"
	"github.com/marmos91/yeep/internal/logger"
	"github.com/marmos91/yeep/pkg/apiclient"
	"github.com/marmos91/yeep/pkg/session"
)

var (
	callData  string
	callFile  string
	callWatch time.Duration
)

var callCmd = &cobra.Command{
	Use:   "call <operation> [key=value...]",
	Short: "Invoke an operation",
	Long: `Invoke an operation of the service and print its result.

Arguments are sent as a JSON object built from --data or --file, with
key=value pairs merged on top. Values that are valid JSON keep their type;
anything else is sent as a string.

With --watch the operation is invoked repeatedly. A call still running
when the next one starts is canceled, so only the freshest result is
printed. The session is renewed in the background while watching.

Examples:
  # Call with key=value arguments
  yeepctl call widget.info id=w1

  # Call with a JSON body
  yeepctl call widget.update --data '{"id":"w1","tags":["a","b"]}'

  # Read arguments from stdin
  echo '{"id":"w1"}' | yeepctl call widget.info --file -

  # Poll every 5 seconds
  yeepctl call widget.list --watch 5s`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	callCmd.Flags().StringVarP(&callData, "data", "d", "", "Arguments as a JSON document")
	callCmd.Flags().StringVarP(&callFile, "file", "f", "", "Read arguments from a JSON file (- for stdin)")
	callCmd.Flags().DurationVarP(&callWatch, "watch", "w", 0, "Repeat the call at this interval")
}

func runCall(cmd *cobra.Command, args []string) error {
	id := args[0]
	callArgs, err := cmdutil.ParseCallArgs(callData, callFile, args[1:], cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := cmdutil.LoadConfig()
	if err != nil {
		return err
	}
	printer, err := cmdutil.NewPrinter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	s, err := cmdutil.OpenSession(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	if callWatch <= 0 {
		payload, err := s.Client.Call(cmd.Context(), id, callArgs)
		if err != nil {
			return errors.New(cmdutil.DescribeError(err))
		}
		return printer.Print(payload)
	}

	unsubscribe := s.Client.Session().Subscribe(func(e session.Event) {
		if e.Type != session.EventRefresh {
			return
		}
		if err := s.SaveRenewed(); err != nil {
			logger.Warn("Failed to save renewed session", logger.Err(err))
		}
	})
	defer unsubscribe()

	return watchCall(cmd.Context(), s.Client, printer, id, callArgs, callWatch)
}

type callResult struct {
	payload json.RawMessage
	err     error
}

// watchCall invokes id every interval until ctx is done. Each call is
// issued under the same cancel key so a newer call aborts an older one.
func watchCall(ctx context.Context, caller apiclient.Caller, printer *output.Printer, id string, args any, interval time.Duration) error {
	key := "watch:" + id
	results := make(chan callResult, 1)

	issue := func() {
		go func() {
			payload, err := caller.Call(ctx, id, args, apiclient.WithCancelKey(key))
			select {
			case results <- callResult{payload: payload, err: err}:
			case <-ctx.Done():
			}
		}()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	issue()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			issue()
		case r := <-results:
			if r.err != nil {
				if apiclient.IsCanceled(r.err) {
					continue
				}
				printer.Error(cmdutil.DescribeError(r.err))
				continue
			}
			if printer.Format() == output.FormatTable {
				printer.Printf("--- %s\n", time.Now().Format(time.RFC3339))
			}
			if err := printer.Print(r.payload); err != nil {
				return err
			}
		}
	}
}
