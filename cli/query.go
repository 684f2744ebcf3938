package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/santif/pgbridge/bridge"
	"github.com/santif/pgbridge/handle"
)

func newQueryCommand(a *app) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "query [sql]",
		Short: "Run a statement and print its rows",
		Long: `Run a statement and print every row it returns, one per line with
tab separated values. Parameters bind to $1, $2, ... in the order given:

  pgbridge query 'SELECT $1::int4 + 1' --param int4=41`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd.Context(), args[0], params, func(b *bridge.Bridge, q handle.Token) error {
				return a.printRows(cmd.Context(), cmd.OutOrStdout(), b, q)
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, `Parameter as type=value (text, int4, float8, raw); \N is NULL`)
	return cmd
}

func newExecCommand(a *app) *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "exec [sql]",
		Short: "Run a statement and print the number of rows affected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd.Context(), args[0], params, func(b *bridge.Bridge, q handle.Token) error {
				env := b.Exec(cmd.Context(), q)
				if err := bridge.TakeErr(b, env); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d rows affected\n", env.Payload)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, `Parameter as type=value (text, int4, float8, raw); \N is NULL`)
	return cmd
}

// withQuery connects, builds the query with its parameters and hands it to run.
// Every connection is closed before returning.
func (a *app) withQuery(ctx context.Context, sql string, specs []string, run func(*bridge.Bridge, handle.Token) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	params, err := parseParams(specs)
	if err != nil {
		return err
	}

	b, err := a.newBridge()
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Shutdown(ctx); err != nil {
			a.logger.Error("closing connections failed", err)
		}
	}()

	conn := b.Connect(ctx, a.cfg.ResolveDSN())
	if err := bridge.TakeErr(b, conn); err != nil {
		return err
	}

	q := b.NewQuery(conn.Payload, sql)
	if err := bridge.TakeErr(b, q); err != nil {
		return err
	}
	for _, p := range params {
		if err := bridge.TakeErr(b, b.AddParam(q.Payload, p)); err != nil {
			return err
		}
	}

	return run(b, q.Payload)
}

func (a *app) printRows(ctx context.Context, w io.Writer, b *bridge.Bridge, q handle.Token) error {
	st := b.ExecWithResult(ctx, q)
	if err := bridge.TakeErr(b, st); err != nil {
		return err
	}
	defer func() {
		if err := bridge.TakeErr(b, b.StreamClose(st.Payload)); err != nil {
			a.logger.Error("closing result stream failed", err)
		}
	}()

	count := 0
	for {
		r := b.NextRow(st.Payload)
		if err := bridge.TakeErr(b, r); err != nil {
			return err
		}
		if r.Payload == handle.Nil {
			break
		}

		line, err := formatRow(b, r.Payload)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, line)
		count++
	}

	fmt.Fprintf(w, "(%d rows)\n", count)
	return nil
}

func formatRow(b *bridge.Bridge, r handle.Token) (string, error) {
	n := b.RowLen(r)
	if err := bridge.TakeErr(b, n); err != nil {
		return "", err
	}

	cols := make([]string, n.Payload)
	for i := range cols {
		it := b.RowItem(r, uint64(i))
		if err := bridge.TakeErr(b, it); err != nil {
			return "", err
		}
		s, err := bridge.DecodeString(it.Payload)
		if err != nil {
			return "", err
		}
		cols[i] = s
	}
	return strings.Join(cols, "\t"), nil
}
