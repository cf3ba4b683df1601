package main

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/brizzai/drinklog/internal/requester"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// probeResult summarizes a burst of concurrent requests
type probeResult struct {
	Total        int
	Succeeded    int
	Unauthorized int
	Failed       int
	Took         time.Duration
}

// probe sends n concurrent GET requests to path. Individual failures are
// counted, not returned.
func probe(ctx context.Context, r *requester.HTTPRequester, path string, n int) probeResult {
	var ok, unauthorized, failed atomic.Int64
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(64)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			resp, err := r.Get(ctx, path, nil)
			switch {
			case resp != nil && resp.StatusCode == http.StatusUnauthorized:
				unauthorized.Add(1)
			case err != nil || !resp.OK():
				failed.Add(1)
			default:
				ok.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	return probeResult{
		Total:        n,
		Succeeded:    int(ok.Load()),
		Unauthorized: int(unauthorized.Load()),
		Failed:       int(failed.Load()),
		Took:         time.Since(start),
	}
}

func newProbeCmd() *cobra.Command {
	var (
		count int
		path  string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Fire concurrent requests to exercise the shared token refresh",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, func(ctx context.Context, c client) error {
				if _, err := hydrate(ctx, c.Session); err != nil {
					pterm.Warning.Println(err)
				}

				spinner, _ := pterm.DefaultSpinner.Start("Sending ", count, " requests to ", path)
				res := probe(ctx, c.Requester, path, count)
				if res.Succeeded == res.Total {
					spinner.Success("Done")
				} else {
					spinner.Warning("Done with failures")
				}

				return pterm.DefaultTable.WithHasHeader().WithData(pterm.TableData{
					{"Requests", "Succeeded", "Unauthorized", "Failed", "Took"},
					{
						pterm.Sprint(res.Total),
						pterm.Sprint(res.Succeeded),
						pterm.Sprint(res.Unauthorized),
						pterm.Sprint(res.Failed),
						res.Took.Round(time.Millisecond).String(),
					},
				}).Render()
			})
		},
	}

	cmd.Flags().IntVarP(&count, "count", "n", 20, "Number of concurrent requests")
	cmd.Flags().StringVar(&path, "path", "/drinks", "Path to request")
	return cmd
}
