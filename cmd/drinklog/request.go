package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/brizzai/drinklog/internal/auth"
	"github.com/brizzai/drinklog/internal/requester"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRequestCmd() *cobra.Command {
	var (
		data  string
		query []string
	)

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send an authenticated request and print the response",
		Example: `  drinklog request GET /drinks
  drinklog request POST /drinks --data '{"name":"water","volumeMl":250}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &requester.Request{
				Method: strings.ToUpper(args[0]),
				Path:   args[1],
			}
			if data != "" {
				var body interface{}
				if err := json.Unmarshal([]byte(data), &body); err != nil {
					return fmt.Errorf("--data must be JSON: %w", err)
				}
				req.Body = body
			}
			if len(query) > 0 {
				req.Query = url.Values{}
				for _, kv := range query {
					k, v, _ := strings.Cut(kv, "=")
					req.Query.Add(k, v)
				}
			}

			return withClient(cmd, func(ctx context.Context, c client) error {
				state, err := hydrate(ctx, c.Session)
				if err != nil {
					pterm.Warning.Println(err)
				} else if state == auth.StateLoggedOut {
					pterm.Warning.Println("Not signed in, sending without credentials")
				}

				resp, err := c.Requester.Do(ctx, req)
				var authErr *requester.AuthorizationError
				if err != nil && !errors.As(err, &authErr) {
					return err
				}
				printResponse(resp)

				select {
				case cause := <-c.Session.Invalidated():
					pterm.Error.Printfln("Session expired, please sign in again (%v)", cause)
				default:
				}
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter as key=value (repeatable)")
	return cmd
}

func printResponse(resp *requester.Response) {
	status := pterm.Green
	if !resp.OK() {
		status = pterm.Red
	}
	pterm.Println(status(fmt.Sprintf("HTTP %d", resp.StatusCode)))

	var out bytes.Buffer
	if err := json.Indent(&out, resp.Body, "", "  "); err != nil {
		pterm.Println(string(resp.Body))
		return
	}
	pterm.Println(out.String())
}
