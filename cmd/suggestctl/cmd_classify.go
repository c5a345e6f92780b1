package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"studiofinder/suggestservice/internal/domain"
	"studiofinder/suggestservice/internal/suggest"
)

type classification struct {
	Query      string           `json:"query"`
	Kind       domain.QueryKind `json:"kind"`
	Postcode   bool             `json:"postcode"`
	QueryUsers bool             `json:"queryUsers"`
}

func classify(query string) classification {
	kind := suggest.Classify(query)
	return classification{
		Query:      query,
		Kind:       kind,
		Postcode:   suggest.IsPostcode(query),
		QueryUsers: suggest.ShouldQueryUsers(query, kind),
	}
}

var classifyCmd = &cobra.Command{
	Use:   "classify [query...]",
	Short: "Classify queries as location or user",
	Long: `Classifies each argument, or each stdin line when no argument is given.

$ echo "SW1A 1AA" | suggestctl classify --json
{"query":"SW1A 1AA","kind":"location","postcode":true,"queryUsers":true}
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := newPrinter(cmd.OutOrStdout())
		emit := func(query string) error {
			result := classify(query)
			if !p.table {
				return p.json(result)
			}
			_, err := fmt.Fprintf(p.out, "%-30q %-9s postcode=%t users=%t\n", result.Query, result.Kind, result.Postcode, result.QueryUsers)
			return err
		}
		for _, arg := range args {
			if err := emit(arg); err != nil {
				return err
			}
		}
		if len(args) > 0 {
			return nil
		}

		if isatty.IsTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Enter one query per line…")
		}
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			if err := emit(strings.TrimRight(scanner.Text(), "\r")); err != nil {
				return err
			}
		}
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
