package main

import (
	"encoding/json"
	"strings"

	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/couchcryptid/reseller-geocoder/internal/resolver"
	"github.com/spf13/cobra"
)

// resolveLine is the JSON line printed for one address.
type resolveLine struct {
	Address  string              `json:"address"`
	Query    string              `json:"query"`
	Location *domain.Coordinates `json:"location"`
	Source   string              `json:"source"`
	Attempts int                 `json:"attempts"`
	Error    string              `json:"error,omitempty"`
}

func newResolveLine(raw string, res resolver.Resolution) resolveLine {
	line := resolveLine{
		Address:  raw,
		Query:    res.Query,
		Location: res.Location(),
		Source:   res.Source,
		Attempts: len(res.Attempts),
	}
	if !res.Found {
		line.Source = domain.GeoSourceUnresolved
		if res.LastErr != nil {
			line.Error = res.LastErr.Error()
		}
	}
	return line
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <address>",
	Short: "Resolve a single address",
	Long: `
Resolve one address and print a JSON line with its coordinates. Multiple
arguments are joined with spaces, so quoting is optional. An address that
cannot be resolved prints a null location; it is not an error.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		svc, _, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		raw := strings.Join(args, " ")
		res, err := svc.Resolver.Resolve(ctx, raw)
		if err != nil {
			return err
		}
		return json.NewEncoder(cmd.OutOrStdout()).Encode(newResolveLine(raw, res))
	},
}
