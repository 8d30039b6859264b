package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/couchcryptid/reseller-geocoder/internal/batch"
	"github.com/couchcryptid/reseller-geocoder/internal/domain"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type batchOptions struct {
	input  string
	format string
}

var batchOpts batchOptions

// batchLine is the JSON line printed for one input record.
type batchLine struct {
	Address  string              `json:"address"`
	Location *domain.Coordinates `json:"location"`
	Source   string              `json:"source"`
	Error    string              `json:"error,omitempty"`
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Resolve every address in a file",
	Long: `
Resolve a list of addresses and print one JSON line per input record, in input
order. Duplicate addresses are resolved once. With --format lines (default)
each non-blank line is an address; with --format json the input is a JSON
array of strings, which allows multi-line addresses.

A progress bar is drawn on stderr when it is a terminal.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, err := openInput(batchOpts.input)
		if err != nil {
			return err
		}
		defer in.Close()

		addresses, err := readAddresses(in, batchOpts.format)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		svc, logger, err := openService(ctx, cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		bar := newProgress(os.Stderr)
		ctrl, err := svc.NewBatch(batch.WithProgress(bar.update))
		if err != nil {
			return err
		}

		report, runErr := ctrl.ResolveMany(ctx, addresses)
		bar.finish()

		if err := writeReport(cmd.OutOrStdout(), report); err != nil {
			return err
		}
		logger.Info("batch complete",
			"succeeded", report.Succeeded,
			"failed", report.Failed,
			"skipped", report.Skipped,
		)
		return runErr
	},
}

func init() {
	f := batchCmd.Flags()
	f.StringVarP(&batchOpts.input, "input", "i", "", "address file, or - for stdin")
	f.StringVar(&batchOpts.format, "format", "lines", "input format: lines or json")
	_ = batchCmd.MarkFlagRequired("input")
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	return f, nil
}

// readAddresses parses the batch input. Blank lines are skipped in lines
// format; a JSON array is taken verbatim.
func readAddresses(r io.Reader, format string) ([]string, error) {
	switch format {
	case "json":
		var addresses []string
		if err := json.NewDecoder(r).Decode(&addresses); err != nil {
			return nil, fmt.Errorf("decode input: %w", err)
		}
		return addresses, nil
	case "lines":
		var addresses []string
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				addresses = append(addresses, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}
		return addresses, nil
	default:
		return nil, errors.New("unknown --format: must be lines or json")
	}
}

func writeReport(w io.Writer, report batch.Report) error {
	enc := json.NewEncoder(w)
	for _, r := range report.Results {
		line := batchLine{Address: r.Address, Location: r.Location, Source: r.Source}
		if r.Err != nil {
			line.Error = r.Err.Error()
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("write result: %w", err)
		}
	}
	return nil
}

// progress draws a bar over distinct addresses. It is a no-op unless out is a
// terminal.
type progress struct {
	out *os.File
	tty bool
	bar *progressbar.ProgressBar
}

func newProgress(out *os.File) *progress {
	return &progress{out: out, tty: isatty.IsTerminal(out.Fd())}
}

func (p *progress) update(done, total int) {
	if !p.tty {
		return
	}
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Geocoding"),
			progressbar.OptionSetWriter(p.out),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progress) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
