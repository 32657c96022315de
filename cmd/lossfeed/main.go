// Command lossfeed prints the latest losing compositions of a deployment.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"battlelog-tracker/internal/api"
	"battlelog-tracker/internal/constants"
	"battlelog-tracker/internal/domain"
	"battlelog-tracker/internal/logger"

	"github.com/mattn/go-runewidth"
)

type options struct {
	baseURL          string
	token            string
	n                int
	season           string
	excludeFederated bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("lossfeed", flag.ContinueOnError)
	fs.StringVar(&opts.baseURL, "url", "http://localhost:8080", "base URL of the deployment")
	fs.StringVar(&opts.token, "token", os.Getenv("PEER_TOKEN"), "bearer token for the deployment")
	fs.IntVar(&opts.n, "n", constants.DefaultDigestSize, "number of losses to show")
	fs.StringVar(&opts.season, "season", "", "season to read, current when empty")
	fs.BoolVar(&opts.excludeFederated, "exclude-federated", false, "only show self-hosted records")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if opts.n <= 0 || opts.n > constants.MaxDigestSize {
		return options{}, fmt.Errorf("-n must be between 1 and %d, got %d", constants.MaxDigestSize, opts.n)
	}
	opts.baseURL = strings.TrimRight(opts.baseURL, "/")
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(2)
	}

	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := api.NewPeerClient(opts.baseURL, opts.token, log)
	res, err := client.LatestLosses(ctx, opts.n, opts.season, opts.excludeFederated)
	if err != nil {
		log.Error().Err(err).Str("url", opts.baseURL).Msg("failed to fetch latest losses")
		os.Exit(1)
	}

	render(os.Stdout, res)
}

var headers = []string{"日付", "出典", "側", "プレイヤー", "編成"}

func render(w io.Writer, res *api.LatestLossesResponse) {
	fmt.Fprintf(w, "season %s: %d losses\n", res.Season, len(res.Results))
	if len(res.Results) == 0 {
		return
	}

	rows := make([][]string, 0, len(res.Results))
	for _, d := range res.Results {
		rows = append(rows, []string{d.Date, string(d.Origin), string(d.Side), d.Player, composition(d)})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	writeRow(w, headers, widths)
	for _, row := range rows {
		writeRow(w, row, widths)
	}
}

func composition(d domain.LossDigest) string {
	names := make([]string, 0, domain.CompositionSize)
	for i, c := range d.Characters {
		name := c.Name
		if name == "" {
			name = "-"
		}
		if i == domain.MainSlots {
			names = append(names, "|")
		}
		names = append(names, name)
	}
	return strings.Join(names, " ")
}

func writeRow(w io.Writer, cells []string, widths []int) {
	padded := make([]string, len(cells))
	for i, cell := range cells {
		if i == len(cells)-1 {
			padded[i] = cell
			continue
		}
		padded[i] = runewidth.FillRight(cell, widths[i])
	}
	fmt.Fprintln(w, strings.Join(padded, "  "))
}
