// Package cli builds the furlat command tree.
//
//	furlat find <domain>        search for short URLs of a domain
//	furlat sort <files...>      sort URL lists by length, then value
//	furlat analyze <files...>   print shortcode statistics
package cli

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// Version is set at build time with -ldflags.
var Version = "dev"

func BuildCLI() *cobra.Command {
	root := &cobra.Command{
		Use:           "furlat",
		Short:         "Find shortened URLs through search engines",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildFindCommand())
	root.AddCommand(buildSortCommand())
	root.AddCommand(buildAnalyzeCommand())
	return root
}

// readLines loads every file concurrently and returns their non-blank
// lines, trimmed, in argument order.
func readLines(ctx context.Context, paths []string) ([]string, error) {
	parts := make([][]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			lines, err := readFile(ctx, p)
			parts[i] = lines
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out, nil
}

func readFile(ctx context.Context, path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	for sc.Scan() {
		if len(lines)%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if s := strings.TrimSpace(sc.Text()); s != "" {
			lines = append(lines, s)
		}
	}
	return lines, sc.Err()
}
