package cli

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

func buildSortCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <file>...",
		Short: "Sort the URLs by length, then value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.Context(), args)
			if err != nil {
				return err
			}
			return writeLines(cmd.OutOrStdout(), SortURLs(lines))
		},
	}
}

func buildAnalyzeCommand() *cobra.Command {
	var common bool
	cmd := &cobra.Command{
		Use:   "analyze <file>...",
		Short: "Print statistics about the URL shortcodes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lines, err := readLines(cmd.Context(), args)
			if err != nil {
				return err
			}
			return Analyze(lines).Write(cmd.OutOrStdout(), common)
		},
	}
	cmd.Flags().BoolVar(&common, "common", false, "order characters by most common")
	return cmd
}

// SortURLs orders by length, then value, and drops duplicates.
func SortURLs(lines []string) []string {
	out := slices.Clone(lines)
	slices.SortFunc(out, func(a, b string) int {
		if c := cmp.Compare(len(a), len(b)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return slices.Compact(out)
}

func writeLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// Count is one row of a frequency table.
type Count[K cmp.Ordered] struct {
	Key   K
	Count int
}

// ShortcodeStats summarizes the shortcodes of a URL list.
type ShortcodeStats struct {
	Shortcodes int
	Lengths    []Count[int]  // by length
	Chars      []Count[rune] // by character
	CharsUsed  int
}

// Analyze takes the part after the first "/" of each line as its
// shortcode. Repeated adjacent lines count once.
func Analyze(lines []string) ShortcodeStats {
	lengths := map[int]int{}
	chars := map[rune]int{}
	var st ShortcodeStats
	prev := ""
	for i, line := range lines {
		if i > 0 && line == prev {
			continue
		}
		prev = line
		code := line
		if _, after, ok := strings.Cut(line, "/"); ok {
			code = after
		}
		n := 0
		for _, r := range code {
			chars[r]++
			n++
		}
		st.CharsUsed += n
		lengths[n]++
		st.Shortcodes++
	}
	st.Lengths = sortedCounts(lengths)
	st.Chars = sortedCounts(chars)
	return st
}

func sortedCounts[K cmp.Ordered](m map[K]int) []Count[K] {
	out := make([]Count[K], 0, len(m))
	for k, v := range m {
		out = append(out, Count[K]{Key: k, Count: v})
	}
	slices.SortFunc(out, func(a, b Count[K]) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// MostCommon returns the character table ordered by descending count.
func (s ShortcodeStats) MostCommon() []Count[rune] {
	out := slices.Clone(s.Chars)
	slices.SortStableFunc(out, func(a, b Count[rune]) int { return cmp.Compare(b.Count, a.Count) })
	return out
}

func (s ShortcodeStats) Write(w io.Writer, common bool) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Number of shortcodes:\t%d\n", s.Shortcodes)
	fmt.Fprintf(&b, "Number of string lengths:\t%d\n", len(s.Lengths))
	for _, c := range s.Lengths {
		fmt.Fprintf(&b, "%d\t%d\t%s\n", c.Key, c.Count, percent(c.Count, s.Shortcodes))
	}
	fmt.Fprintf(&b, "Number of unique characters:\t%d\n", len(s.Chars))
	fmt.Fprintf(&b, "Number of characters used:\t%d\n", s.CharsUsed)
	chars := s.Chars
	if common {
		chars = s.MostCommon()
	}
	for _, c := range chars {
		fmt.Fprintf(&b, "%c\t%d\t%s\n", c.Key, c.Count, percent(c.Count, s.CharsUsed))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func percent(n, total int) string {
	if total == 0 {
		return fmt.Sprintf("%7.3f%%", 0.0)
	}
	return fmt.Sprintf("%7.3f%%", float64(n)/float64(total)*100)
}
