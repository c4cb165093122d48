package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

// maxRecordLineBytes bounds a single JSONL line; resume records with long
// experience lists can exceed bufio's default 64 KiB token size.
const maxRecordLineBytes = 4 << 20

// newStatsCmd creates the 'stats' subcommand, a read-only report over the
// output JSONL file. It runs without the service container.
func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarizes a harvested JSONL file",
		Long: `Reads the output JSONL file and prints record counts, the split
between AI and fallback extraction, field coverage, and the most common
email domains.`,
		Annotations: map[string]string{skipAppAnnotation: "true"},
		RunE:        runStatsCommand,
	}

	flags := cmd.Flags()
	flags.String("in", "", "JSONL file to summarize (default: the configured output path)")
	flags.Int("top", 5, "number of email domains to list")

	return cmd
}

func runStatsCommand(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("in")
	if err != nil {
		return err
	}
	if path == "" {
		path = viper.GetString("harvest.output_path")
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return harvest.NewFatalConfigError(fmt.Errorf("open records file: %w", err))
	}
	defer f.Close()

	report, err := summarizeRecords(f, top)
	if err != nil {
		return fmt.Errorf("summarize %s: %w", path, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n\n", path)
	return report.write(cmd.OutOrStdout())
}

// statsReport aggregates counters over one records file.
type statsReport struct {
	Total       int
	Unique      int
	ParseErrors int
	ByMethod    map[harvest.ExtractionMethod]int
	WithName    int
	WithEmail   int
	WithGitHub  int
	TopDomains  []domainCount
}

type domainCount struct {
	Domain string
	Count  int
}

// summarizeRecords scans a JSONL stream and tallies per-record counters.
// Malformed lines are counted, not fatal; a partially written trailing line
// after a crash should not hide the rest of the file.
func summarizeRecords(r io.Reader, top int) (*statsReport, error) {
	report := &statsReport{ByMethod: make(map[harvest.ExtractionMethod]int)}
	domains := make(map[string]int)
	ids := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRecordLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec harvest.ResumeRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			report.ParseErrors++
			continue
		}
		report.Total++
		if rec.ID != "" {
			ids[rec.ID] = struct{}{}
		}
		report.ByMethod[rec.Method]++
		if rec.Name != nil && *rec.Name != "" {
			report.WithName++
		}
		if rec.GitHub != nil && *rec.GitHub != "" {
			report.WithGitHub++
		}
		if rec.Email != nil && *rec.Email != "" {
			report.WithEmail++
			if domain := emailDomain(*rec.Email); domain != "" {
				domains[domain]++
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan records: %w", err)
	}

	report.Unique = len(ids)
	report.TopDomains = topDomains(domains, top)
	return report, nil
}

func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// topDomains orders domains by count, breaking ties alphabetically.
func topDomains(domains map[string]int, top int) []domainCount {
	out := make([]domainCount, 0, len(domains))
	for domain, count := range domains {
		out = append(out, domainCount{Domain: domain, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	if top > 0 && len(out) > top {
		out = out[:top]
	}
	return out
}

func (s *statsReport) write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "records\t%d\n", s.Total)
	fmt.Fprintf(tw, "unique documents\t%d\n", s.Unique)
	if s.ParseErrors > 0 {
		fmt.Fprintf(tw, "parse errors\t%d\n", s.ParseErrors)
	}
	for _, method := range []harvest.ExtractionMethod{harvest.ExtractionAI, harvest.ExtractionFallback} {
		if n, ok := s.ByMethod[method]; ok {
			fmt.Fprintf(tw, "extracted via %s\t%d\n", method, n)
		}
	}
	fmt.Fprintf(tw, "with name\t%d\n", s.WithName)
	fmt.Fprintf(tw, "with email\t%d\n", s.WithEmail)
	fmt.Fprintf(tw, "with github\t%d\n", s.WithGitHub)
	if len(s.TopDomains) > 0 {
		fmt.Fprintf(tw, "\ntop email domains\t\n")
		for _, dc := range s.TopDomains {
			fmt.Fprintf(tw, "  %s\t%d\n", dc.Domain, dc.Count)
		}
	}
	return tw.Flush()
}
