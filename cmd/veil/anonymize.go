package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/raaihank/llm-veil/internal/config"
	"github.com/raaihank/llm-veil/internal/logger"
	"github.com/raaihank/llm-veil/internal/privacy"
	"github.com/spf13/cobra"
)

type anonymizeOutput struct {
	AnonymizedText string          `json:"anonymized_text"`
	EntityCount    int             `json:"entity_count"`
	Mappings       []mappingOutput `json:"mappings"`
}

// mappingOutput carries the original value. It is only printed locally.
type mappingOutput struct {
	Placeholder string             `json:"placeholder"`
	EntityType  privacy.EntityType `json:"entity_type"`
	Original    string             `json:"original"`
	Start       int                `json:"start"`
	End         int                `json:"end"`
	Confidence  float64            `json:"confidence"`
}

func newAnonymizeCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "anonymize [text|-]",
		Short: "Anonymize text from the arguments or stdin",
		Long: `Anonymize text locally with the configured detectors.

Examples:
  # Anonymize an argument
  veil anonymize "Contact john.doe@example.com"

  # Anonymize stdin
  cat mail.txt | veil anonymize -

  # Machine readable output including mappings
  veil anonymize --json "IBAN DE89370400440532013000"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			anonymizer, err := privacy.New(cfg.Privacy, logger.NewNop(), nil)
			if err != nil {
				return fmt.Errorf("failed to create anonymizer: %w", err)
			}

			result := anonymizer.Anonymize(cmd.Context(), text)
			if asJSON {
				return writeAnonymizeJSON(cmd.OutOrStdout(), result)
			}
			return writeAnonymizeTable(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON including placeholder mappings")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		content, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}
	return strings.Join(args, " "), nil
}

func writeAnonymizeJSON(w io.Writer, result *privacy.Result) error {
	out := anonymizeOutput{
		AnonymizedText: result.AnonymizedText(),
		EntityCount:    result.EntityCount(),
		Mappings:       []mappingOutput{},
	}
	for _, m := range result.Mappings() {
		out.Mappings = append(out.Mappings, mappingOutput{
			Placeholder: m.Placeholder,
			EntityType:  m.Entity.Type,
			Original:    m.Entity.OriginalValue,
			Start:       m.Entity.Start,
			End:         m.Entity.End,
			Confidence:  m.Entity.Confidence,
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeAnonymizeTable(w io.Writer, result *privacy.Result) error {
	fmt.Fprintln(w, result.AnonymizedText())
	if !result.HasAnonymizedEntities() {
		return nil
	}

	mappings := result.Mappings()
	sort.Slice(mappings, func(i, j int) bool { return mappings[i].Entity.Start < mappings[j].Entity.Start })

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLACEHOLDER\tTYPE\tPOSITION\tCONFIDENCE")
	for _, m := range mappings {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%.2f\n", m.Placeholder, m.Entity.Type, m.Entity.Start, m.Entity.End, m.Entity.Confidence)
	}
	return tw.Flush()
}

func newPatternsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patterns",
		Short: "List entity types, placeholder prefixes and pattern counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			return writePatterns(cmd.OutOrStdout(), cfg.Privacy)
		},
	}
}

func writePatterns(w io.Writer, cfg config.PrivacyConfig) error {
	reg, err := privacy.Compile(privacy.DefaultPatterns(), cfg.MatchTimeout)
	if err != nil {
		return fmt.Errorf("failed to compile patterns: %w", err)
	}
	anonymizer, err := privacy.NewWithRegistry(reg, cfg, logger.NewNop(), nil)
	if err != nil {
		return fmt.Errorf("failed to create anonymizer: %w", err)
	}

	enabled := make(map[privacy.EntityType]bool)
	for _, t := range anonymizer.EnabledTypes() {
		enabled[t] = true
	}
	counts := reg.CountByType()

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tPREFIX\tPATTERNS\tENABLED")
	for _, t := range privacy.AllEntityTypes() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%t\n", t, t.Prefix(), counts[t], enabled[t])
	}
	return tw.Flush()
}
