package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"aidflow-backend/analysis"
	"aidflow-backend/models"
	"aidflow-backend/prompt"
	"aidflow-backend/service"
	"aidflow-backend/storage"

	"github.com/spf13/cobra"
)

var (
	analyzeProfile  string
	analyzeDocs     []string
	analyzeCategory string
	analyzeStory    string
	analyzeRaw      bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeProfile, "profile", "", "Path to the applicant profile JSON (required)")
	analyzeCmd.Flags().StringArrayVar(&analyzeDocs, "doc", nil, "Document as kind=path, e.g. id_card=ktp.jpg (repeatable)")
	analyzeCmd.Flags().StringVar(&analyzeCategory, "category", "", "Aid category")
	analyzeCmd.Flags().StringVar(&analyzeStory, "story", "", "Applicant background story")
	analyzeCmd.Flags().BoolVar(&analyzeRaw, "raw", false, "Also print the raw model reply")
	_ = analyzeCmd.MarkFlagRequired("profile")
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run one eligibility analysis without storing anything",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(true)
		if err != nil {
			return err
		}
		log := newLogger(cfg)

		raw, err := os.ReadFile(analyzeProfile)
		if err != nil {
			return fmt.Errorf("reading profile: %w", err)
		}
		profile, err := prompt.DecodeProfile(string(raw))
		if err != nil {
			return err
		}

		docs, err := readDocuments(analyzeDocs)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		provider, err := analysis.NewProvider(ctx, analysis.ProviderConfig{
			Name:            cfg.AI.Provider,
			APIKey:          cfg.AI.APIKey(),
			Model:           cfg.AI.Model,
			MaxOutputTokens: cfg.AI.MaxOutputTokens,
			Temperature:     cfg.AI.Temperature,
			BaseURL:         cfg.AI.OpenAIBaseURL,
		})
		if err != nil {
			return err
		}

		svc := service.NewApplicationService(
			service.WithAnalyzer(analysis.NewAnalyzer(provider,
				analysis.WithTimeout(cfg.AI.Timeout),
				analysis.WithMaxAttempts(cfg.AI.MaxAttempts),
				analysis.WithInitialBackoff(cfg.AI.InitialBackoff),
				analysis.WithLogger(log),
			)),
			service.WithServiceLogger(log),
		)

		result, err := svc.Analyze(ctx, service.AnalyzeRequest{
			Profile:         profile,
			Category:        analyzeCategory,
			BackgroundStory: analyzeStory,
			Documents:       docs,
		})
		if err != nil {
			return err
		}

		out := map[string]interface{}{
			"eligibilityScore":   result.EligibilityScore,
			"eligibilityStatus":  result.EligibilityStatus,
			"eligibilityMetrics": result.EligibilityMetrics,
			"outcome":            result.Outcome,
		}
		if analyzeRaw {
			out["raw"] = result.Raw
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

// readDocuments loads kind=path pairs as inline prompt documents.
func readDocuments(args []string) ([]prompt.Document, error) {
	counts := make(map[models.DocumentKind]int)
	docs := make([]prompt.Document, 0, len(args))
	for _, arg := range args {
		kindStr, path, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("--doc %q: expected kind=path", arg)
		}
		kind := models.DocumentKind(kindStr)
		if !kind.Valid() {
			return nil, fmt.Errorf("--doc %q: unknown document kind %q", arg, kindStr)
		}
		mimeType := storage.DetectContentType(path)
		if !strings.HasPrefix(mimeType, "image/") {
			return nil, fmt.Errorf("--doc %q: only images can be analyzed inline", arg)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		counts[kind]++
		label := string(kind)
		if counts[kind] > 1 {
			label = fmt.Sprintf("%s_%d", kind, counts[kind])
		}
		docs = append(docs, prompt.Document{
			Label:    label,
			MIMEType: mimeType,
			Data:     data,
		})
	}
	return docs, nil
}
