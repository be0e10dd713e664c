package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"aidflow-backend/apperr"
	"aidflow-backend/models"
	"aidflow-backend/repository"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var (
	seedEmail    string
	seedPassword string
	seedName     string
	seedProfile  string

	programsFile string
)

func init() {
	seedUserCmd.Flags().StringVar(&seedEmail, "email", "test@example.com", "Account email")
	seedUserCmd.Flags().StringVar(&seedPassword, "password", "testpassword123", "Account password")
	seedUserCmd.Flags().StringVar(&seedName, "name", "Test User", "Display name")
	seedUserCmd.Flags().StringVar(&seedProfile, "profile", "", "Path to a JSON profile (defaults to a sample household)")

	seedProgramsCmd.Flags().StringVar(&programsFile, "file", "", "Path to a JSON array of programs (defaults to the built-in catalogue)")
}

var seedUserCmd = &cobra.Command{
	Use:   "seed-user",
	Short: "Create a test applicant account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		users := repository.NewUserRepository(db)
		if existing, err := users.GetByEmail(ctx, seedEmail); err == nil {
			fmt.Printf("User with email %s already exists (ID: %s)\n", seedEmail, existing.ID)
			return nil
		} else if !errors.Is(err, apperr.ErrNotFound) {
			return err
		}

		profile := sampleProfile()
		if seedProfile != "" {
			raw, err := os.ReadFile(seedProfile)
			if err != nil {
				return fmt.Errorf("reading profile: %w", err)
			}
			profile = models.ProfileData{}
			if err := json.Unmarshal(raw, &profile); err != nil {
				return fmt.Errorf("profile is not valid JSON: %w", err)
			}
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(seedPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		user := &models.User{
			Email:        seedEmail,
			PasswordHash: string(hashed),
			Name:         seedName,
			Profile:      profile,
		}
		if err := users.Create(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Printf("✅ Test user created successfully!\n")
		fmt.Printf("   ID: %s\n", user.ID)
		fmt.Printf("   Email: %s\n", user.Email)
		fmt.Printf("   Name: %s\n", user.Name)
		return nil
	},
}

var seedProgramsCmd = &cobra.Command{
	Use:   "seed-programs",
	Short: "Insert or update the aid program catalogue",
	RunE: func(cmd *cobra.Command, args []string) error {
		programs := defaultPrograms()
		if programsFile != "" {
			raw, err := os.ReadFile(programsFile)
			if err != nil {
				return fmt.Errorf("reading programs: %w", err)
			}
			programs = nil
			if err := json.Unmarshal(raw, &programs); err != nil {
				return fmt.Errorf("programs file is not a JSON array: %w", err)
			}
		}

		ctx := cmd.Context()
		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		repo := repository.NewProgramRepository(db)
		var cache *repository.CachedProgramStore
		if cfg, err := loadConfig(false); err == nil && cfg.Redis.Addr != "" {
			rdb := redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			defer rdb.Close()
			cache = repository.NewCachedProgramStore(repo, rdb, cfg.Redis.ProgramCacheTTL, newLogger(cfg))
		}
		return seedPrograms(ctx, repo, cache, programs, os.Stdout)
	},
}

type programUpserter interface {
	Upsert(ctx context.Context, p *models.AidProgram) error
}

// seedPrograms saves each program and drops its cached copy.
func seedPrograms(ctx context.Context, repo programUpserter, cache *repository.CachedProgramStore, programs []*models.AidProgram, out io.Writer) error {
	for _, p := range programs {
		if p.ProgramID == "" || p.Name == "" {
			return fmt.Errorf("program %q: program_id and name are required", p.ProgramID)
		}
		if err := repo.Upsert(ctx, p); err != nil {
			return fmt.Errorf("failed to save program %s: %w", p.ProgramID, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, p.ProgramID); err != nil {
				fmt.Fprintf(out, "! %s saved but cache entry not cleared: %v\n", p.ProgramID, err)
			}
		}
		fmt.Fprintf(out, "✓ %s (%s)\n", p.ProgramID, p.Name)
	}
	return nil
}

func sampleProfile() models.ProfileData {
	return models.ProfileData{
		"fullName":          "Test User",
		"monthlyIncome":     1500000,
		"householdSize":     4,
		"employmentStatus":  "informal",
		"housingStatus":     "renting",
		"hasDisability":     false,
		"dependentChildren": 2,
		"province":          "Jawa Barat",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func defaultPrograms() []*models.AidProgram {
	return []*models.AidProgram{
		{
			ProgramID:    "pkh",
			Name:         "Program Keluarga Harapan",
			Description:  "Conditional cash transfer for low-income families",
			RequiredTags: []string{"low_income", "children"},
			Nominal:      int64Ptr(3000000),
			Eligibility:  "Households below the poverty line with children, pregnant members or elderly",
			HowToApply:   "Submit an ID card, a proof of income and a family photo",
		},
		{
			ProgramID:    "bpnt",
			Name:         "Bantuan Pangan Non Tunai",
			Description:  "Monthly food assistance credited to an electronic card",
			RequiredTags: []string{"low_income"},
			Nominal:      int64Ptr(200000),
			Eligibility:  "Households registered as low income",
			HowToApply:   "Submit an ID card and a proof of income",
		},
		{
			ProgramID:    "pip",
			Name:         "Program Indonesia Pintar",
			Description:  "Education grants for school-age children",
			RequiredTags: []string{"education", "children"},
			Nominal:      int64Ptr(1000000),
			Eligibility:  "Students from low-income households",
			HowToApply:   "Submit an ID card, a proof of income and a school letter",
		},
		{
			ProgramID:    "disability-support",
			Name:         "Disability Support Allowance",
			Description:  "Monthly allowance for people with severe disabilities",
			RequiredTags: []string{"disability"},
			Eligibility:  "Applicants with a certified severe disability",
			HowToApply:   "Submit an ID card and a medical certificate",
		},
	}
}
