package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/medassist/medassist/internal/config"
	"github.com/medassist/medassist/internal/domain/conversation"
	"github.com/medassist/medassist/internal/domain/patient"
	"github.com/medassist/medassist/internal/platform/db"
	"github.com/medassist/medassist/internal/platform/journal"
	"github.com/medassist/medassist/internal/platform/upload"
)

func printPatients(w io.Writer, patients []*patient.Patient) {
	fmt.Fprintf(w, "%-38s %-28s %-12s %-12s %s\n", "ID", "NAME", "MRN", "DOB", "LAST VISIT")
	for _, p := range patients {
		fmt.Fprintf(w, "%-38s %-28s %-12s %-12s %s\n", p.ID, p.Name, p.MedicalRecordNumber, p.DateOfBirth, p.LastVisit)
	}
}

func printPatient(w io.Writer, p *patient.Patient) {
	rows := []struct{ label, value string }{
		{"ID", p.ID},
		{"Name", p.Name},
		{"MRN", p.MedicalRecordNumber},
		{"Date of birth", p.DateOfBirth},
		{"Last visit", p.LastVisit},
		{"Email", p.Email},
		{"Phone", p.Phone},
		{"Address", p.Address},
		{"Emergency contact", p.EmergencyContact},
		{"Insurance", strings.TrimSpace(p.InsuranceProvider + " " + p.InsuranceNumber)},
		{"Primary care", p.PrimaryCarePhysician},
		{"Allergies", strings.Join(p.Allergies, ", ")},
		{"Medications", strings.Join(p.Medications, ", ")},
		{"Conditions", strings.Join(p.Conditions, ", ")},
	}
	for _, r := range rows {
		if r.value != "" {
			fmt.Fprintf(w, "%-18s %s\n", r.label+":", r.value)
		}
	}
}

func patientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patients",
		Short: "Manage the patient directory",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List patients, optionally filtered locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			all, err := a.patients.List(cmd.Context())
			if err != nil {
				return err
			}
			printPatients(cmd.OutOrStdout(), patient.Filter(all, filter))
			return nil
		},
	}
	listCmd.Flags().String("filter", "", "Match name, MRN or date of birth")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "search QUERY",
		Short: "Search patients on the backend",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			matches, err := a.patients.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printPatients(cmd.OutOrStdout(), matches)
			return nil
		},
	})

	getCmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			byMRN, _ := cmd.Flags().GetBool("mrn")
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			var p *patient.Patient
			if byMRN {
				p, err = a.patients.GetByMRN(cmd.Context(), args[0])
			} else {
				p, err = a.patients.Get(cmd.Context(), args[0])
			}
			if err != nil {
				return err
			}
			printPatient(cmd.OutOrStdout(), p)
			return nil
		},
	}
	getCmd.Flags().Bool("mrn", false, "Treat the argument as a medical record number")
	cmd.AddCommand(getCmd)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Add a patient",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := patientInputFromFlags(cmd)
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			p, err := a.patients.Create(cmd.Context(), in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created patient %s (%s)\n", p.Name, p.ID)
			return nil
		},
	}
	addPatientFlags(createCmd)
	cmd.AddCommand(createCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Remove a patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.patients.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted patient %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func addPatientFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("name", "", "Full name")
	f.String("dob", "", "Date of birth (YYYY-MM-DD)")
	f.String("mrn", "", "Medical record number")
	f.String("last-visit", "", "Last visit (YYYY-MM-DD)")
	f.String("email", "", "Email address")
	f.String("phone", "", "Phone number")
	f.String("address", "", "Postal address")
	f.String("emergency-contact", "", "Emergency contact")
	f.String("insurance-provider", "", "Insurance provider")
	f.String("insurance-number", "", "Insurance number")
	f.String("pcp", "", "Primary care physician")
	f.StringSlice("allergy", nil, "Allergy (repeatable)")
	f.StringSlice("medication", nil, "Current medication (repeatable)")
	f.StringSlice("condition", nil, "Medical condition (repeatable)")
}

func patientInputFromFlags(cmd *cobra.Command) *patient.Input {
	f := cmd.Flags()
	str := func(name string) string { v, _ := f.GetString(name); return v }
	list := func(name string) []string { v, _ := f.GetStringSlice(name); return v }
	return &patient.Input{
		Name:                 str("name"),
		DateOfBirth:          str("dob"),
		MedicalRecordNumber:  str("mrn"),
		LastVisit:            str("last-visit"),
		Email:                str("email"),
		Phone:                str("phone"),
		Address:              str("address"),
		EmergencyContact:     str("emergency-contact"),
		InsuranceProvider:    str("insurance-provider"),
		InsuranceNumber:      str("insurance-number"),
		PrimaryCarePhysician: str("pcp"),
		Allergies:            list("allergy"),
		Medications:          list("medication"),
		Conditions:           list("condition"),
	}
}

func kindFlag(cmd *cobra.Command) (conversation.Kind, error) {
	v, _ := cmd.Flags().GetString("kind")
	k := conversation.Kind(v)
	if !k.Valid() {
		return "", fmt.Errorf("kind must be %q or %q, got %q", conversation.KindDocument, conversation.KindMedical, v)
	}
	return k, nil
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Manage stored conversations",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations of one kind, or all with --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			var items []conversation.Summary
			if all {
				items, err = a.convs.ListAll(cmd.Context())
			} else {
				var k conversation.Kind
				if k, err = kindFlag(cmd); err == nil {
					items, err = a.convs.List(cmd.Context(), k)
				}
			}
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-38s %-32s %-6s %s\n", "ID", "TITLE", "MSGS", "CREATED")
			for _, s := range items {
				fmt.Fprintf(w, "%-38s %-32s %-6d %s\n", s.ConversationID, s.Title, s.MessageCount, s.Created().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	listCmd.Flags().Bool("all", false, "List every kind")
	cmd.AddCommand(listCmd)

	renameCmd := &cobra.Command{
		Use:   "rename ID TITLE",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			store := conversation.NewStore(k, a.convs, a.logger)
			if err := store.Rename(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(renameCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := kindFlag(cmd)
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			store := conversation.NewStore(k, a.convs, a.logger)
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(deleteCmd)

	cmd.PersistentFlags().String("kind", string(conversation.KindDocument), "Conversation kind: document or medical")
	return cmd
}

func analyzeImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-image PATH",
		Short: "Analyze a medical image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			a, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			text, err := a.imaging.Analyze(cmd.Context(), upload.File{Name: filepath.Base(args[0]), Data: data})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

// journalDB opens the journal database for the maintenance commands, which
// need it even outside serve.
func journalDB(ctx context.Context) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.JournalEnabled() {
		return nil, nil, fmt.Errorf("DATABASE_URL is not set")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, journal.Migrations()), pool.Close, nil
}

func journalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Manage the workflow transition journal",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending journal migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, done, err := journalDB(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show journal migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, done, err := journalDB(cmd.Context())
			if err != nil {
				return err
			}
			defer done()
			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status, appliedAt := "pending", ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	})

	return cmd
}
