package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/example/certs/internal/app"
	"github.com/example/certs/internal/cmdargs"
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/wire"
)

// Configuration row names read by --args-from-database.
const (
	configCertGeneration       = "CertificateGenerationCommandConfiguration"
	configAllowlistGeneration  = "AllowListGenerationConfiguration"
	configRegenerateNoIDV      = "RegenerateNoIDVCertConfiguration"
	configRegenerateUnverified = "RegenerateUnverifiedCertsConfiguration"
	configPurgePII             = "PurgePIIFromCertificatesConfiguration"
	configPurgePDF             = "PurgeReferencestoPDFCertificatesCommandConfiguration"
	configFixCertRecords       = "FixCertRecordsConfiguration"
	configModifyTemplate       = "ModifiedCertificateTemplateCommandConfiguration"
	configNotifyCredentials    = "NotifyCredentialsConfig"
)

type generationOptions struct {
	Users     []int64 `flag:"user" validate:"dive,gt=0"`
	CourseKey string  `flag:"course-key" validate:"required,coursekey"`
}

func bindGeneration(fs *pflag.FlagSet, o *generationOptions) {
	fs.Int64SliceVar(&o.Users, "user", nil, "User IDs to evaluate")
	fs.StringVar(&o.CourseKey, "course-key", "", "Course run key")
}

// CertGenerationCmd returns the cert_generation command.
func CertGenerationCmd() *cobra.Command {
	return batchCommand[generationOptions]{
		use:        "cert_generation",
		short:      "Generate certificates for the given users in a course",
		long:       "Evaluate each user in batch generation mode and queue generation for eligible learners.",
		configName: configCertGeneration,
		listFlags:  []string{"user"},
		bind:       bindGeneration,
		run: func(ctx context.Context, cmd *cobra.Command, opts *generationOptions) error {
			if len(opts.Users) == 0 {
				return cmdargs.Errorf("invalid arguments: --user is required")
			}
			res, err := wire.CommandService().GenerateCertificates(ctx, primary.GenerateCertificatesRequest{
				UserIDs:   opts.Users,
				CourseKey: opts.CourseKey,
			})
			if err != nil {
				return fmt.Errorf("certificate generation failed: %w", err)
			}
			printOutcomes(res.Outcomes)
			printResult("cert_generation", res)
			return nil
		},
	}.command()
}

// CertAllowlistGenerationCmd returns the cert_allowlist_generation command.
func CertAllowlistGenerationCmd() *cobra.Command {
	return batchCommand[generationOptions]{
		use:        "cert_allowlist_generation",
		short:      "Generate certificates for allowlisted learners",
		long:       "Evaluate allowlisted users of a course. Without --user every enabled allowlist entry is evaluated.",
		configName: configAllowlistGeneration,
		listFlags:  []string{"user"},
		bind:       bindGeneration,
		run: func(ctx context.Context, cmd *cobra.Command, opts *generationOptions) error {
			res, err := wire.CommandService().GenerateCertificates(ctx, primary.GenerateCertificatesRequest{
				UserIDs:   opts.Users,
				CourseKey: opts.CourseKey,
				Allowlist: true,
			})
			if err != nil {
				return fmt.Errorf("allowlist generation failed: %w", err)
			}
			printOutcomes(res.Outcomes)
			printResult("cert_allowlist_generation", res)
			return nil
		},
	}.command()
}

type regenerateNoIDVOptions struct {
	CourseKeys   []string `flag:"course-keys" validate:"required,min=1,dive,coursekey"`
	BatchSize    int      `flag:"batch_size" validate:"gte=1"`
	SleepSeconds float64  `flag:"sleep_seconds" validate:"gte=0"`
}

// RegenerateNoIDVCertCmd returns the regenerate_noidv_cert command.
func RegenerateNoIDVCertCmd() *cobra.Command {
	return batchCommand[regenerateNoIDVOptions]{
		use:        "regenerate_noidv_cert",
		short:      "Re-evaluate unverified certificates in courses that no longer require IDV",
		configName: configRegenerateNoIDV,
		listFlags:  []string{"course-keys"},
		bind: func(fs *pflag.FlagSet, o *regenerateNoIDVOptions) {
			fs.StringArrayVar(&o.CourseKeys, "course-keys", nil, "Course run keys")
			fs.IntVar(&o.BatchSize, "batch_size", app.DefaultBatchSize, "Certificates per batch")
			fs.Float64Var(&o.SleepSeconds, "sleep_seconds", app.DefaultSleep.Seconds(), "Seconds to sleep between batches")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *regenerateNoIDVOptions) error {
			res, err := wire.CommandService().RegenerateNoIDV(ctx, primary.RegenerateNoIDVRequest{
				CourseKeys: opts.CourseKeys,
				BatchSize:  opts.BatchSize,
				Sleep:      seconds(opts.SleepSeconds),
			})
			if err != nil {
				return fmt.Errorf("regeneration failed: %w", err)
			}
			printResult("regenerate_noidv_cert", res)
			return nil
		},
	}.command()
}

type regenerateUnverifiedOptions struct {
	Noop         bool    `flag:"noop"`
	BatchSize    int     `flag:"batch_size" validate:"gte=1"`
	SleepSeconds float64 `flag:"sleep_seconds" validate:"gte=0"`
}

// RegenerateUnverifiedCertsCmd returns the regenerate_unverified_certs command.
func RegenerateUnverifiedCertsCmd() *cobra.Command {
	return batchCommand[regenerateUnverifiedOptions]{
		use:        "regenerate_unverified_certs",
		short:      "Re-evaluate unverified certificates of learners whose IDV is now approved",
		configName: configRegenerateUnverified,
		bind: func(fs *pflag.FlagSet, o *regenerateUnverifiedOptions) {
			fs.BoolVar(&o.Noop, "noop", false, "Report candidates without re-evaluating")
			fs.IntVar(&o.BatchSize, "batch_size", app.DefaultBatchSize, "Certificates per batch")
			fs.Float64Var(&o.SleepSeconds, "sleep_seconds", app.DefaultSleep.Seconds(), "Seconds to sleep between batches")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *regenerateUnverifiedOptions) error {
			res, err := wire.CommandService().RegenerateUnverified(ctx, primary.RegenerateUnverifiedRequest{
				Noop:      opts.Noop,
				BatchSize: opts.BatchSize,
				Sleep:     seconds(opts.SleepSeconds),
			})
			if err != nil {
				return fmt.Errorf("regeneration failed: %w", err)
			}
			printResult("regenerate_unverified_certs", res)
			return nil
		},
	}.command()
}

type dryRunOptions struct {
	DryRun bool `flag:"dry-run"`
}

// PurgePIICmd returns the purge_pii_from_generatedcertificates command.
func PurgePIICmd() *cobra.Command {
	return batchCommand[dryRunOptions]{
		use:        "purge_pii_from_generatedcertificates",
		short:      "Clear learner names on certificates of retired users",
		configName: configPurgePII,
		bind: func(fs *pflag.FlagSet, o *dryRunOptions) {
			fs.BoolVar(&o.DryRun, "dry-run", false, "Report without writing")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *dryRunOptions) error {
			res, err := wire.CommandService().PurgePII(ctx, opts.DryRun)
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			printResult("purge_pii_from_generatedcertificates", res)
			return nil
		},
	}.command()
}

type purgePDFOptions struct {
	CertificateIDs []int64 `flag:"certificate_ids" validate:"required,min=1,dive,gt=0"`
	DryRun         bool    `flag:"dry-run"`
}

// PurgePDFReferencesCmd returns the purge_references_to_pdf_certificates command.
func PurgePDFReferencesCmd() *cobra.Command {
	return batchCommand[purgePDFOptions]{
		use:        "purge_references_to_pdf_certificates",
		short:      "Clear download URLs and UUIDs of PDF certificates",
		long:       "Clear download fields of the given certificates. No lifecycle events are emitted.",
		configName: configPurgePDF,
		listFlags:  []string{"certificate_ids"},
		bind: func(fs *pflag.FlagSet, o *purgePDFOptions) {
			fs.Int64SliceVar(&o.CertificateIDs, "certificate_ids", nil, "Certificate IDs")
			fs.BoolVar(&o.DryRun, "dry-run", false, "Report without writing")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *purgePDFOptions) error {
			res, err := wire.CommandService().PurgePDFReferences(ctx, opts.CertificateIDs, opts.DryRun)
			if err != nil {
				return fmt.Errorf("purge failed: %w", err)
			}
			printResult("purge_references_to_pdf_certificates", res)
			return nil
		},
	}.command()
}

type fixCertRecordsOptions struct {
	Limit int `flag:"limit" validate:"gte=0"`
}

// FixCertRecordsCmd returns the fix_cert_records command.
func FixCertRecordsCmd() *cobra.Command {
	return batchCommand[fixCertRecordsOptions]{
		use:        "fix_cert_records",
		short:      "Repair inconsistent certificate records",
		long:       "Assign missing verify UUIDs to downloadable certificates and re-queue certificates in error.",
		configName: configFixCertRecords,
		bind: func(fs *pflag.FlagSet, o *fixCertRecordsOptions) {
			fs.IntVar(&o.Limit, "limit", 0, "Maximum records to repair (0 for no limit)")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *fixCertRecordsOptions) error {
			res, err := wire.CommandService().FixCertRecords(ctx, opts.Limit)
			if err != nil {
				return fmt.Errorf("repair failed: %w", err)
			}
			printResult("fix_cert_records", res)
			return nil
		},
	}.command()
}

type modifyTemplateOptions struct {
	OldText   string  `flag:"old-text" validate:"required"`
	NewText   string  `flag:"new-text"`
	Templates []int64 `flag:"templates" validate:"required,min=1,dive,gt=0"`
	DryRun    bool    `flag:"dry-run"`
}

// ModifyCertTemplateCmd returns the modify_cert_template command.
func ModifyCertTemplateCmd() *cobra.Command {
	return batchCommand[modifyTemplateOptions]{
		use:        "modify_cert_template",
		short:      "Replace text in certificate templates",
		long:       "Queue a string replacement over the given template rows. The worker applies it.",
		configName: configModifyTemplate,
		listFlags:  []string{"templates"},
		bind: func(fs *pflag.FlagSet, o *modifyTemplateOptions) {
			fs.StringVar(&o.OldText, "old-text", "", "Text to replace")
			fs.StringVar(&o.NewText, "new-text", "", "Replacement text")
			fs.Int64SliceVar(&o.Templates, "templates", nil, "Template IDs")
			fs.BoolVar(&o.DryRun, "dry-run", false, "Log the changes without saving")
		},
		run: func(ctx context.Context, cmd *cobra.Command, opts *modifyTemplateOptions) error {
			res, err := wire.CommandService().ModifyTemplates(ctx, primary.ModifyTemplatesRequest{
				OldText:     opts.OldText,
				NewText:     opts.NewText,
				TemplateIDs: opts.Templates,
				DryRun:      opts.DryRun,
			})
			if err != nil {
				return fmt.Errorf("failed to queue template update: %w", err)
			}
			fmt.Printf("✓ Queued task %d for %d template(s)\n", res.TaskID, res.Processed)
			return nil
		},
	}.command()
}

type notifyCredentialsOptions struct {
	DryRun       bool     `flag:"dry-run"`
	Site         string   `flag:"site"`
	Courses      []string `flag:"courses" validate:"dive,coursekey"`
	StartDate    string   `flag:"start-date" validate:"isodate"`
	EndDate      string   `flag:"end-date" validate:"isodate"`
	DelaySeconds float64  `flag:"delay" validate:"gte=0"`
	PageSize     int      `flag:"page-size" validate:"gte=1"`
}

func bindNotifyCredentials(fs *pflag.FlagSet, o *notifyCredentialsOptions) {
	fs.BoolVar(&o.DryRun, "dry-run", false, "Count records without sending")
	fs.StringVar(&o.Site, "site", "", "Site whose organizations select courses")
	fs.StringArrayVar(&o.Courses, "courses", nil, "Course run keys")
	fs.StringVar(&o.StartDate, "start-date", "", "Only records modified on or after this date")
	fs.StringVar(&o.EndDate, "end-date", "", "Only records modified before this date")
	fs.Float64Var(&o.DelaySeconds, "delay", 0, "Seconds to sleep between pages")
	fs.IntVar(&o.PageSize, "page-size", app.DefaultNotifyPageSize, "Records per page")
}

// request converts parsed options, enforcing the cross-field rules.
func (o *notifyCredentialsOptions) request() (primary.NotifyCredentialsRequest, error) {
	req := primary.NotifyCredentialsRequest{
		DryRun:   o.DryRun,
		Site:     o.Site,
		Courses:  o.Courses,
		Delay:    seconds(o.DelaySeconds),
		PageSize: o.PageSize,
	}
	if len(o.Courses) == 0 && o.StartDate == "" && o.Site == "" {
		return req, cmdargs.Errorf("invalid arguments: specify a filter such as --courses, --site or --start-date")
	}

	var err error
	if o.StartDate != "" {
		if req.StartDate, err = cmdargs.ParseDate(o.StartDate); err != nil {
			return req, err
		}
	}
	if o.EndDate != "" {
		if req.EndDate, err = cmdargs.ParseDate(o.EndDate); err != nil {
			return req, err
		}
	}
	if !req.StartDate.IsZero() && !req.EndDate.IsZero() && !req.StartDate.Before(req.EndDate) {
		return req, cmdargs.Errorf("invalid arguments: --start-date must be before --end-date")
	}
	return req, nil
}

// NotifyCredentialsCmd returns the notify_credentials command.
func NotifyCredentialsCmd() *cobra.Command {
	return batchCommand[notifyCredentialsOptions]{
		use:        "notify_credentials",
		short:      "Replay certificate and grade changes to the credentials service",
		configName: configNotifyCredentials,
		listFlags:  []string{"courses"},
		bind:       bindNotifyCredentials,
		run: func(ctx context.Context, cmd *cobra.Command, opts *notifyCredentialsOptions) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			res, err := wire.CommandService().NotifyCredentials(ctx, req)
			if err != nil {
				return fmt.Errorf("notify credentials failed: %w", err)
			}
			printResult("notify_credentials", res)
			return nil
		},
	}.command()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
