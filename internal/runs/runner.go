package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"bankfeed/internal/config"
	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/fileimport"
	"bankfeed/internal/ingest"
	"bankfeed/internal/models"
	"bankfeed/internal/normalize"
	"bankfeed/internal/portal"
	"bankfeed/internal/rules"
	"bankfeed/internal/scraper"
)

// ingestBatchSize bounds how many normalized items accumulate before they
// are flushed to the reconciler. Each item is still inserted in its own
// transaction.
const ingestBatchSize = 100

// DriverFactory opens a fresh browser driver for one scrape run.
type DriverFactory func(cfg *config.Config) (portal.Driver, error)

// Runner executes runs against the store. One Runner serves all run types.
type Runner struct {
	db         *gorm.DB
	cfg        *config.Config
	log        *zap.SugaredLogger
	reconciler *ingest.Reconciler
	newDriver  DriverFactory

	// Resolver answers MFA challenges raised during scrape logins. Nil
	// means unattended operation: a challenge fails that bank's run.
	Resolver func(ctx context.Context, challenge *scraper.Challenge)
}

// NewRunner creates a runner using the real browser driver.
func NewRunner(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger) *Runner {
	return NewRunnerWithDriver(db, cfg, log, portal.NewChromeDriver)
}

// NewRunnerWithDriver creates a runner with a custom driver factory.
func NewRunnerWithDriver(db *gorm.DB, cfg *config.Config, log *zap.SugaredLogger, newDriver DriverFactory) *Runner {
	return &Runner{
		db:         db,
		cfg:        cfg,
		log:        log,
		reconciler: ingest.NewReconciler(db),
		newDriver:  newDriver,
	}
}

// Handle dispatches a queued run to the matching pipeline.
func (r *Runner) Handle(ctx context.Context, run *Run) (*Summary, error) {
	switch run.Type {
	case TypeScrape:
		if run.Bank != "" {
			return r.RunScrape(ctx, run.Bank)
		}
		return r.RunScrapeAll(ctx), nil
	case TypeImport:
		return r.RunImport(ctx, run.Dir)
	case TypeBackfill:
		return r.RunBackfill(ctx, run.Dir)
	default:
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, fmt.Sprintf("unknown run type %q", run.Type))
	}
}

// RunScrape logs into one bank's portal, fetches the incremental window and
// ingests it.
func (r *Runner) RunScrape(ctx context.Context, bankName string) (*Summary, error) {
	log := r.log.Named(bankName)
	summary := &Summary{}

	bank, err := r.cfg.Bank(bankName)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	if !bank.Scrapable() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("bank %q has no portal credentials configured", bankName))
	}

	engine, ruleset, err := r.engine()
	if err != nil {
		return nil, err
	}

	driver, err := r.newDriver(r.cfg)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrPortalUnavailable, err)
	}
	defer driver.Close()

	scr, err := scraper.New(bankName, driver, r.cfg, r.log)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}

	session, err := scr.Login(ctx, scraper.Credentials{
		Username: bank.Username,
		Password: bank.Password,
		Resolver: r.Resolver,
	})
	if err != nil {
		return summary, err
	}
	defer session.Expire()

	from := time.Now().AddDate(0, 0, -r.cfg.ScrapeWindowDays)
	rows, err := scr.FetchTransactions(ctx, session, &from, nil)
	if err != nil {
		return summary, err
	}

	r.ingestRows(ctx, rows, bank, models.SourceScraped, engine, ruleset, summary, log)
	log.Infow("scrape run finished",
		"inserted", summary.Inserted,
		"skipped_duplicate", summary.SkippedDuplicate,
		"failed", summary.Failed,
		"malformed_skipped", summary.MalformedSkipped,
		"fatal", summary.FatalError)
	return summary, nil
}

// RunScrapeAll scrapes every configured bank with portal credentials, each
// in its own goroutine with its own driver. One bank's fatal error never
// touches the others; the merged summary carries every bank's counts.
func (r *Runner) RunScrapeAll(ctx context.Context) *Summary {
	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		total Summary
	)
	for name, bank := range r.cfg.Banks {
		if !bank.Scrapable() {
			continue
		}
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			summary, err := r.RunScrape(ctx, name)

			mu.Lock()
			defer mu.Unlock()
			if summary != nil {
				total.Report.Add(summary.Report)
				total.MalformedSkipped += summary.MalformedSkipped
			}
			if err != nil {
				r.log.Errorw("scrape run failed", "bank", name, "error", err)
				if total.FatalError != "" {
					total.FatalError += "; "
				}
				total.FatalError += fmt.Sprintf("%s: %v", name, err)
			}
		}(name)
	}
	wg.Wait()
	return &total
}

// RunImport ingests every statement export found in the directory as
// manual-file transactions.
func (r *Runner) RunImport(ctx context.Context, dir string) (*Summary, error) {
	return r.runFiles(ctx, dir, models.SourceManualFile)
}

// RunBackfill ingests historical exports. Identical to a manual import
// except for the source tag, so backfilled rows remain distinguishable in
// the ledger.
func (r *Runner) RunBackfill(ctx context.Context, dir string) (*Summary, error) {
	return r.runFiles(ctx, dir, models.SourceHistoricalBackfill)
}

func (r *Runner) runFiles(ctx context.Context, dir string, source models.Source) (*Summary, error) {
	if dir == "" {
		dir = r.cfg.ExportsDir
	}
	summary := &Summary{}

	engine, ruleset, err := r.engine()
	if err != nil {
		return nil, err
	}

	files, err := fileimport.ScanDir(dir, r.log)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	if len(files) == 0 {
		r.log.Infow("no statement files found", "dir", dir)
		return summary, nil
	}

	for _, file := range files {
		log := r.log.Named(file.Bank)
		bank, err := r.cfg.Bank(file.Bank)
		if err != nil {
			log.Warnw("skipping file for unconfigured bank", "file", file.Path)
			continue
		}
		rows, err := fileimport.Open(file, log)
		if err != nil {
			log.Errorw("cannot open statement file", "file", file.Path, "error", err)
			summary.Failed++
			summary.Failures = append(summary.Failures, ingest.Failure{Reason: fmt.Sprintf("%s: %v", file.Path, err)})
			continue
		}
		log.Infow("importing statement file", "file", file.Path, "account_type", file.AccountType)
		r.ingestRows(ctx, rows, bank, source, engine, ruleset, summary, log)
	}

	r.log.Infow("file run finished",
		"source", source,
		"inserted", summary.Inserted,
		"skipped_duplicate", summary.SkippedDuplicate,
		"failed", summary.Failed,
		"malformed_skipped", summary.MalformedSkipped)
	return summary, nil
}

// ingestRows drains a row sequence through normalize, categorize and
// reconcile. Malformed rows are skipped and counted; a terminal sequence
// error lands in the summary with the partial counts preserved.
func (r *Runner) ingestRows(
	ctx context.Context,
	rows *normalize.Rows,
	bank config.BankConfig,
	source models.Source,
	engine *rules.Engine,
	ruleset *rules.Ruleset,
	summary *Summary,
	log *zap.SugaredLogger,
) {
	now := time.Now()
	batch := make([]ingest.Item, 0, ingestBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		report := r.reconciler.Ingest(ctx, batch)
		summary.Report.Add(report)
		batch = batch[:0]
	}

	for rows.Next() {
		row := rows.Row()

		accountType := models.AccountType(row[normalize.KeyAccountType])
		ref, ok := bank.Account(accountType)
		if !ok {
			summary.Failed++
			summary.Failures = append(summary.Failures, ingest.Failure{
				Reason: fmt.Sprintf("bank %s has no account configured for type %s", bank.Name, accountType),
			})
			continue
		}
		account := models.Account{ID: ref.AccountID, BankID: bank.BankID, AccountType: accountType, AccountNumber: ref.AccountNumber}

		tx, err := normalize.Normalize(row, account, source, r.cfg.UserID, now)
		if err != nil {
			if apperrors.HasCode(err, "MALFORMED_ROW") {
				summary.MalformedSkipped++
				log.Warnw("skipping malformed row", "error", err)
				continue
			}
			summary.Failed++
			summary.Failures = append(summary.Failures, ingest.Failure{Reason: err.Error()})
			continue
		}

		batch = append(batch, ingest.Item{
			Transaction: tx,
			Assignment:  engine.Categorize(tx, ruleset),
			BankID:      bank.BankID,
		})
		if len(batch) >= ingestBatchSize {
			flush()
		}
	}
	flush()

	if err := rows.Err(); err != nil {
		var extractionErr *apperrors.ExtractionError
		if errors.As(err, &extractionErr) {
			log.Warnw("row sequence aborted, partial results kept", "rows_yielded", extractionErr.RowsYielded, "error", err)
		}
		if summary.FatalError != "" {
			summary.FatalError += "; "
		}
		summary.FatalError += err.Error()
	}
}

// engine loads the user's rules and compiles them once per run.
func (r *Runner) engine() (*rules.Engine, *rules.Ruleset, error) {
	userRules, err := rules.Load(r.db, r.cfg.UserID)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	ruleset, err := rules.Compile(userRules)
	if err != nil {
		return nil, nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	engine := rules.NewEngine(rules.Defaults{
		CategoryID:    r.cfg.DefaultCategoryID,
		SubcategoryID: r.cfg.DefaultSubcategoryID,
	})
	return engine, ruleset, nil
}
