// Package scraper holds the per-bank portal integrations. Every bank
// implements the same two-operation contract against its own portal's DOM
// and flow quirks; a registry keyed by bank name selects the variant.
package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"bankfeed/internal/config"
	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/normalize"
	"bankfeed/internal/portal"
)

// Credentials is a bank login. Resolver, when set, is invoked with any MFA
// challenge the portal raises so the operator can be prompted while the
// login is still in flight; a nil resolver leaves the challenge waiting on
// Session.PendingChallenge until the login deadline expires.
type Credentials struct {
	Username string
	Password string
	Resolver func(ctx context.Context, challenge *Challenge)
}

// Scraper is the contract every bank integration implements.
type Scraper interface {
	// Bank returns the bank name this integration targets.
	Bank() string

	// Login authenticates against the portal and returns the session. The
	// session may suspend on an MFA challenge; see Session.PendingChallenge.
	Login(ctx context.Context, creds Credentials) (*Session, error)

	// FetchTransactions returns a lazy, finite, non-restartable row
	// sequence. Pagination happens internally as the sequence is consumed;
	// it stops at the first page preceding from, or at portal exhaustion.
	FetchTransactions(ctx context.Context, session *Session, from, to *time.Time) (*normalize.Rows, error)
}

// factory builds one bank's scraper over a driver.
type factory func(driver portal.Driver, bank config.BankConfig, cfg *config.Config, log *zap.SugaredLogger) Scraper

// registry is the tagged-variant dispatch table. Adding a bank means adding
// an entry here plus its implementation file.
var registry = map[string]factory{
	"bbva":     newBBVA,
	"caixa":    newCaixa,
	"ruralvia": newRuralvia,
}

// New builds the scraper for the named bank. The driver is owned by the
// returned scraper's run and must not be shared with another run.
func New(name string, driver portal.Driver, cfg *config.Config, log *zap.SugaredLogger) (Scraper, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no scraper registered for bank %q", name)
	}
	bank, err := cfg.Bank(name)
	if err != nil {
		return nil, err
	}
	return build(driver, bank, cfg, log), nil
}

// Banks lists the registered bank names.
func Banks() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// maxConsecutiveRowFailures bounds how many bad rows in a row a fetch
// tolerates before terminating the sequence with an ExtractionError.
const maxConsecutiveRowFailures = 3

// navigateWithBackoff retries transient navigation failures with
// exponential backoff under the context's deadline, then gives up with
// PORTAL_UNAVAILABLE.
func navigateWithBackoff(ctx context.Context, driver portal.Driver, url string) error {
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	err := backoff.Retry(func() error {
		return driver.Navigate(ctx, url)
	}, policy)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrPortalUnavailable, err)
	}
	return nil
}

// waitForElement waits for a selector on a page that already loaded. Its
// absence means the portal changed shape, which is an integration bug, not
// a transient condition: UNEXPECTED_LAYOUT, never retried.
func waitForElement(ctx context.Context, driver portal.Driver, selector string, timeout time.Duration) error {
	if err := driver.WaitVisible(ctx, selector, timeout); err != nil {
		if ctx.Err() != nil {
			return apperrors.Wrap(apperrors.ErrPortalUnavailable, ctx.Err())
		}
		return apperrors.WithMessage(apperrors.ErrUnexpectedLayout,
			fmt.Sprintf("expected element %q did not appear: %v", selector, err))
	}
	return nil
}
