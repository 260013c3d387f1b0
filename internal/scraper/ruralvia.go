package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bankfeed/internal/config"
	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
	"bankfeed/internal/normalize"
	"bankfeed/internal/portal"
)

// Ruralvia selectors. The portal renders movements as repeated div blocks,
// not a table, so extraction goes through ReadItems.
const (
	ruralviaUserInput     = "input[name='dniNie']"
	ruralviaPasswordInput = "input[name='Alias']"
	ruralviaLoginButton   = "button[data-qa='login--button--volver']"
	ruralviaDashboard     = ".nbe-web-view-dashboard"
	ruralviaOTPInput      = "input[data-qa='login--input--otp']"
	ruralviaOTPSubmit     = "button[data-qa='login--button--confirmar']"

	ruralviaAccountCard  = "[data-qa='global-accounts-cards--table--mis-cuentas'] .nbe-web-view-global-accounts-cards__button"
	ruralviaVirtualCard  = "[data-qa='global-accounts-cards--table--mis-tarjetas'] .nbe-web-view-global-accounts-cards__button"
	ruralviaMovement     = ".nbe-web-movement"
	ruralviaMovementList = ".nbe-web-movement__wrapper"
	ruralviaLoadMore     = "[data-qa='account-movement-list--button--ver-mas']"
)

// ruralviaFields extracts one movement block. The operation date lives in a
// datetime attribute, not the visible text.
var ruralviaFields = map[string]string{
	normalize.KeyDate:        ".nbe-web-movement__time@datetime",
	normalize.KeyDescription: ".nbe-web-movement__title",
	normalize.KeyCategory:    ".nbe-web-movement__info",
	normalize.KeyAmount:      "[data-qa='account-movement-list--money--cantidad-movimiento']",
	normalize.KeyBalance:     "[data-qa='account-movement-list--money--cantidad-cuenta']",
}

// ruralviaCardFields is the virtual card variant: no running balance column.
var ruralviaCardFields = map[string]string{
	normalize.KeyDate:        ".nbe-web-movement__time@datetime",
	normalize.KeyDescription: ".nbe-web-movement__title",
	normalize.KeyCategory:    ".nbe-web-movement__info",
	normalize.KeyAmount:      ".rsi-ui-money",
}

type ruralviaScraper struct {
	driver portal.Driver
	bank   config.BankConfig
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func newRuralvia(driver portal.Driver, bank config.BankConfig, cfg *config.Config, log *zap.SugaredLogger) Scraper {
	return &ruralviaScraper{driver: driver, bank: bank, cfg: cfg, log: log.Named("ruralvia")}
}

func (s *ruralviaScraper) Bank() string { return "ruralvia" }

func (s *ruralviaScraper) Login(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	session := NewSession(s.Bank())
	session.resolver = creds.Resolver
	session.setState(StateSubmittingCredentials)

	if err := navigateWithBackoff(ctx, s.driver, s.bank.BaseURL); err != nil {
		session.setState(StateFailed)
		return session, err
	}

	if err := waitForElement(ctx, s.driver, ruralviaUserInput, s.cfg.PageTimeout); err != nil {
		session.setState(StateFailed)
		return session, err
	}
	if err := s.driver.Fill(ctx, ruralviaUserInput, creds.Username); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}
	if err := s.driver.Fill(ctx, ruralviaPasswordInput, creds.Password); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}
	if err := s.driver.Click(ctx, ruralviaLoginButton); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}

	if otp, _ := s.driver.Exists(ctx, ruralviaOTPInput); otp {
		code, err := session.awaitChallenge(ctx, "Ruralvia sent an SMS code to the registered phone")
		if err != nil {
			return session, err
		}
		if err := s.driver.Fill(ctx, ruralviaOTPInput, code); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		if err := s.driver.Click(ctx, ruralviaOTPSubmit); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	}

	if err := s.driver.WaitVisible(ctx, ruralviaDashboard, s.cfg.PageTimeout); err != nil {
		session.setState(StateFailed)
		if onLogin, _ := s.driver.Exists(ctx, ruralviaUserInput); onLogin {
			return session, apperrors.ErrAuthFailed
		}
		return session, apperrors.WithMessage(apperrors.ErrUnexpectedLayout, "dashboard did not appear after login")
	}

	session.setState(StateAuthenticated)
	s.log.Info("login successful")
	return session, nil
}

func (s *ruralviaScraper) FetchTransactions(ctx context.Context, session *Session, from, to *time.Time) (*normalize.Rows, error) {
	if err := session.requireAuthenticated(); err != nil {
		return nil, err
	}

	type section struct {
		accountType models.AccountType
		card        string
		fields      map[string]string
	}
	var sections []section
	if _, ok := s.bank.Account(models.AccountTypeBankID); ok {
		sections = append(sections, section{models.AccountTypeBankID, ruralviaAccountCard, ruralviaFields})
	}
	if _, ok := s.bank.Account(models.AccountTypeVirtualID); ok {
		sections = append(sections, section{models.AccountTypeVirtualID, ruralviaVirtualCard, ruralviaCardFields})
	}

	i := 0
	nextPage := func() ([]normalize.RawRow, int, bool, error) {
		if i >= len(sections) {
			return nil, 0, false, nil
		}
		sec := sections[i]
		idx := i
		i++

		pageCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancel()

		rows, err := s.fetchSection(pageCtx, sec.card, sec.fields, sec.accountType, from)
		if err != nil {
			session.Expire()
			return nil, idx, false, err
		}
		return rows, idx, i < len(sections), nil
	}

	return newRowStream(nextPage, from, to, s.log), nil
}

func (s *ruralviaScraper) fetchSection(ctx context.Context, cardSelector string, fields map[string]string, accountType models.AccountType, from *time.Time) ([]normalize.RawRow, error) {
	// Each product section starts from the dashboard's account/card grid.
	if err := navigateWithBackoff(ctx, s.driver, s.bank.BaseURL); err != nil {
		return nil, err
	}
	if err := waitForElement(ctx, s.driver, cardSelector, s.cfg.PageTimeout); err != nil {
		return nil, err
	}
	if err := s.driver.Click(ctx, cardSelector); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}
	if err := waitForElement(ctx, s.driver, ruralviaMovement, s.cfg.PageTimeout); err != nil {
		return nil, err
	}

	// Load more history only until the oldest rendered movement precedes
	// the window start.
	for {
		raw, err := s.driver.ReadItems(ctx, ruralviaMovementList, fields)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}

		rows := make([]normalize.RawRow, 0, len(raw))
		for _, in := range raw {
			row := make(normalize.RawRow, len(in)+1)
			for key, value := range in {
				row[key] = value
			}
			row[normalize.KeyAccountType] = string(accountType)
			rows = append(rows, row)
		}

		if reachedWindowStart(rows, from) {
			return rows, nil
		}
		more, err := s.driver.Exists(ctx, ruralviaLoadMore)
		if err != nil || !more {
			return rows, nil
		}
		if err := s.driver.Click(ctx, ruralviaLoadMore); err != nil {
			return rows, nil
		}
	}
}
