package scraper

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"bankfeed/internal/config"
	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
	"bankfeed/internal/normalize"
	"bankfeed/internal/portal"
)

// BBVA selectors. The portal serves two login forms: the full one, and a
// reduced device-token one that only asks for the password.
const (
	bbvaLoginForm      = "[data-testid='login-form']"
	bbvaTokenLoginForm = "[data-testid='login-form-token']"
	bbvaUserInput      = "#input-user"
	bbvaPasswordInput  = "#input-password"
	bbvaLoginSubmit    = "span[data-testid='login-form-submit']"
	bbvaSecurityModal  = "div[role='dialog']"
	bbvaModalDismiss   = "#entendido"
	bbvaOTPForm        = "[data-testid='otp-form']"
	bbvaOTPInput       = "#input-otp"
	bbvaOTPSubmit      = "[data-testid='otp-form-submit']"
	bbvaDashboard      = ".c-data-amount"

	bbvaProductsOverview = "#cuentasTarjetasProductos"
	bbvaAccountRow       = "tr.filaCuentasIban"
	bbvaVirtualCardRow   = "tr.filaTarjetasVirtuales"
	bbvaMovementsTable   = ".c-tablas-producto table"
	bbvaCardMovements    = "[data-testid='cards-main-transactions'] table"
	bbvaLoadMore         = "[data-testid='load-more-movements']"
)

// bbvaColumns maps the movements table headers onto the canonical row keys.
var bbvaColumns = map[string]string{
	"Fecha":     normalize.KeyDate,
	"Concepto":  normalize.KeyDescription,
	"Importe":   normalize.KeyAmount,
	"Saldo":     normalize.KeyBalance,
	"Categoría": normalize.KeyCategory,
}

type bbvaScraper struct {
	driver portal.Driver
	bank   config.BankConfig
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func newBBVA(driver portal.Driver, bank config.BankConfig, cfg *config.Config, log *zap.SugaredLogger) Scraper {
	return &bbvaScraper{driver: driver, bank: bank, cfg: cfg, log: log.Named("bbva")}
}

func (s *bbvaScraper) Bank() string { return "bbva" }

func (s *bbvaScraper) Login(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	session := NewSession(s.Bank())
	session.resolver = creds.Resolver
	session.setState(StateSubmittingCredentials)

	if err := navigateWithBackoff(ctx, s.driver, s.bank.BaseURL); err != nil {
		session.setState(StateFailed)
		return session, err
	}

	tokenForm, err := s.driver.Exists(ctx, bbvaTokenLoginForm)
	if err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrPortalUnavailable, err)
	}

	if tokenForm {
		s.log.Debug("device-token login form detected")
		if err := s.driver.Fill(ctx, bbvaPasswordInput, creds.Password); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	} else {
		if err := waitForElement(ctx, s.driver, bbvaLoginForm, s.cfg.PageTimeout); err != nil {
			session.setState(StateFailed)
			return session, err
		}
		if err := s.driver.Fill(ctx, bbvaUserInput, creds.Username); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		if err := s.driver.Fill(ctx, bbvaPasswordInput, creds.Password); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	}

	if err := s.driver.Click(ctx, bbvaLoginSubmit); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}

	// The portal sometimes interposes a security notice before the
	// dashboard.
	if modal, _ := s.driver.Exists(ctx, bbvaSecurityModal); modal {
		s.log.Debug("dismissing security modal")
		if err := s.driver.Click(ctx, bbvaModalDismiss); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	}

	if otp, _ := s.driver.Exists(ctx, bbvaOTPForm); otp {
		code, err := session.awaitChallenge(ctx, "BBVA sent a one-time code to the registered device")
		if err != nil {
			return session, err
		}
		if err := s.driver.Fill(ctx, bbvaOTPInput, code); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		if err := s.driver.Click(ctx, bbvaOTPSubmit); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	}

	if err := s.driver.WaitVisible(ctx, bbvaDashboard, s.cfg.PageTimeout); err != nil {
		session.setState(StateFailed)
		// Still sitting on the login form means the credentials were
		// rejected; anything else means the portal changed shape.
		if onLogin, _ := s.driver.Exists(ctx, bbvaLoginForm); onLogin {
			return session, apperrors.ErrAuthFailed
		}
		if onLogin, _ := s.driver.Exists(ctx, bbvaTokenLoginForm); onLogin {
			return session, apperrors.ErrAuthFailed
		}
		return session, apperrors.WithMessage(apperrors.ErrUnexpectedLayout, "dashboard did not appear after login")
	}

	session.setState(StateAuthenticated)
	s.log.Info("login successful")
	return session, nil
}

func (s *bbvaScraper) FetchTransactions(ctx context.Context, session *Session, from, to *time.Time) (*normalize.Rows, error) {
	if err := session.requireAuthenticated(); err != nil {
		return nil, err
	}

	// The portal splits movements across the bank account view and the
	// virtual cards view; each configured account type is one section of
	// the sequence.
	type section struct {
		accountType models.AccountType
		rowSelector string
		table       string
	}
	var sections []section
	if _, ok := s.bank.Account(models.AccountTypeBankID); ok {
		sections = append(sections, section{models.AccountTypeBankID, bbvaAccountRow, bbvaMovementsTable})
	}
	if _, ok := s.bank.Account(models.AccountTypeVirtualID); ok {
		sections = append(sections, section{models.AccountTypeVirtualID, bbvaVirtualCardRow, bbvaCardMovements})
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

		rows, err := s.fetchSection(pageCtx, sec.rowSelector, sec.table, sec.accountType, from)
		if err != nil {
			session.Expire()
			return nil, idx, false, err
		}
		return rows, idx, i < len(sections), nil
	}

	return newRowStream(nextPage, from, to, s.log), nil
}

// fetchSection opens one product's movements view and reads it, loading
// more history only until the oldest rendered row precedes the window
// start.
func (s *bbvaScraper) fetchSection(ctx context.Context, rowSelector, tableSelector string, accountType models.AccountType, from *time.Time) ([]normalize.RawRow, error) {
	if err := waitForElement(ctx, s.driver, bbvaProductsOverview, s.cfg.PageTimeout); err != nil {
		return nil, err
	}
	if err := s.driver.Click(ctx, rowSelector); err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrUnexpectedLayout,
			fmt.Sprintf("product row %q is not clickable: %v", rowSelector, err))
	}
	if err := waitForElement(ctx, s.driver, tableSelector, s.cfg.PageTimeout); err != nil {
		return nil, err
	}

	for {
		raw, err := s.driver.ReadTable(ctx, tableSelector)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		rows := mapColumns(raw, bbvaColumns, accountType)
		if reachedWindowStart(rows, from) {
			return rows, nil
		}
		more, err := s.driver.Exists(ctx, bbvaLoadMore)
		if err != nil || !more {
			return rows, nil
		}
		if err := s.driver.Click(ctx, bbvaLoadMore); err != nil {
			return rows, nil
		}
	}
}

// mapColumns renames bank-specific table headers to the canonical row keys
// and tags each row with the account type it came from.
func mapColumns(raw []map[string]string, columns map[string]string, accountType models.AccountType) []normalize.RawRow {
	rows := make([]normalize.RawRow, 0, len(raw))
	for _, in := range raw {
		row := make(normalize.RawRow, len(in)+1)
		for header, value := range in {
			if key, ok := columns[header]; ok {
				row[key] = value
			}
		}
		row[normalize.KeyAccountType] = string(accountType)
		rows = append(rows, row)
	}
	return rows
}
