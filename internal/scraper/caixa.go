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

// CaixaBank selectors.
const (
	caixaUserInput     = "#lineaabierta-login"
	caixaPasswordInput = "#lolopo-template form input[type='password']"
	caixaLoginSubmit   = "#lolopo-template form input[type='submit']"
	caixaDashboard     = ".lo-principal"
	caixaOTPInput      = "input[name='codigoSMS']"
	caixaOTPSubmit     = "#continuar"

	caixaMovementsTable = "table.lo-tabla-movimientos"
	caixaNextPage       = "a.lo-paginacion-siguiente"
)

// caixaColumns maps the movements table headers onto the canonical row keys.
var caixaColumns = map[string]string{
	"Fecha":     normalize.KeyDate,
	"Concepto":  normalize.KeyDescription,
	"Importe":   normalize.KeyAmount,
	"Saldo":     normalize.KeyBalance,
	"Categoría": normalize.KeyCategory,
}

type caixaScraper struct {
	driver portal.Driver
	bank   config.BankConfig
	cfg    *config.Config
	log    *zap.SugaredLogger
}

func newCaixa(driver portal.Driver, bank config.BankConfig, cfg *config.Config, log *zap.SugaredLogger) Scraper {
	return &caixaScraper{driver: driver, bank: bank, cfg: cfg, log: log.Named("caixa")}
}

func (s *caixaScraper) Bank() string { return "caixa" }

func (s *caixaScraper) Login(ctx context.Context, creds Credentials) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()

	session := NewSession(s.Bank())
	session.resolver = creds.Resolver
	session.setState(StateSubmittingCredentials)

	if err := navigateWithBackoff(ctx, s.driver, s.bank.BaseURL); err != nil {
		session.setState(StateFailed)
		return session, err
	}

	if err := waitForElement(ctx, s.driver, caixaUserInput, s.cfg.PageTimeout); err != nil {
		session.setState(StateFailed)
		return session, err
	}
	if err := s.driver.Fill(ctx, caixaUserInput, creds.Username); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}
	if err := s.driver.Fill(ctx, caixaPasswordInput, creds.Password); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}
	if err := s.driver.Click(ctx, caixaLoginSubmit); err != nil {
		session.setState(StateFailed)
		return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
	}

	if otp, _ := s.driver.Exists(ctx, caixaOTPInput); otp {
		code, err := session.awaitChallenge(ctx, "CaixaBank sent an SMS code to the registered phone")
		if err != nil {
			return session, err
		}
		if err := s.driver.Fill(ctx, caixaOTPInput, code); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		if err := s.driver.Click(ctx, caixaOTPSubmit); err != nil {
			session.setState(StateFailed)
			return session, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
	}

	if err := s.driver.WaitVisible(ctx, caixaDashboard, s.cfg.PageTimeout); err != nil {
		session.setState(StateFailed)
		if onLogin, _ := s.driver.Exists(ctx, caixaUserInput); onLogin {
			return session, apperrors.ErrAuthFailed
		}
		return session, apperrors.WithMessage(apperrors.ErrUnexpectedLayout, "dashboard did not appear after login")
	}

	session.setState(StateAuthenticated)
	s.log.Info("login successful")
	return session, nil
}

func (s *caixaScraper) FetchTransactions(ctx context.Context, session *Session, from, to *time.Time) (*normalize.Rows, error) {
	if err := session.requireAuthenticated(); err != nil {
		return nil, err
	}

	movementsURL := s.bank.BaseURL + "/movimientos"
	opened := false

	// CaixaBank paginates server-side: each "siguiente" click replaces the
	// table with the next (older) page. Single section; pagination stops at
	// the first page reaching the window start.
	nextPage := func() ([]normalize.RawRow, int, bool, error) {
		pageCtx, cancel := context.WithTimeout(ctx, s.cfg.PageTimeout)
		defer cancel()

		if !opened {
			if err := navigateWithBackoff(pageCtx, s.driver, movementsURL); err != nil {
				session.Expire()
				return nil, 0, false, err
			}
			opened = true
		}
		if err := waitForElement(pageCtx, s.driver, caixaMovementsTable, s.cfg.PageTimeout); err != nil {
			session.Expire()
			return nil, 0, false, err
		}

		raw, err := s.driver.ReadTable(pageCtx, caixaMovementsTable)
		if err != nil {
			session.Expire()
			return nil, 0, false, apperrors.Wrap(apperrors.ErrUnexpectedLayout, err)
		}
		rows := mapColumns(raw, caixaColumns, models.AccountTypeBankID)

		if reachedWindowStart(rows, from) {
			return rows, 0, false, nil
		}
		more, err := s.driver.Exists(pageCtx, caixaNextPage)
		if err != nil {
			return rows, 0, false, nil
		}
		if more {
			if err := s.driver.Click(pageCtx, caixaNextPage); err != nil {
				more = false
			}
		}
		return rows, 0, more, nil
	}

	return newRowStream(nextPage, from, to, s.log), nil
}
