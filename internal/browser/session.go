// Package browser drives the job site through a real Chrome instance.
// It owns every live page handle: the rest of the system sees only plain
// question records and answer values.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config holds the browser session settings.
type Config struct {
	// Bin overrides the Chrome binary path. Empty uses the launcher's
	// autodetection.
	Bin        string
	Headless   bool
	ProfileDir string
	// NavigationTimeout bounds page loads and URL settling.
	NavigationTimeout time.Duration
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeout == 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// Session is one connected Chrome instance plus the search page open in it.
type Session struct {
	cfg     Config
	browser *rod.Browser
	search  *rod.Page
	logger  *zap.Logger
}

// NewSession launches Chrome and connects to it. The profile directory is
// reused across runs so the signed-in state survives.
func NewSession(ctx context.Context, cfg Config, log *zap.Logger) (*Session, error) {
	if log == nil {
		log = zap.NewNop()
	}

	launch := launcher.New().Headless(cfg.Headless)
	if cfg.Bin != "" {
		launch = launch.Bin(cfg.Bin)
	}
	if cfg.ProfileDir != "" {
		launch = launch.UserDataDir(cfg.ProfileDir)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	log.Info("browser session started", zap.Bool("headless", cfg.Headless))
	return &Session{cfg: cfg, browser: b, logger: log}, nil
}

// Close shuts the browser down.
func (s *Session) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

// OpenSearch navigates the session's root page to the search URL.
func (s *Session) OpenSearch(ctx context.Context, url string) error {
	page, err := s.browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return fmt.Errorf("open search page: %w", err)
	}
	s.search = page
	if err := page.Context(ctx).Timeout(s.cfg.navigationTimeout()).WaitLoad(); err != nil {
		s.logger.Debug("search page load wait failed", zap.Error(err))
	}
	return nil
}

// Listing is one job card on the search results page.
type Listing struct {
	card *rod.Element
}

// EasyApplyListings returns the job cards on the current results page that
// support the in-site application flow.
func (s *Session) EasyApplyListings(ctx context.Context) ([]*Listing, error) {
	cards, err := s.search.Context(ctx).ElementsX(
		`//div[contains(@class, "cardOutline") and .//*[contains(text(), "Easily apply")]]`)
	if err != nil {
		return nil, fmt.Errorf("find job cards: %w", err)
	}

	listings := make([]*Listing, 0, len(cards))
	for _, card := range cards {
		listings = append(listings, &Listing{card: card})
	}
	s.logger.Info("easy-apply listings on page", zap.Int("count", len(listings)))
	return listings, nil
}

// OpenListing clicks the card and returns the title, company and
// description text from the details pane.
func (s *Session) OpenListing(ctx context.Context, l *Listing) (title, company, description string, err error) {
	if err := safeClick(l.card); err != nil {
		return "", "", "", fmt.Errorf("open listing: %w", err)
	}

	page := s.search.Context(ctx)
	if has, desc, err := page.Has("#jobDescriptionText"); err == nil && has {
		description, _ = desc.Text()
	}
	if has, el, err := page.Has(`[data-testid="jobsearch-JobInfoHeader-title"]`); err == nil && has {
		title, _ = el.Text()
	}
	if has, el, err := page.Has(`[data-testid="inlineHeader-companyName"]`); err == nil && has {
		company, _ = el.Text()
	}
	return strings.TrimSpace(title), strings.TrimSpace(company), description, nil
}

// StartApplication clicks the apply button and waits for the application
// tab to open, returning it wrapped as an ApplyPage.
func (s *Session) StartApplication(ctx context.Context) (*ApplyPage, error) {
	before, err := s.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("enumerate pages: %w", err)
	}

	apply, err := s.search.Context(ctx).ElementX(`//*[@aria-label="Apply now opens in a new tab"]`)
	if err != nil {
		return nil, fmt.Errorf("apply button not found: %w", err)
	}
	if err := safeClick(apply); err != nil {
		return nil, fmt.Errorf("click apply: %w", err)
	}

	page, err := s.waitNewPage(ctx, len(before))
	if err != nil {
		return nil, err
	}
	return newApplyPage(page, s.cfg.navigationTimeout(), s.logger), nil
}

// waitNewPage polls until the browser has more pages than before and
// returns the newest one.
func (s *Session) waitNewPage(ctx context.Context, before int) (*rod.Page, error) {
	deadline := time.Now().Add(s.cfg.navigationTimeout())
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
		pages, err := s.browser.Pages()
		if err != nil {
			continue
		}
		if len(pages) > before {
			return pages[len(pages)-1], nil
		}
	}
	return nil, fmt.Errorf("application tab did not open")
}

// NextResultsPage advances the search pagination. It reports false when
// there is no next page.
func (s *Session) NextResultsPage(ctx context.Context) (bool, error) {
	has, next, err := s.search.Context(ctx).Has(`[data-testid="pagination-page-next"]`)
	if err != nil || !has {
		return false, err
	}
	if err := safeClick(next); err != nil {
		return false, fmt.Errorf("click next page: %w", err)
	}
	if err := s.search.Context(ctx).Timeout(s.cfg.navigationTimeout()).WaitLoad(); err != nil {
		s.logger.Debug("next page load wait failed", zap.Error(err))
	}
	return true, nil
}

// safeClick scrolls the element into view and clicks it, falling back to
// a DOM-level click when the direct one is intercepted.
func safeClick(el *rod.Element) error {
	if err := el.ScrollIntoView(); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	_, err := el.Eval(`() => this.click()`)
	return err
}
