package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/memory"
	"github.com/applypilot/applypilot/internal/question"
	"github.com/applypilot/applypilot/internal/textnorm"
)

// continueButtons are tried in order; the site shows different labels on
// different steps.
var continueButtons = []string{
	`//button[not(@disabled) and (contains(normalize-space(.), "Review your application") or .//span[normalize-space()="Review your application"])]`,
	`//button[not(@disabled) and (contains(normalize-space(.), "Continue") or .//span[normalize-space()="Continue"])]`,
	`//*[@role="button" and not(@disabled) and contains(normalize-space(.), "Continue")]`,
	`//button[contains(@data-testid, "continue") or contains(@id, "continue")]`,
	`//button[not(@disabled) and (contains(normalize-space(.), "Next") or .//span[normalize-space()="Next"])]`,
	`//button[not(@disabled) and (contains(normalize-space(.), "Save and continue") or .//span[normalize-space()="Save and continue"])]`,
}

var submitButtons = []string{
	`//button[not(@disabled) and (contains(normalize-space(.), "Submit") or .//span[contains(normalize-space(), "Submit")])]`,
	`//*[@role="button" and not(@disabled) and contains(normalize-space(.), "Submit")]`,
	`//button[contains(@data-testid, "submit") or contains(@id, "submit")]`,
}

var captchaSelectors = []string{
	`iframe[title="reCAPTCHA"]`,
	`textarea.g-recaptcha-response`,
	`#captcha-wrapper`,
}

// ApplyPage is the application tab. It implements the resolution engine's
// page driver plus the navigation operations the flow runner needs.
type ApplyPage struct {
	page    *rod.Page
	timeout time.Duration
	logger  *zap.Logger

	// items caches the question block handles resolved at extraction,
	// keyed by record locator. Re-extracting replaces the cache.
	items map[string]*rod.Element
}

func newApplyPage(page *rod.Page, timeout time.Duration, log *zap.Logger) *ApplyPage {
	return &ApplyPage{page: page, timeout: timeout, logger: log, items: map[string]*rod.Element{}}
}

// URL returns the tab's current location.
func (p *ApplyPage) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// Title returns the tab's document title, best effort.
func (p *ApplyPage) Title(ctx context.Context) string {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return ""
	}
	return info.Title
}

// Close closes the application tab.
func (p *ApplyPage) Close() error {
	return p.page.Close()
}

// WaitSettled waits for the document to load and the URL to stop moving.
// Quick script redirects are followed up to maxHops before giving up on
// stability.
func (p *ApplyPage) WaitSettled(ctx context.Context) error {
	const (
		settle  = 800 * time.Millisecond
		maxHops = 3
	)

	page := p.page.Context(ctx)
	if err := page.Timeout(p.timeout).WaitLoad(); err != nil {
		p.logger.Debug("load wait failed", zap.Error(err))
	}

	deadline := time.Now().Add(p.timeout)
	last, err := p.URL(ctx)
	if err != nil {
		return err
	}

	hops := 0
	stableSince := time.Now()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}

		current, err := p.URL(ctx)
		if err != nil {
			return err
		}
		if current != last {
			last = current
			stableSince = time.Now()
			hops++
			if hops >= maxHops {
				return nil
			}
			continue
		}
		if time.Since(stableSince) >= settle {
			return nil
		}
	}
	return nil
}

// SelectFileResume picks the previously uploaded file resume on the
// resume-selection step.
func (p *ApplyPage) SelectFileResume(ctx context.Context) error {
	has, card, err := p.page.Context(ctx).Has(`[data-testid="resume-selection-file-resume-radio-card"]`)
	if err != nil {
		return err
	}
	if !has {
		return fmt.Errorf("resume card not found")
	}
	return safeClick(card)
}

// ClickContinue advances the flow. It reports false when no continue
// control is present.
func (p *ApplyPage) ClickContinue(ctx context.Context) (bool, error) {
	return p.clickFirst(ctx, continueButtons)
}

// ClickSubmit submits the application on the review step.
func (p *ApplyPage) ClickSubmit(ctx context.Context) (bool, error) {
	return p.clickFirst(ctx, submitButtons)
}

func (p *ApplyPage) clickFirst(ctx context.Context, xpaths []string) (bool, error) {
	page := p.page.Context(ctx)
	for _, xp := range xpaths {
		els, err := page.ElementsX(xp)
		if err != nil || len(els) == 0 {
			continue
		}
		if err := safeClick(els.First()); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// CaptchaPresent reports whether a captcha challenge is visible.
func (p *ApplyPage) CaptchaPresent(ctx context.Context) bool {
	page := p.page.Context(ctx)
	for _, sel := range captchaSelectors {
		if has, el, err := page.Has(sel); err == nil && has {
			if visible, err := el.Visible(); err == nil && visible {
				return true
			}
		}
	}
	return false
}

// ReadValue returns the value currently shown for the question, if any.
// Dropdown placeholders do not count as answers.
func (p *ApplyPage) ReadValue(ctx context.Context, q *question.Record) (memory.Answer, bool, error) {
	ans, ok, err := p.readValue(ctx, q)
	if err != nil {
		p.evictItem(q)
	}
	return ans, ok, err
}

func (p *ApplyPage) readValue(ctx context.Context, q *question.Record) (memory.Answer, bool, error) {
	item, err := p.resolveItem(ctx, q)
	if err != nil {
		return memory.Answer{}, false, err
	}

	switch q.Kind {
	case question.SingleChoice:
		opts, err := p.optionControls(item, "radio")
		if err != nil {
			return memory.Answer{}, false, err
		}
		for _, opt := range opts {
			if opt.selected() {
				return memory.String(opt.label), true, nil
			}
		}
		return memory.Answer{}, false, nil

	case question.MultiChoice:
		opts, err := p.optionControls(item, "checkbox")
		if err != nil {
			return memory.Answer{}, false, err
		}
		var labels []string
		for _, opt := range opts {
			if opt.selected() {
				labels = append(labels, opt.label)
			}
		}
		if len(labels) == 0 {
			return memory.Answer{}, false, nil
		}
		return memory.List(labels), true, nil

	case question.Dropdown:
		sel, err := p.control(item, "select")
		if err != nil {
			return memory.Answer{}, false, err
		}
		text, value, ok := selectedOption(sel)
		if !ok || value == "" || question.PlaceholderRe.MatchString(text) {
			return memory.Answer{}, false, nil
		}
		return memory.Pair(text, value), true, nil

	case question.ShortText, question.LongText:
		ctl, err := p.control(item, `textarea, input:not([type="radio"]):not([type="checkbox"])`)
		if err != nil {
			return memory.Answer{}, false, err
		}
		val, err := ctl.Property("value")
		if err != nil {
			return memory.Answer{}, false, err
		}
		text := strings.TrimSpace(val.String())
		if text == "" {
			return memory.Answer{}, false, nil
		}
		return memory.String(text), true, nil
	}

	return memory.Answer{}, false, nil
}

// ApplyValue writes the answer into the page.
func (p *ApplyPage) ApplyValue(ctx context.Context, q *question.Record, ans memory.Answer) error {
	if err := p.applyValue(ctx, q, ans); err != nil {
		p.evictItem(q)
		return err
	}
	return nil
}

func (p *ApplyPage) applyValue(ctx context.Context, q *question.Record, ans memory.Answer) error {
	item, err := p.resolveItem(ctx, q)
	if err != nil {
		return err
	}

	switch q.Kind {
	case question.SingleChoice:
		return p.clickOption(item, "radio", ans.Primary())

	case question.MultiChoice:
		labels := ans.List
		if ans.Shape != memory.ShapeList {
			labels = []string{ans.Primary()}
		}
		for _, label := range labels {
			if err := p.clickOption(item, "checkbox", label); err != nil {
				return err
			}
		}
		return nil

	case question.Dropdown:
		sel, err := p.control(item, "select")
		if err != nil {
			return err
		}
		return sel.Select([]string{ans.Primary()}, true, rod.SelectorTypeText)

	case question.ShortText, question.LongText:
		ctl, err := p.control(item, `textarea, input:not([type="radio"]):not([type="checkbox"])`)
		if err != nil {
			return err
		}
		// Typing over the selection replaces any prior value.
		if err := ctl.SelectAllText(); err != nil {
			p.logger.Debug("select-all before input failed", zap.Error(err))
		}
		return ctl.Input(ans.Primary())
	}

	return fmt.Errorf("cannot apply a value to a %s question", q.Kind)
}

// DropdownOptions returns the live option labels, placeholders excluded.
func (p *ApplyPage) DropdownOptions(ctx context.Context, q *question.Record) ([]string, error) {
	labels, err := p.dropdownOptions(ctx, q)
	if err != nil {
		p.evictItem(q)
	}
	return labels, err
}

func (p *ApplyPage) dropdownOptions(ctx context.Context, q *question.Record) ([]string, error) {
	item, err := p.resolveItem(ctx, q)
	if err != nil {
		return nil, err
	}
	sel, err := p.control(item, "select")
	if err != nil {
		return nil, err
	}

	opts, err := sel.Elements("option")
	if err != nil {
		return nil, err
	}

	var labels []string
	for _, opt := range opts {
		text, err := opt.Text()
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		value := ""
		if v, err := opt.Property("value"); err == nil {
			value = strings.TrimSpace(v.String())
		}
		if value == "" || question.PlaceholderRe.MatchString(text) {
			continue
		}
		labels = append(labels, text)
	}
	return labels, nil
}

// resolveItem returns the cached question block handle, re-querying the
// positional locator when the cache is cold or was evicted.
func (p *ApplyPage) resolveItem(ctx context.Context, q *question.Record) (*rod.Element, error) {
	if item, ok := p.items[q.Locator]; ok {
		return item, nil
	}
	if q.Locator == "" {
		return nil, fmt.Errorf("question %s has no locator", q.Key())
	}
	has, item, err := p.page.Context(ctx).HasX(q.Locator)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("question block %q not found", q.Locator)
	}
	p.items[q.Locator] = item
	return item, nil
}

// evictItem drops a cached handle after a failed interaction so the next
// attempt re-resolves the block from its locator.
func (p *ApplyPage) evictItem(q *question.Record) {
	delete(p.items, q.Locator)
}

// control returns the first matching control inside the question block.
func (p *ApplyPage) control(item *rod.Element, selector string) (*rod.Element, error) {
	has, ctl, err := item.Has(selector)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, fmt.Errorf("no %q control in question block", selector)
	}
	return ctl, nil
}

// optionControl pairs a visible label with its hidden input.
type optionControl struct {
	label string
	input *rod.Element
	lab   *rod.Element
}

func (o *optionControl) selected() bool {
	val, err := o.input.Property("checked")
	return err == nil && val.Bool()
}

// optionControls walks the labels of a choice question. inputType is
// "radio" or "checkbox".
func (p *ApplyPage) optionControls(item *rod.Element, inputType string) ([]*optionControl, error) {
	labels, err := item.Elements("label")
	if err != nil {
		return nil, err
	}

	var out []*optionControl
	for _, lab := range labels {
		has, input, err := lab.Has(fmt.Sprintf(`input[type="%s"]`, inputType))
		if err != nil || !has {
			continue
		}
		out = append(out, &optionControl{label: optionLabelText(lab), input: input, lab: lab})
	}
	return out, nil
}

// optionLabelText prefers the first non-empty span, matching how option
// labels are marked up, and falls back to the label's own text.
func optionLabelText(lab *rod.Element) string {
	if spans, err := lab.Elements("span"); err == nil {
		for _, span := range spans {
			if text, err := span.Text(); err == nil {
				if t := strings.TrimSpace(text); t != "" {
					return t
				}
			}
		}
	}
	text, _ := lab.Text()
	return strings.TrimSpace(text)
}

// clickOption clicks the option whose label matches the wanted text.
// Inputs are usually hidden, so the label is the click target.
func (p *ApplyPage) clickOption(item *rod.Element, inputType, want string) error {
	opts, err := p.optionControls(item, inputType)
	if err != nil {
		return err
	}
	norm := textnorm.Text(want)
	for _, opt := range opts {
		if textnorm.Text(opt.label) != norm {
			continue
		}
		if opt.selected() {
			return nil
		}
		return safeClick(opt.lab)
	}
	return fmt.Errorf("option %q not found", want)
}

// selectedOption reads the currently selected option of a select control.
func selectedOption(sel *rod.Element) (text, value string, ok bool) {
	obj, err := sel.Eval(`() => {
		const o = this.options[this.selectedIndex];
		return o ? { text: o.textContent.trim(), value: o.value } : null;
	}`)
	if err != nil || obj.Value.Nil() {
		return "", "", false
	}
	return obj.Value.Get("text").Str(), obj.Value.Get("value").Str(), true
}
