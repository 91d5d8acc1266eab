// Package flow walks one application from the moment its tab opens to a
// terminal state. Each loop iteration classifies the current URL, runs the
// handler for that state, and waits for the page to settle. A step cap and
// a same-state guard keep a stuck flow from looping forever.
package flow

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/applypilot/applypilot/internal/missed"
	"github.com/applypilot/applypilot/internal/resolve"
)

// State classifies one step of the application flow.
type State string

const (
	StateResumeSelection State = "resume_selection"
	StateQuestions       State = "questions"
	StateReview          State = "review"
	StatePostApply       State = "post_apply"
	StateIntervention    State = "intervention"
	StateExternal        State = "external"
	StateUnknown         State = "unknown"
	StateTerminal        State = "terminal"
)

// Classify maps a flow URL to its state. Match order follows the page
// sequence the site actually produces.
func Classify(rawURL string) State {
	lower := strings.ToLower(rawURL)

	switch {
	case strings.Contains(lower, "resume-selection-module"):
		return StateResumeSelection
	case strings.Contains(lower, "question"):
		return StateQuestions
	case strings.Contains(lower, "review"):
		return StateReview
	case strings.Contains(lower, "postresumeapply"):
		return StatePostApply
	case !onSiteHost(lower):
		return StateExternal
	case strings.Contains(lower, "post-apply"):
		return StateTerminal
	case strings.Contains(lower, "intervention"):
		return StateIntervention
	}
	return StateUnknown
}

func onSiteHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		// Relative or unparseable URLs stay in the flow.
		return true
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host == "indeed.com" || strings.HasSuffix(host, ".indeed.com")
}

// Page is the application tab as the runner sees it.
type Page interface {
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) string
	WaitSettled(ctx context.Context) error
	SelectFileResume(ctx context.Context) error
	ClickContinue(ctx context.Context) (bool, error)
	ClickSubmit(ctx context.Context) (bool, error)
	CaptchaPresent(ctx context.Context) bool

	// ResolveQuestions runs the resolution engine against the current
	// step.
	ResolveQuestions(ctx context.Context) (*resolve.StepResult, error)
}

// Policy tunes how the runner reacts to trouble.
type Policy struct {
	// HaltOnMissed stops the flow before submission when required
	// questions stay unanswered.
	HaltOnMissed bool
	// MaxSteps caps loop iterations for one application.
	MaxSteps int
	// MaxSameState aborts after this many consecutive visits to the same
	// state without a URL change.
	MaxSameState int
}

func (p Policy) maxSteps() int {
	if p.MaxSteps == 0 {
		return 15
	}
	return p.MaxSteps
}

func (p Policy) maxSameState() int {
	if p.MaxSameState == 0 {
		return 3
	}
	return p.MaxSameState
}

// Outcome reports how one application ended.
type Outcome struct {
	Submitted bool
	Halted    bool
	Final     State
	Steps     int
	Missed    int
}

// Runner drives one application tab to completion.
type Runner struct {
	policy    Policy
	missedLog *missed.Logger
	logger    *zap.Logger
}

// NewRunner builds a runner. missedLog may be nil to disable recording.
func NewRunner(policy Policy, missedLog *missed.Logger, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{policy: policy, missedLog: missedLog, logger: log}
}

// Run walks the flow until a terminal state, the step cap, or the
// same-state guard fires.
func (r *Runner) Run(ctx context.Context, page Page) (*Outcome, error) {
	if err := page.WaitSettled(ctx); err != nil {
		return nil, err
	}

	outcome := &Outcome{}
	lastState := State("")
	lastURL := ""
	sameState := 0

	for outcome.Steps < r.policy.maxSteps() {
		if err := ctx.Err(); err != nil {
			return outcome, err
		}
		outcome.Steps++

		rawURL, err := page.URL(ctx)
		if err != nil {
			return outcome, err
		}
		state := Classify(rawURL)
		outcome.Final = state

		// A wizard legitimately serves several pages of the same state in
		// a row; only a repeat of the exact URL counts as no progress.
		if state == lastState && rawURL == lastURL {
			sameState++
			if sameState >= r.policy.maxSameState() {
				r.logger.Warn("flow stuck on one page, aborting",
					zap.String("state", string(state)),
					zap.String("url", rawURL),
				)
				return outcome, nil
			}
		} else {
			lastState = state
			lastURL = rawURL
			sameState = 0
		}

		r.logger.Info("flow step",
			zap.Int("step", outcome.Steps),
			zap.String("state", string(state)),
		)

		if page.CaptchaPresent(ctx) {
			r.logger.Warn("captcha challenge detected, holding flow")
			outcome.Final = StateIntervention
			outcome.Halted = true
			return outcome, nil
		}

		done, err := r.step(ctx, page, state, outcome)
		if err != nil {
			return outcome, err
		}
		if done {
			return outcome, nil
		}
	}

	r.logger.Warn("flow step cap reached", zap.Int("steps", outcome.Steps))
	return outcome, nil
}

// step handles one state and reports whether the flow is finished.
func (r *Runner) step(ctx context.Context, page Page, state State, outcome *Outcome) (bool, error) {
	switch state {
	case StateResumeSelection:
		if err := page.SelectFileResume(ctx); err != nil {
			r.logger.Warn("resume selection failed", zap.Error(err))
		}
		if _, err := page.ClickContinue(ctx); err != nil {
			return false, err
		}
		return false, page.WaitSettled(ctx)

	case StateQuestions:
		result, err := page.ResolveQuestions(ctx)
		if err != nil {
			return false, err
		}
		if len(result.Missed) > 0 {
			outcome.Missed += len(result.Missed)
			if r.missedLog != nil {
				rawURL, _ := page.URL(ctx)
				r.missedLog.Record(missed.PageContext{URL: rawURL, Title: page.Title(ctx)}, result.Missed)
			}
			if r.policy.HaltOnMissed {
				r.logger.Warn("required questions unanswered, halting before submit",
					zap.Int("missed", len(result.Missed)),
				)
				outcome.Halted = true
				return true, nil
			}
		}
		if _, err := page.ClickContinue(ctx); err != nil {
			return false, err
		}
		return false, page.WaitSettled(ctx)

	case StateReview:
		submitted, err := page.ClickSubmit(ctx)
		if err != nil {
			return false, err
		}
		if submitted {
			outcome.Submitted = true
			if err := page.WaitSettled(ctx); err != nil {
				return true, err
			}
			return true, nil
		}
		if _, err := page.ClickContinue(ctx); err != nil {
			return false, err
		}
		return false, page.WaitSettled(ctx)

	case StatePostApply, StateExternal:
		// Transitional pages; give redirects a chance to fire.
		return false, page.WaitSettled(ctx)

	case StateIntervention:
		outcome.Halted = true
		return true, nil

	case StateTerminal:
		return true, nil

	default:
		// Unknown step: try to advance, otherwise let redirects settle
		// and stop.
		clicked, err := page.ClickContinue(ctx)
		if err != nil {
			return false, err
		}
		if err := page.WaitSettled(ctx); err != nil {
			return false, err
		}
		return !clicked, nil
	}
}
