package dialog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xaenox/relay-bot/internal/events"
	"github.com/xaenox/relay-bot/internal/metrics"
	"github.com/xaenox/relay-bot/internal/models"
	"github.com/xaenox/relay-bot/internal/moderation"
	"github.com/xaenox/relay-bot/internal/policy"
	"github.com/xaenox/relay-bot/internal/remediation"
	"github.com/xaenox/relay-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultMaxMessageLength = 2000
	DefaultContextWindow    = 20
)

// Responder delivers the orchestrator's output to the user.
type Responder interface {
	Reply(ctx context.Context, text string) error
	// Menu sends text together with the shortcut keyboard.
	Menu(ctx context.Context, text string) error
	// Offer sends text with accept and reject buttons bound to token.
	Offer(ctx context.Context, text, token string) error
	Typing(ctx context.Context) error
}

type Lexicon interface {
	Check(text string) moderation.LexiconResult
	Censor(text string) string
}

type Moderator interface {
	Check(ctx context.Context, text string) models.ModerationOutcome
}

type Assistant interface {
	Generate(ctx context.Context, history []models.MessageRecord, userText string) (string, error)
	Paraphrase(ctx context.Context, text string, reason models.RemediationReason) (string, error)
}

type Deps struct {
	Storage   storage.Storage
	Policy    *policy.Policy
	Lexicon   Lexicon
	Moderator Moderator
	Assistant Assistant
	Sessions  remediation.Store
	Events    events.Publisher
	Logger    *zap.Logger
}

type Options struct {
	MaxMessageLength int
	ContextWindow    int
}

// Incoming is a text message from a user.
type Incoming struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
	Text      string
}

type Action string

const (
	ActionAccept Action = "accept"
	ActionReject Action = "reject"
)

// Resolution is a button press on a paraphrase offer.
type Resolution struct {
	UserID int64
	Token  string
	Action Action
}

type Orchestrator struct {
	store     storage.Storage
	policy    *policy.Policy
	lexicon   Lexicon
	moderator Moderator
	assistant Assistant
	sessions  remediation.Store
	events    events.Publisher
	logger    *zap.Logger
	opts      Options
}

func New(d Deps, opts Options) *Orchestrator {
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = DefaultMaxMessageLength
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Policy == nil {
		d.Policy = policy.New(d.Storage, policy.DefaultThreshold, policy.DefaultUnlockWord)
	}
	return &Orchestrator{
		store:     d.Storage,
		policy:    d.Policy,
		lexicon:   d.Lexicon,
		moderator: d.Moderator,
		assistant: d.Assistant,
		sessions:  d.Sessions,
		events:    d.Events,
		logger:    d.Logger,
		opts:      opts,
	}
}

// HandleMessage runs the full pipeline for one text message. Remote failures
// are answered with an apology; only storage errors are returned.
func (o *Orchestrator) HandleMessage(ctx context.Context, in Incoming, r Responder) error {
	switch ParseIntent(in.Text) {
	case IntentHelp:
		return o.Help(ctx, in, r)
	case IntentReset:
		return o.Reset(ctx, in, r)
	case IntentAsk:
		o.reply(ctx, r, in.UserID, textAskPrompt)
		return nil
	}

	o.logger.Info("INCOMING_MESSAGE",
		zap.Int64("user_id", in.UserID),
		zap.String("username", in.Username),
		zap.Int("length", utf8.RuneCountInString(in.Text)))

	profile, err := o.store.GetOrCreateProfile(ctx, in.UserID, in.Username, in.FirstName)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if policy.StateOf(profile) == policy.StateMuted {
		return o.handleMuted(ctx, in, r)
	}

	if utf8.RuneCountInString(in.Text) > o.opts.MaxMessageLength {
		metrics.MessagesTotal.WithLabelValues("too_long").Inc()
		o.reply(ctx, r, in.UserID, textTooLong(o.opts.MaxMessageLength))
		return nil
	}

	if err := r.Typing(ctx); err != nil {
		o.logger.Warn("Failed to send typing indicator", zap.Error(err), zap.Int64("user_id", in.UserID))
	}

	if lex := o.lexicon.Check(in.Text); lex.Blocked {
		outcome := models.ModerationOutcome{
			Blocked:    true,
			Source:     models.SourceLocal,
			Term:       lex.Term,
			Categories: map[string]float64{},
		}
		return o.handleBlocked(ctx, in, r, outcome, models.ReasonProfanity)
	}

	start := time.Now()
	outcome := o.moderator.Check(ctx, in.Text)
	metrics.RemoteCallSeconds.WithLabelValues("moderation").Observe(time.Since(start).Seconds())
	if outcome.Blocked {
		return o.handleBlocked(ctx, in, r, outcome, models.ReasonModeration)
	}

	answer, result, err := o.completeTurn(ctx, in.UserID, in.Text)
	if err != nil {
		return err
	}
	o.deliverTurn(ctx, r, in.UserID, result, answer)
	return nil
}

func (o *Orchestrator) handleMuted(ctx context.Context, in Incoming, r Responder) error {
	if !o.policy.IsUnlock(in.Text) {
		metrics.MessagesTotal.WithLabelValues("muted").Inc()
		o.reply(ctx, r, in.UserID, textMutedReminder(o.policy.UnlockWord()))
		return nil
	}
	if err := o.policy.Unmute(ctx, in.UserID); err != nil {
		return err
	}
	metrics.UnmutesTotal.Inc()
	o.logger.Info("User unmuted", zap.Int64("user_id", in.UserID))
	o.reply(ctx, r, in.UserID, textUnmuted)
	return nil
}

// handleBlocked is shared by the local and remote checks: count the
// violation, mute at the threshold, otherwise offer a paraphrase.
func (o *Orchestrator) handleBlocked(ctx context.Context, in Incoming, r Responder, outcome models.ModerationOutcome, reason models.RemediationReason) error {
	verdict, err := o.policy.RecordViolation(ctx, in.UserID)
	if err != nil {
		return err
	}
	metrics.MessagesTotal.WithLabelValues("blocked").Inc()
	metrics.ViolationsTotal.WithLabelValues(string(outcome.Source)).Inc()

	fields := []zap.Field{
		zap.Int64("user_id", in.UserID),
		zap.Int64("violations", verdict.Count),
		zap.String("text", o.lexicon.Censor(in.Text)),
	}
	if outcome.Source == models.SourceLocal {
		o.logger.Info("LOCAL_PROFANITY_DETECTED", append(fields, zap.String("term", outcome.Term))...)
	} else {
		o.logger.Info("REMOTE_MODERATION_BLOCKED", append(fields, zap.Strings("categories", moderation.FlaggedCategories(outcome)))...)
	}

	if err := o.events.PublishModeration(events.NewModerationEvent(in.UserID, outcome, verdict.Count, verdict.Muted)); err != nil {
		o.logger.Warn("Failed to publish moderation event", zap.Error(err), zap.Int64("user_id", in.UserID))
	}

	if verdict.Muted {
		metrics.MutesTotal.Inc()
		o.reply(ctx, r, in.UserID, textMuted(reason, o.policy.UnlockWord()))
		return nil
	}

	start := time.Now()
	proposed, err := o.assistant.Paraphrase(ctx, in.Text, reason)
	metrics.RemoteCallSeconds.WithLabelValues("paraphrase").Observe(time.Since(start).Seconds())
	if err != nil {
		o.logger.Error("PARAPHRASE_ERROR",
			zap.Error(err),
			zap.Int64("user_id", in.UserID),
			zap.String("reason", string(reason)))
		o.reply(ctx, r, in.UserID, textParaphraseFailed(reason))
		return nil
	}

	token, err := o.sessions.Create(ctx, in.UserID, in.Text, proposed, reason)
	if err != nil {
		o.logger.Error("Failed to create remediation session", zap.Error(err), zap.Int64("user_id", in.UserID))
		o.reply(ctx, r, in.UserID, textParaphraseFailed(reason))
		return nil
	}
	metrics.RemediationTotal.WithLabelValues("offered").Inc()

	if err := r.Offer(ctx, textOffer(reason, proposed), token); err != nil {
		o.logger.Error("Failed to send paraphrase offer", zap.Error(err), zap.Int64("user_id", in.UserID))
	}
	return nil
}

type turnResult int

const (
	turnAnswered turnResult = iota
	turnFailed
	turnEmpty
)

// completeTurn generates an answer with the stored context and persists the
// user turn followed by the assistant turn. Nothing is written unless the
// answer is non-empty.
func (o *Orchestrator) completeTurn(ctx context.Context, userID int64, text string) (string, turnResult, error) {
	history, err := o.store.GetRecentMessages(ctx, userID, o.opts.ContextWindow)
	if err != nil {
		return "", turnFailed, fmt.Errorf("load dialog context: %w", err)
	}

	start := time.Now()
	answer, err := o.assistant.Generate(ctx, history, text)
	metrics.RemoteCallSeconds.WithLabelValues("generate").Observe(time.Since(start).Seconds())
	if err != nil {
		o.logger.Error("AI_ERROR", zap.Error(err), zap.Int64("user_id", userID))
		return "", turnFailed, nil
	}
	if strings.TrimSpace(answer) == "" {
		o.logger.Warn("EMPTY_AI_RESPONSE", zap.Int64("user_id", userID))
		return "", turnEmpty, nil
	}

	o.logger.Info("AI_RESPONSE",
		zap.Int64("user_id", userID),
		zap.Int("in_len", utf8.RuneCountInString(text)),
		zap.Int("out_len", utf8.RuneCountInString(answer)))

	if err := o.store.AppendMessage(ctx, userID, models.RoleUser, text); err != nil {
		return "", turnFailed, fmt.Errorf("save user turn: %w", err)
	}
	if err := o.store.AppendMessage(ctx, userID, models.RoleAssistant, answer); err != nil {
		return "", turnFailed, fmt.Errorf("save assistant turn: %w", err)
	}
	if err := o.store.IncrementRequests(ctx, userID, 1); err != nil {
		return "", turnFailed, fmt.Errorf("count request: %w", err)
	}
	return answer, turnAnswered, nil
}

func (o *Orchestrator) deliverTurn(ctx context.Context, r Responder, userID int64, result turnResult, answer string) {
	switch result {
	case turnFailed:
		metrics.MessagesTotal.WithLabelValues("failed").Inc()
		o.reply(ctx, r, userID, textAIError)
	case turnEmpty:
		metrics.MessagesTotal.WithLabelValues("empty").Inc()
		o.reply(ctx, r, userID, textEmptyAnswer)
	default:
		metrics.MessagesTotal.WithLabelValues("answered").Inc()
		o.reply(ctx, r, userID, answer)
	}
}

// Resolve handles accept or reject on a paraphrase offer.
func (o *Orchestrator) Resolve(ctx context.Context, res Resolution, r Responder) error {
	if res.Action != ActionAccept && res.Action != ActionReject {
		return fmt.Errorf("unknown remediation action %q", res.Action)
	}

	sess, err := o.sessions.Resolve(ctx, res.Token, res.UserID)
	switch {
	case errors.Is(err, remediation.ErrNotOwner):
		metrics.RemediationTotal.WithLabelValues("foreign").Inc()
		o.reply(ctx, r, res.UserID, textNotYourSession)
		return nil
	case errors.Is(err, remediation.ErrNotFound):
		metrics.RemediationTotal.WithLabelValues("missing").Inc()
		o.reply(ctx, r, res.UserID, textSessionUnavailable)
		return nil
	case err != nil:
		o.logger.Error("Failed to load remediation session", zap.Error(err), zap.Int64("user_id", res.UserID))
		o.reply(ctx, r, res.UserID, textSessionUnavailable)
		return nil
	}

	// Only the caller that removed the session may act on it.
	removed, err := o.sessions.Consume(ctx, res.Token)
	if err != nil {
		o.logger.Error("Failed to consume remediation session", zap.Error(err), zap.Int64("user_id", res.UserID))
	}
	if err != nil || !removed {
		metrics.RemediationTotal.WithLabelValues("missing").Inc()
		o.reply(ctx, r, res.UserID, textSessionUnavailable)
		return nil
	}

	if res.Action == ActionReject {
		metrics.RemediationTotal.WithLabelValues("rejected").Inc()
		o.reply(ctx, r, res.UserID, textRejected)
		return nil
	}

	metrics.RemediationTotal.WithLabelValues("accepted").Inc()
	if err := r.Typing(ctx); err != nil {
		o.logger.Warn("Failed to send typing indicator", zap.Error(err), zap.Int64("user_id", res.UserID))
	}

	answer, result, err := o.completeTurn(ctx, res.UserID, sess.Proposed)
	if err != nil {
		return err
	}
	if result == turnAnswered {
		answer = textAccepted(sess.Proposed, answer)
	}
	o.deliverTurn(ctx, r, res.UserID, result, answer)
	return nil
}

// Start registers the user and shows the welcome text with the menu.
func (o *Orchestrator) Start(ctx context.Context, in Incoming, r Responder) error {
	if _, err := o.store.GetOrCreateProfile(ctx, in.UserID, in.Username, in.FirstName); err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := r.Menu(ctx, textWelcome(in.FirstName)); err != nil {
		o.logger.Error("Failed to send welcome", zap.Error(err), zap.Int64("user_id", in.UserID))
	}
	return nil
}

func (o *Orchestrator) Help(ctx context.Context, in Incoming, r Responder) error {
	o.reply(ctx, r, in.UserID, textHelp)
	return nil
}

func (o *Orchestrator) About(ctx context.Context, in Incoming, r Responder) error {
	o.reply(ctx, r, in.UserID, textAbout)
	return nil
}

// Reset clears the user's dialog context.
func (o *Orchestrator) Reset(ctx context.Context, in Incoming, r Responder) error {
	if _, err := o.store.GetOrCreateProfile(ctx, in.UserID, in.Username, in.FirstName); err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if err := o.store.ClearDialog(ctx, in.UserID); err != nil {
		return fmt.Errorf("clear dialog: %w", err)
	}
	o.logger.Info("Dialog reset", zap.Int64("user_id", in.UserID))
	o.reply(ctx, r, in.UserID, textReset)
	return nil
}

// InternalErrorText is sent by transports when a handler returns an error.
func InternalErrorText() string { return textInternalError }

func (o *Orchestrator) reply(ctx context.Context, r Responder, userID int64, text string) {
	if err := r.Reply(ctx, text); err != nil {
		o.logger.Error("Failed to send message", zap.Error(err), zap.Int64("user_id", userID))
	}
}
