package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"tutor/internal/course"
	"tutor/internal/domain"
	"tutor/internal/observability"
	"tutor/internal/session"
)

// ErrEmptyTurn is returned when a turn has neither text nor attachment.
var ErrEmptyTurn = errors.New("empty turn")

// Deps are the collaborators of the orchestrator. ObjectStore may be nil, in
// which case attachments are rejected.
type Deps struct {
	Completer   domain.Completer
	Embedder    domain.Embedder
	Retriever   domain.Retriever
	ObjectStore domain.ObjectStore
	Course      course.Course
}

// Settings tune the per-turn pipeline.
type Settings struct {
	Model              string
	RewriteModel       string
	Temperature        float64
	RewriteTemperature float64
	MaxTokens          int
	RewriteMaxTokens   int
	HistoryWindow      int
	TopK               int
	Namespace          string
	KeyPrefix          string
	CallTimeout        time.Duration
	StreamTimeout      time.Duration
}

// TurnInput is one learner action.
type TurnInput struct {
	Text       string
	Attachment *Attachment
}

// Orchestrator runs the rewrite, retrieve, generate and detect pipeline for
// a session.
type Orchestrator struct {
	deps     Deps
	settings Settings
	sentinel string
}

func NewOrchestrator(deps Deps, settings Settings) *Orchestrator {
	if settings.HistoryWindow <= 0 {
		settings.HistoryWindow = 5
	}
	if settings.TopK <= 0 {
		settings.TopK = 5
	}
	if settings.MaxTokens <= 0 {
		settings.MaxTokens = 1600
	}
	if settings.RewriteMaxTokens <= 0 {
		settings.RewriteMaxTokens = 100
	}
	if settings.RewriteModel == "" {
		settings.RewriteModel = settings.Model
	}
	return &Orchestrator{deps: deps, settings: settings, sentinel: deps.Course.SentinelOrDefault()}
}

// Course returns the course the orchestrator prompts for.
func (o *Orchestrator) Course() course.Course { return o.deps.Course }

// HandleTurn records the learner message and starts generating the reply.
// Any in-flight turn of the session is abandoned first. A failed upload is
// reported through Stream.AttachmentErr and the message is sent text-only.
func (o *Orchestrator) HandleTurn(ctx context.Context, sess *session.Session, in TurnInput) (*Stream, error) {
	ctx = observability.WithSession(ctx, sess.ID())
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Attachment == nil {
		return nil, ErrEmptyTurn
	}

	// The previous turn must not stream or commit while the upload runs.
	sess.CancelTurn()

	msg := domain.TextMessage(domain.RoleUser, text)
	var attachErr error
	if in.Attachment != nil {
		url, err := o.upload(ctx, in.Attachment)
		if err != nil {
			observability.LoggerFromContext(ctx).Warn("attachment upload failed", "name", in.Attachment.Name, "error", err)
			if text == "" {
				return nil, err
			}
			attachErr = err
		} else {
			msg = domain.ImageMessage(text, url)
		}
	}
	return o.start(ctx, sess, msg, text, attachErr), nil
}

// Advance moves the session to the next objective and runs the hidden
// transition turn that seeds the new conversation.
func (o *Orchestrator) Advance(ctx context.Context, sess *session.Session) (*Stream, error) {
	ctx = observability.WithSession(ctx, sess.ID())
	if _, err := sess.Advance(); err != nil {
		return nil, err
	}
	prev, _ := sess.ConsumeJustAdvanced()
	observability.LoggerFromContext(ctx).Info("objective advanced", "from", prev, "to", sess.Objective())

	msg := domain.TextMessage(domain.RoleUser, course.TransitionMessage(prev))
	msg.Hidden = true
	return o.start(ctx, sess, msg, msg.Content, nil), nil
}

func (o *Orchestrator) start(ctx context.Context, sess *session.Session, user domain.Message, query string, attachErr error) *Stream {
	objective := sess.Objective()
	turnCtx, cancel := context.WithCancel(ctx)
	seq := sess.BeginTurn(cancel, user)
	st := newStream(cancel)
	st.attachErr = attachErr
	go o.run(observability.WithTurn(turnCtx, seq), sess, seq, objective, query, st)
	return st
}

func (o *Orchestrator) run(ctx context.Context, sess *session.Session, seq uint64, objective int, query string, st *Stream) {
	log := observability.LoggerFromContext(ctx)

	blob, refs := o.Retrieve(ctx, sess, query)
	if ctx.Err() != nil {
		sess.EndTurn(seq)
		st.finish(nil, context.Canceled)
		return
	}

	system, err := course.TutorPrompt(o.deps.Course, objective, blob)
	if err != nil {
		log.Error("building tutor prompt", "objective", objective, "error", err)
		sess.EndTurn(seq)
		st.finish(nil, err)
		return
	}

	req := domain.CompletionRequest{
		Model:       o.settings.Model,
		System:      system,
		Messages:    sess.Window(o.settings.HistoryWindow),
		MaxTokens:   o.settings.MaxTokens,
		Temperature: o.settings.Temperature,
	}
	full, genErr := o.generate(ctx, req, st)
	if ctx.Err() != nil {
		log.Info("turn cancelled")
		sess.EndTurn(seq)
		st.finish(nil, context.Canceled)
		return
	}

	reply := &Reply{References: refs}
	if genErr != nil {
		log.Warn("generation failed", "error", genErr)
		reply.Failed, reply.Err = true, genErr
		reply.Content = "An error occurred: " + genErr.Error()
		if partial := course.StripSentinel(full, o.sentinel); partial != "" {
			reply.Content = partial + "\n\n" + reply.Content
		}
	} else {
		reply.ObjectiveCompleted = course.ContainsSentinel(full, o.sentinel)
		reply.Content = course.StripSentinel(full, o.sentinel)
	}
	if !sess.IsCurrent(seq) {
		st.finish(nil, context.Canceled)
		return
	}
	st.emit(reply.Content)

	msg := domain.TextMessage(domain.RoleAssistant, reply.Content)
	msg.References = refs
	if !sess.CommitReply(seq, msg, reply.ObjectiveCompleted) {
		st.finish(nil, context.Canceled)
		return
	}
	log.Info("turn complete", "objective", objective, "references", len(refs), "objective_completed", reply.ObjectiveCompleted)
	st.finish(reply, nil)
}

// Retrieve rewrites the latest turn into a standalone query, embeds it and
// fetches the top matches from the index. Any failure degrades to an empty
// context and no references. query is used when the rewrite comes back empty.
func (o *Orchestrator) Retrieve(ctx context.Context, sess *session.Session, query string) (string, []domain.Reference) {
	log := observability.LoggerFromContext(ctx)
	if o.deps.Embedder == nil || o.deps.Retriever == nil {
		log.Warn("retrieval skipped", "error", domain.ErrNotConfigured)
		return "", nil
	}

	history := sess.Window(o.settings.HistoryWindow)
	rewritten, err := callBounded(ctx, o.settings.CallTimeout, "completion", "rewrite", func(ctx context.Context) (string, error) {
		return o.deps.Completer.Complete(ctx, domain.CompletionRequest{
			Model:       o.settings.RewriteModel,
			System:      course.RewriteInstruction,
			Messages:    history,
			MaxTokens:   o.settings.RewriteMaxTokens,
			Temperature: o.settings.RewriteTemperature,
		})
	})
	if err != nil {
		log.Warn("query rewrite failed, continuing without references", "error", err)
		return "", nil
	}
	rewritten = strings.TrimSpace(rewritten)
	if rewritten == "" {
		rewritten = query
	}
	log.Info("query rewritten", "query", rewritten)

	vec, err := callBounded(ctx, o.settings.CallTimeout, "embedder", "embed", func(ctx context.Context) ([]float64, error) {
		return o.deps.Embedder.Embed(ctx, rewritten)
	})
	if err != nil {
		log.Warn("embedding failed, continuing without references", "error", err)
		return "", nil
	}

	matches, err := callBounded(ctx, o.settings.CallTimeout, "vector-index", "query", func(ctx context.Context) ([]domain.Match, error) {
		return o.deps.Retriever.Query(ctx, domain.QueryRequest{
			Vector:          vec,
			TopK:            o.settings.TopK,
			Namespace:       o.settings.Namespace,
			IncludeMetadata: true,
		})
	})
	if err != nil {
		log.Warn("retrieval failed, continuing without references", "error", err)
		return "", nil
	}

	var sb strings.Builder
	refs := make([]domain.Reference, 0, len(matches))
	for _, m := range matches {
		ref := m.Reference()
		sb.WriteString(ref.Text)
		sb.WriteString("\n\n")
		refs = append(refs, ref)
	}
	log.Info("references retrieved", "matches", len(refs))
	return sb.String(), refs
}

// generate streams the reply, publishing displayable text as it grows. A
// timeout is retried once, and only if nothing was produced yet.
func (o *Orchestrator) generate(ctx context.Context, req domain.CompletionRequest, st *Stream) (string, error) {
	var full strings.Builder
	for attempt := 0; ; attempt++ {
		_, err := runWithTimeout(ctx, o.settings.StreamTimeout, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, o.deps.Completer.Stream(ctx, req, func(delta string) error {
				full.WriteString(delta)
				st.emit(course.Displayable(full.String(), o.sentinel))
				return nil
			})
		})
		if err == nil {
			return full.String(), nil
		}
		timedOut := IsTimeout(err) && ctx.Err() == nil
		if timedOut && attempt == 0 && full.Len() == 0 {
			continue
		}
		return full.String(), &ExternalCallError{Service: "completion", Op: "generate", Timeout: timedOut, Err: err}
	}
}
