package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutor/internal/course"
	"tutor/internal/domain"
	"tutor/internal/session"
)

type fakeCompleter struct {
	mu          sync.Mutex
	rewrite     string
	rewriteErr  error
	deltas      []string
	streamErr   error
	blockOn     string
	timeoutOnce bool
	stepped     chan struct{}
	rewriteReqs []domain.CompletionRequest
	streamReqs  []domain.CompletionRequest
}

func (f *fakeCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rewriteReqs = append(f.rewriteReqs, req)
	return f.rewrite, f.rewriteErr
}

func (f *fakeCompleter) Stream(ctx context.Context, req domain.CompletionRequest, onDelta func(string) error) error {
	f.mu.Lock()
	f.streamReqs = append(f.streamReqs, req)
	timeout := f.timeoutOnce
	f.timeoutOnce = false
	deltas, streamErr, stepped := f.deltas, f.streamErr, f.stepped
	block := f.blockOn != "" && lastText(req.Messages) == f.blockOn
	f.mu.Unlock()

	if timeout {
		<-ctx.Done()
		return ctx.Err()
	}
	for _, d := range deltas {
		if err := onDelta(d); err != nil {
			return err
		}
		if stepped != nil {
			stepped <- struct{}{}
		}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return streamErr
}

func (f *fakeCompleter) lastStream() domain.CompletionRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamReqs[len(f.streamReqs)-1]
}

func lastText(msgs []domain.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text()
}

type fakeEmbedder struct {
	mu     sync.Mutex
	err    error
	inputs []string
}

func (f *fakeEmbedder) Name() string { return "fake" }
func (f *fakeEmbedder) Prepare([]string) error { return nil }
func (f *fakeEmbedder) Dimension() int { return 2 }
func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	if f.err != nil {
		return nil, f.err
	}
	return []float64{1, 0}, nil
}

type fakeRetriever struct {
	matches []domain.Match
	err     error
	last    domain.QueryRequest
}

func (f *fakeRetriever) Query(_ context.Context, req domain.QueryRequest) ([]domain.Match, error) {
	f.last = req
	return f.matches, f.err
}

type fakeStore struct {
	err      error
	keys     []string
	onUpload func()
}

func (f *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ string) (string, error) {
	if f.onUpload != nil {
		f.onUpload()
	}
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.ReadAll(body); err != nil {
		return "", err
	}
	f.keys = append(f.keys, key)
	return "https://bucket.example/" + key, nil
}

var twoObjectives = course.Course{Objectives: []course.Objective{
	{Title: "A", Instruction: "Teach A."},
	{Title: "B", Instruction: "Teach B."},
}}

type fixture struct {
	completer *fakeCompleter
	embedder  *fakeEmbedder
	retriever *fakeRetriever
	store     *fakeStore
	orch      *Orchestrator
	sess      *session.Session
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		completer: &fakeCompleter{rewrite: "hello"},
		embedder:  &fakeEmbedder{},
		retriever: &fakeRetriever{matches: []domain.Match{
			{ID: "1", Score: 0.91, Metadata: map[string]any{"text": "first passage", "source": "https://www.youtube.com/watch?v=abcdefghijk"}},
			{ID: "2", Score: 0.42, Metadata: map[string]any{"text": "second passage"}},
		}},
		store: &fakeStore{},
	}
	f.orch = NewOrchestrator(Deps{
		Completer:   f.completer,
		Embedder:    f.embedder,
		Retriever:   f.retriever,
		ObjectStore: f.store,
		Course:      twoObjectives,
	}, Settings{Model: "m", Namespace: "ns", KeyPrefix: "learning_app/", CallTimeout: time.Second, StreamTimeout: time.Second})
	f.sess = session.New(twoObjectives)
	return f
}

func drain(t *testing.T, st *Stream) (*Reply, string) {
	t.Helper()
	var last string
	for p := range st.Partials() {
		last = p
	}
	reply, err := st.Wait()
	require.NoError(t, err)
	return reply, last
}

func TestTurnCompletesObjectiveAndAdvances(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"Let's start with A! ... ", "OBJECTIVE_COMPLETED"}

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
	require.NoError(t, err)
	reply, last := drain(t, st)

	require.True(t, reply.ObjectiveCompleted)
	require.False(t, reply.Failed)
	require.Equal(t, "Let's start with A! ...", reply.Content)
	require.Equal(t, reply.Content, last)
	require.Len(t, reply.References, 2)
	require.Equal(t, "first passage", reply.References[0].Text)
	require.Equal(t, "second passage", reply.References[1].Text)
	require.True(t, f.sess.Completed())
	require.Equal(t, []string{"hello"}, f.embedder.inputs)
	require.Equal(t, domain.QueryRequest{Vector: []float64{1, 0}, TopK: 5, Namespace: "ns", IncludeMetadata: true}, f.retriever.last)

	gen := f.completer.lastStream()
	assert.True(t, strings.HasSuffix(gen.System, "first passage\n\nsecond passage\n\n"))
	assert.Contains(t, gen.System, `"Teach A."`)
	assert.Equal(t, 1600, gen.MaxTokens)

	f.completer.deltas = []string{"Now on to B."}
	st, err = f.orch.Advance(context.Background(), f.sess)
	require.NoError(t, err)
	reply, _ = drain(t, st)
	require.Equal(t, "Now on to B.", reply.Content)

	require.Equal(t, 1, f.sess.Objective())
	require.False(t, f.sess.Completed())
	msgs := f.sess.Messages()
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].Hidden)
	require.Contains(t, msgs[0].Content, "'A'")
	require.Equal(t, "Now on to B.", msgs[1].Content)
	require.Len(t, f.sess.Visible(), 1)

	gen = f.completer.lastStream()
	assert.Contains(t, gen.System, `"Teach B."`)
	require.Len(t, gen.Messages, 1)
	assert.True(t, gen.Messages[0].Hidden, "hidden transition turn is sent to the model")
}

func TestAdvanceAtLastObjective(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sess.SetObjective(1))
	_, err := f.orch.Advance(context.Background(), f.sess)
	require.ErrorIs(t, err, course.ErrObjectiveOutOfRange)
	require.Equal(t, 1, f.sess.Objective())
}

func TestRetrievalFailureDegradesToEmptyContext(t *testing.T) {
	cases := map[string]func(f *fixture){
		"rewrite": func(f *fixture) { f.completer.rewriteErr = errors.New("boom") },
		"embed":   func(f *fixture) { f.embedder.err = errors.New("boom") },
		"index":   func(f *fixture) { f.retriever.err = errors.New("boom") },
	}
	for name, breakIt := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.completer.deltas = []string{"Still teaching."}
			breakIt(f)

			st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
			require.NoError(t, err)
			reply, _ := drain(t, st)

			require.False(t, reply.Failed)
			require.Empty(t, reply.References)
			require.Equal(t, "Still teaching.", reply.Content)
			gen := f.completer.lastStream()
			assert.True(t, strings.HasSuffix(gen.System, "topic:\n\n"))
			assert.Contains(t, gen.System, `"Teach A."`)
		})
	}
}

func TestEmptyRewriteFallsBackToUserText(t *testing.T) {
	f := newFixture(t)
	f.completer.rewrite = "  "
	f.completer.deltas = []string{"ok"}

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "what is a variable?"})
	require.NoError(t, err)
	drain(t, st)
	require.Equal(t, []string{"what is a variable?"}, f.embedder.inputs)
	require.Equal(t, 100, f.completer.rewriteReqs[0].MaxTokens)
	require.Equal(t, course.RewriteInstruction, f.completer.rewriteReqs[0].System)
}

func TestGenerationFailureAppendsErrorText(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"Partial answer"}
	f.completer.streamErr = errors.New("connection reset")

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
	require.NoError(t, err)
	reply, _ := drain(t, st)

	require.True(t, reply.Failed)
	require.Error(t, reply.Err)
	require.True(t, strings.HasPrefix(reply.Content, "Partial answer\n\nAn error occurred: "))
	require.Contains(t, reply.Content, "connection reset")

	msgs := f.sess.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "hello", msgs[0].Content)
	require.Equal(t, reply.Content, msgs[1].Content)
	require.False(t, f.sess.Completed())
}

func TestAttachmentCredentialsErrorFallsBackToText(t *testing.T) {
	f := newFixture(t)
	f.store.err = domain.ErrCredentialsMissing
	f.completer.deltas = []string{"ok"}

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{
		Text:       "look at this",
		Attachment: &Attachment{Name: "shot.png", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	require.ErrorIs(t, st.AttachmentErr(), domain.ErrCredentialsMissing)
	drain(t, st)

	user := f.sess.Messages()[0]
	require.Empty(t, user.Parts)
	require.Equal(t, "look at this", user.Content)
}

func TestAttachmentUploaded(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"nice screenshot"}

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{
		Text:       "look at this",
		Attachment: &Attachment{Name: "Shot.PNG", Data: []byte{1, 2, 3}},
	})
	require.NoError(t, err)
	require.NoError(t, st.AttachmentErr())
	drain(t, st)

	require.Len(t, f.store.keys, 1)
	key := f.store.keys[0]
	require.True(t, strings.HasPrefix(key, "learning_app/"))
	require.True(t, strings.HasSuffix(key, ".png"))

	user := f.sess.Messages()[0]
	require.Equal(t, "look at this", user.Text())
	require.Equal(t, "https://bucket.example/"+key, user.ImageURL())
}

func TestNewTurnAbandonsStreamingTurn(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"partial"}
	f.completer.blockOn = "first"

	st1, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "first"})
	require.NoError(t, err)
	select {
	case p := <-st1.Partials():
		require.Equal(t, "partial", p)
	case <-time.After(time.Second):
		t.Fatal("first turn produced no partial")
	}

	st2, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "second"})
	require.NoError(t, err)

	_, err = st1.Wait()
	require.ErrorIs(t, err, context.Canceled)
	reply, _ := drain(t, st2)
	require.Equal(t, "partial", reply.Content)

	msgs := f.sess.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Content)
	require.Equal(t, "second", msgs[1].Content)
	require.Equal(t, domain.RoleAssistant, msgs[2].Role)
}

func TestAttachmentTurnAbandonsStreamingTurnBeforeUpload(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"partial"}
	f.completer.blockOn = "first"

	st1, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "first"})
	require.NoError(t, err)
	<-st1.Partials()

	var finishedBeforeUpload bool
	f.store.onUpload = func() {
		select {
		case <-st1.Done():
			finishedBeforeUpload = true
		case <-time.After(time.Second):
		}
	}
	st2, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{
		Text:       "second",
		Attachment: &Attachment{Name: "shot.png", Data: []byte{1}},
	})
	require.NoError(t, err)
	require.True(t, finishedBeforeUpload, "previous turn still running during upload")

	_, err = st1.Wait()
	require.ErrorIs(t, err, context.Canceled)
	drain(t, st2)

	msgs := f.sess.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Content)
	require.Equal(t, "second", msgs[1].Text())
	require.NotEmpty(t, msgs[1].ImageURL())
	require.Equal(t, domain.RoleAssistant, msgs[2].Role)
}

func TestPartialsOnlyGrow(t *testing.T) {
	cases := map[string][]string{
		"sentinel after space":   {"Good job. ", "OBJECTIVE_COMPLETED"},
		"sentinel split":         {"Good job.", " \n", "OBJECTIVE_", "COMPLETED", "\n"},
		"trailing space no flag": {"Lists ", "are ", "mutable. "},
	}
	for name, deltas := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.completer.deltas = deltas
			f.completer.stepped = make(chan struct{})

			st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
			require.NoError(t, err)

			var seen []string
			for range deltas {
				<-f.completer.stepped
				select {
				case p := <-st.Partials():
					seen = append(seen, p)
				default:
				}
			}
			for p := range st.Partials() {
				seen = append(seen, p)
			}
			reply, err := st.Wait()
			require.NoError(t, err)

			require.NotEmpty(t, seen)
			assert.Equal(t, reply.Content, seen[len(seen)-1])
			for i := 1; i < len(seen); i++ {
				assert.True(t, strings.HasPrefix(seen[i], seen[i-1]), "%q does not extend %q", seen[i], seen[i-1])
			}
		})
	}
}

func TestCancelAppendsNothing(t *testing.T) {
	f := newFixture(t)
	f.completer.deltas = []string{"partial"}
	f.completer.blockOn = "hello"

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
	require.NoError(t, err)
	<-st.Partials()
	st.Cancel()

	_, err = st.Wait()
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, f.sess.Messages(), 1)
}

func TestGenerateTimeoutRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.orch.settings.StreamTimeout = 20 * time.Millisecond
	f.completer.timeoutOnce = true
	f.completer.deltas = []string{"second try"}

	st, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "hello"})
	require.NoError(t, err)
	reply, _ := drain(t, st)
	require.False(t, reply.Failed)
	require.Equal(t, "second try", reply.Content)
	require.Len(t, f.completer.streamReqs, 2)
}

func TestEmptyTurnRejected(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.HandleTurn(context.Background(), f.sess, TurnInput{Text: "   "})
	require.ErrorIs(t, err, ErrEmptyTurn)
	require.Empty(t, f.sess.Messages())
}

func TestCallBoundedRetriesTimeoutOnce(t *testing.T) {
	calls := 0
	v, err := callBounded(context.Background(), time.Second, "svc", "op", func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, context.DeadlineExceeded
		}
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 2, calls)

	calls = 0
	_, err = callBounded(context.Background(), time.Second, "svc", "op", func(context.Context) (int, error) {
		calls++
		return 0, context.DeadlineExceeded
	})
	require.Equal(t, 2, calls)
	require.True(t, IsTimeout(err))
	var ece *ExternalCallError
	require.ErrorAs(t, err, &ece)
	require.Equal(t, "svc", ece.Service)

	calls = 0
	_, err = callBounded(context.Background(), time.Second, "svc", "op", func(context.Context) (int, error) {
		calls++
		return 0, errors.New("bad request")
	})
	require.Equal(t, 1, calls, "non-timeout errors are not retried")
	require.False(t, IsTimeout(err))
}
