package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"chatanything/app/session"
	"chatanything/config"
	"chatanything/metrics"
	"chatanything/model"
	"chatanything/store"
	"chatanything/types"

	"github.com/google/uuid"
)

// PromptTemplate receives the newline-joined context and the question.
const PromptTemplate = "You are an AI assistant. Use the CONTEXT below to answer the QUESTION.\n\n" +
	"CONTEXT:\n%s\n\nQUESTION:\n%s\n\nANSWER:"

const NoResultsAnswer = "No relevant chunks found."

var greetings = map[string]string{
	"hi":        "Hello! How can I assist you?",
	"hello":     "Hello! How can I assist you?",
	"hey":       "Hello! How can I assist you?",
	"thanks":    "You're welcome!",
	"thank you": "You're welcome!",
}

// Greeting returns the canned reply for small talk.
func Greeting(question string) (string, bool) {
	reply, ok := greetings[strings.ToLower(strings.TrimSpace(question))]
	return reply, ok
}

// Linker resolves a document path to a link the user can open.
type Linker interface {
	Link(ctx context.Context, path string) (string, error)
}

type Options struct {
	Category string
	TTS      bool
}

// Reply is the assistant turn produced for one question. Err carries a search
// or completion failure that was turned into the answer text.
type Reply struct {
	Answer  string
	Related []types.RelatedDocument
	Audio   string
	Err     error
}

type Agent struct {
	logger      *slog.Logger
	searcher    store.Searcher
	completer   model.Completer
	synthesizer model.Synthesizer
	transcripts session.Store
	linker      Linker
	metrics     *metrics.Metrics

	model    string
	limit    int
	audioDir string
	audioURL string
	now      func() time.Time
}

type Option func(*Agent)

// WithSpeech enables text-to-speech. Audio files are written to dir and
// served under urlPrefix.
func WithSpeech(s model.Synthesizer, dir, urlPrefix string) Option {
	return func(a *Agent) {
		a.synthesizer = s
		a.audioDir = dir
		a.audioURL = strings.TrimRight(urlPrefix, "/")
	}
}

func WithLinker(l Linker) Option {
	return func(a *Agent) { a.linker = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

func WithModel(name string) Option {
	return func(a *Agent) {
		if name != "" {
			a.model = name
		}
	}
}

func New(searcher store.Searcher, completer model.Completer, transcripts session.Store, opts ...Option) *Agent {
	a := &Agent{
		logger:      slog.Default().With("component", "agent"),
		searcher:    searcher,
		completer:   completer,
		transcripts: transcripts,
		model:       config.DefaultModel,
		limit:       config.NumChunks,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Model() string { return a.model }

// Ask answers question for the session and records both turns in its
// transcript. Search and completion failures become the answer text; the
// returned error is reserved for a bad category or a transcript failure.
func (a *Agent) Ask(ctx context.Context, sessionID, question string, opts Options) (Reply, error) {
	filter, err := types.FilterFor(opts.Category)
	if err != nil {
		return Reply{}, err
	}
	userTurn := types.Turn{Role: types.RoleUser, Content: question, CreatedAt: a.now()}

	var (
		reply   Reply
		outcome string
		speak   bool
	)
	if greeting, ok := Greeting(question); ok {
		reply.Answer, outcome, speak = greeting, metrics.OutcomeGreeting, true
	} else {
		reply, outcome = a.answer(ctx, question, filter)
		speak = outcome == metrics.OutcomeOK
	}

	if speak && opts.TTS {
		reply.Audio = a.speak(ctx, reply.Answer)
	}

	assistantTurn := types.Turn{
		Role:      types.RoleAssistant,
		Content:   reply.Answer,
		AudioRef:  reply.Audio,
		CreatedAt: a.now(),
	}
	if err := a.transcripts.Append(ctx, sessionID, userTurn, assistantTurn); err != nil {
		return reply, &types.StorageError{Op: "append transcript", Err: err}
	}
	a.metrics.Chatted(outcome)
	return reply, nil
}

func (a *Agent) answer(ctx context.Context, question string, filter types.Category) (Reply, string) {
	done := a.metrics.Observe("search")
	results, err := a.searcher.Search(ctx, types.SearchQuery{
		Query:    question,
		Columns:  types.SearchColumns,
		Category: filter,
		Limit:    a.limit,
	})
	done()
	if err != nil {
		a.logger.Error("search failed", "err", err)
		return Reply{
			Answer: fmt.Sprintf("Error querying search service: %v", err),
			Err:    &types.SearchServiceError{Err: err},
		}, metrics.OutcomeError
	}
	if len(results) == 0 {
		return Reply{Answer: NoResultsAnswer}, metrics.OutcomeNoResults
	}

	chunks := make([]string, len(results))
	for i, r := range results {
		chunks[i] = r.Text
	}
	prompt := fmt.Sprintf(PromptTemplate, strings.Join(chunks, "\n"), question)

	done = a.metrics.Observe("completion")
	answer, err := a.completer.Complete(ctx, a.model, prompt)
	done()
	if err != nil {
		a.logger.Error("completion failed", "model", a.model, "err", err)
		return Reply{
			Answer: fmt.Sprintf("Error generating response: %v", err),
			Err:    &types.CompletionServiceError{Model: a.model, Err: err},
		}, metrics.OutcomeError
	}

	return Reply{Answer: answer, Related: a.related(ctx, results)}, metrics.OutcomeOK
}

// related lists each distinct source path once, in result order.
func (a *Agent) related(ctx context.Context, results []types.SearchResult) []types.RelatedDocument {
	seen := make(map[string]struct{}, len(results))
	var out []types.RelatedDocument
	for _, r := range results {
		if _, ok := seen[r.SourcePath]; ok {
			continue
		}
		seen[r.SourcePath] = struct{}{}
		doc := types.RelatedDocument{Path: r.SourcePath}
		if a.linker != nil {
			link, err := a.linker.Link(ctx, r.SourcePath)
			if err != nil {
				a.logger.Warn("no link for document", "path", r.SourcePath, "err", err)
			}
			doc.URL = link
		}
		out = append(out, doc)
	}
	return out
}

// speak renders text to a new audio file and returns its URL, or "" when
// speech is unavailable or fails.
func (a *Agent) speak(ctx context.Context, text string) string {
	if a.synthesizer == nil {
		return ""
	}
	name := uuid.NewString() + "_response.mp3"
	done := a.metrics.Observe("speech")
	err := a.synthesizer.Synthesize(ctx, text, filepath.Join(a.audioDir, name))
	done()
	if err != nil {
		var se *types.SpeechError
		if !errors.As(err, &se) {
			se = &types.SpeechError{Err: err}
		}
		a.logger.Warn("text-to-speech failed", "err", se)
		return ""
	}
	return a.audioURL + "/" + name
}
