package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/katakuxiko/kbagent/internal/chunker"
	"github.com/katakuxiko/kbagent/internal/embedding"
	"github.com/katakuxiko/kbagent/internal/extract"
	"github.com/katakuxiko/kbagent/internal/model"
	"github.com/katakuxiko/kbagent/internal/store"
	"github.com/katakuxiko/kbagent/internal/util"
)

// Pipeline holds the stateless collaborators every session shares.
type Pipeline struct {
	Embedder  embedding.Embedder
	Chunker   *chunker.Chunker
	Fetcher   *extract.Fetcher
	Generator Generator
	TopK      int
	Log       *zap.Logger
}

// Session is one user's knowledge base and conversation. All operations on a
// session run one at a time.
type Session struct {
	ID string

	mu      sync.Mutex
	p       *Pipeline
	index   store.Index
	log     *zap.Logger
	docs    []model.SourceInfo
	history []model.ConversationTurn
}

func NewSession(id string, p *Pipeline, index store.Index) *Session {
	return &Session{
		ID:    id,
		p:     p,
		index: index,
		log:   p.Log.With(zap.String("session", id)),
	}
}

// IngestFile extracts, chunks, embeds and indexes one uploaded file. The
// outcome is always reported in the result; a failed file leaves the index
// untouched.
func (s *Session) IngestFile(ctx context.Context, name string, data []byte) model.IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	format, err := extract.FormatFromFilename(name)
	if err != nil {
		return s.failed(name, err)
	}
	text, err := extract.File(name, data)
	if err != nil {
		return s.failed(name, err)
	}
	return s.ingest(ctx, name, string(format), text)
}

// IngestURL fetches a web page and indexes its text.
func (s *Session) IngestURL(ctx context.Context, rawURL string) model.IngestResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := strings.TrimSpace(rawURL)
	text, err := s.p.Fetcher.Fetch(ctx, source)
	if err != nil {
		return s.failed(source, err)
	}
	return s.ingest(ctx, source, "web", text)
}

func (s *Session) ingest(ctx context.Context, source, kind, text string) model.IngestResult {
	// whitespace-only differences do not make a new version
	fp := util.Fingerprint(extract.Sanitize(text))
	for _, d := range s.docs {
		if d.Source == source && d.Fingerprint == fp {
			s.log.Info("duplicate source skipped", zap.String("source", source))
			return model.IngestResult{Source: source, Status: model.IngestStatusDuplicate, Chunks: d.Chunks}
		}
	}

	chunks := s.p.Chunker.Split(text, source)
	if len(chunks) == 0 {
		return s.failed(source, model.E(model.KindParse, "ingest", errors.New("no text to index")))
	}

	// embed everything first so a failure leaves the index as it was
	embedded := make([]model.EmbeddedChunk, len(chunks))
	for i, c := range chunks {
		vec, err := s.p.Embedder.Embed(ctx, c.Text)
		if err != nil {
			return s.failed(source, err)
		}
		embedded[i] = model.EmbeddedChunk{Chunk: c, Vector: vec}
	}
	if err := s.index.Insert(ctx, embedded...); err != nil {
		return s.failed(source, model.E(model.KindInternal, "index insert", err))
	}

	s.docs = append(s.docs, model.SourceInfo{
		Source:      source,
		Kind:        kind,
		Chunks:      len(chunks),
		Fingerprint: fp,
		IngestedAt:  time.Now(),
	})
	s.log.Info("source indexed", zap.String("source", source), zap.String("kind", kind), zap.Int("chunks", len(chunks)))
	return model.IngestResult{Source: source, Status: model.IngestStatusOK, Chunks: len(chunks)}
}

func (s *Session) failed(source string, err error) model.IngestResult {
	kind := model.KindOf(err)
	s.log.Warn("ingest failed", zap.String("source", source), zap.String("kind", string(kind)), zap.Error(err))
	return model.IngestResult{
		Source:    source,
		Status:    model.IngestStatusFailed,
		Error:     err.Error(),
		ErrorKind: kind,
	}
}

// Ask answers a question from the indexed content. The turn is recorded only
// when an answer was produced.
func (s *Session) Ask(ctx context.Context, question string) (model.AskResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	question = strings.TrimSpace(question)
	if question == "" {
		return model.AskResponse{}, model.E(model.KindInvalidRequest, "ask", errors.New("question is empty"))
	}
	n, err := s.index.Len(ctx)
	if err != nil {
		return model.AskResponse{}, model.E(model.KindInternal, "ask", err)
	}
	if n == 0 {
		return model.AskResponse{}, model.ErrNoDocuments
	}

	vec, err := s.p.Embedder.Embed(ctx, question)
	if err != nil {
		return model.AskResponse{}, err
	}
	hits, err := s.index.Search(ctx, vec, s.p.TopK)
	if err != nil {
		return model.AskResponse{}, model.E(model.KindInternal, "index search", err)
	}

	contexts := make([]string, len(hits))
	sources := make([]model.Chunk, len(hits))
	for i, h := range hits {
		contexts[i] = h.Chunk.Text
		sources[i] = h.Chunk
	}

	start := time.Now()
	answer, err := s.p.Generator.Answer(ctx, question, contexts)
	if err != nil {
		s.log.Warn("answer failed", zap.String("kind", string(model.KindOf(err))), zap.Error(err))
		return model.AskResponse{}, err
	}
	s.log.Info("question answered",
		zap.String("question", util.TruncateRunes(question, 80)),
		zap.Int("context_chunks", len(hits)),
		zap.Duration("took", time.Since(start)),
	)

	s.history = append(s.history, model.ConversationTurn{
		Question: question,
		Answer:   answer,
		Sources:  sources,
		AskedAt:  time.Now(),
	})
	return model.AskResponse{Answer: answer, Context: sources}, nil
}

// Reset empties the index and forgets documents and conversation.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Reset(ctx); err != nil {
		return model.E(model.KindInternal, "reset", err)
	}
	s.docs = nil
	s.history = nil
	s.log.Info("session reset")
	return nil
}

func (s *Session) View(ctx context.Context) (model.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.index.Len(ctx)
	if err != nil {
		return model.SessionView{}, model.E(model.KindInternal, "view", err)
	}
	return model.SessionView{
		ID:        s.ID,
		Documents: append([]model.SourceInfo{}, s.docs...),
		Chunks:    n,
		History:   append([]model.ConversationTurn{}, s.history...),
	}, nil
}

func (s *Session) History() []model.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ConversationTurn{}, s.history...)
}
