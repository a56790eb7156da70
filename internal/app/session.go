package app

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"study-companion/internal/domain"
	"study-companion/internal/logger"
)

const (
	UploadFailedNotice = "Analysis failed. The data might be corrupted."
	EmptyQuizNotice    = "Light could not construct a worthy quiz from this data. Try again."
)

// Oracle produces study aids for a document. Implementations are total:
// failures come back as fallback values, never as errors.
type Oracle interface {
	ExtractTopics(ctx context.Context, doc domain.DocumentPayload) []string
	GenerateQuiz(ctx context.Context, doc domain.DocumentPayload) []domain.QuizQuestion
	ExplainTopic(ctx context.Context, topic string, doc domain.DocumentPayload) string
	AnswerDoubt(ctx context.Context, question string, doc domain.DocumentPayload) string
}

// Ingestor turns an uploaded stream into a document payload.
type Ingestor interface {
	Ingest(name string, r io.Reader) (domain.DocumentPayload, error)
}

// Category groups actions that may not run concurrently with themselves.
type Category int

const (
	CategoryUpload Category = iota
	CategoryQuiz
	CategoryExplain
	CategoryDoubt
	categoryCount
)

func (c Category) String() string {
	switch c {
	case CategoryUpload:
		return "upload"
	case CategoryQuiz:
		return "quiz"
	case CategoryExplain:
		return "explain"
	case CategoryDoubt:
		return "doubt"
	default:
		return "unknown"
	}
}

// Session owns every piece of mutable study state. All mutation goes through
// its methods; the lock is never held while the oracle or ingestor runs.
type Session struct {
	oracle Oracle
	ingest Ingestor
	log    *zap.Logger

	mu          sync.Mutex
	id          string
	epoch       uint64
	phase       domain.Phase
	user        domain.UserContext
	topics      []string
	quiz        []domain.QuizQuestion
	progress    domain.QuizProgress
	topic       string
	explanation string
	doubt       string
	doubtAnswer string
	notice      string
	guards      [categoryCount]*semaphore.Weighted
	busy        [categoryCount]bool
	subscribers map[chan Snapshot]struct{}
}

func NewSession(oracle Oracle, ingest Ingestor, log *zap.Logger) *Session {
	s := &Session{
		oracle:      oracle,
		ingest:      ingest,
		log:         logger.OrNop(log).Named("session"),
		subscribers: make(map[chan Snapshot]struct{}),
	}
	s.resetLocked()
	s.log.Info("session started", zap.String("session", s.id))
	return s
}

// SubmitContext records semester and branch and moves Setup to Upload.
func (s *Session) SubmitContext(semester domain.Semester, branch domain.Branch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseSetup || !semester.Valid() || !branch.Valid() {
		return false
	}
	s.user.Semester = semester
	s.user.Branch = branch
	s.notice = ""
	s.transitionLocked(domain.PhaseUpload)
	s.broadcastLocked()
	return true
}

// Upload ingests the document and extracts its topics. An ingest failure is
// returned to the caller and leaves the session in Upload with a notice.
func (s *Session) Upload(ctx context.Context, name string, r io.Reader) (bool, error) {
	c, ok := s.begin(CategoryUpload, func() bool {
		return s.phase == domain.PhaseUpload
	})
	if !ok {
		return false, nil
	}

	payload, err := s.ingest.Ingest(name, r)
	if err != nil {
		s.finish(c, func() bool {
			s.notice = UploadFailedNotice + " " + failureReason(err)
			return false
		})
		return false, err
	}

	topics := s.oracle.ExtractTopics(ctx, payload)
	return s.finish(c, func() bool {
		if s.phase != domain.PhaseUpload {
			return false
		}
		s.user.Document = payload
		s.user.FileName = name
		s.topics = append([]string(nil), topics...)
		s.notice = ""
		s.log.Info("document analysed",
			zap.String("session", s.id),
			zap.String("file", name),
			zap.Int("topics", len(topics)))
		s.transitionLocked(domain.PhaseChoice)
		return true
	}), nil
}

// StartQuiz generates a fresh quiz and resets progress. An empty quiz keeps
// the session in Choice with a notice.
func (s *Session) StartQuiz(ctx context.Context) bool {
	c, ok := s.begin(CategoryQuiz, func() bool {
		return s.phase == domain.PhaseChoice && s.user.HasDocument()
	})
	if !ok {
		return false
	}

	quiz := s.oracle.GenerateQuiz(ctx, c.doc)
	return s.finish(c, func() bool {
		if s.phase != domain.PhaseChoice {
			return false
		}
		if len(quiz) == 0 {
			s.notice = EmptyQuizNotice
			s.log.Warn("quiz generation produced no questions", zap.String("session", s.id))
			return false
		}
		s.quiz = append([]domain.QuizQuestion(nil), quiz...)
		s.progress = domain.QuizProgress{}
		s.notice = ""
		s.transitionLocked(domain.PhaseQuiz)
		return true
	})
}

// StartIllumination moves Choice to Illumination. Topics are already known.
func (s *Session) StartIllumination() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseChoice || !s.user.HasDocument() {
		return false
	}
	s.notice = ""
	s.transitionLocked(domain.PhaseIllumination)
	s.broadcastLocked()
	return true
}

// Answer records the selection for the current question. Only the first
// answer per question counts.
func (s *Session) Answer(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseQuiz || s.progress.Revealed {
		return false
	}
	if index < 0 || index >= domain.OptionsPerQuestion {
		return false
	}
	selected := index
	s.progress.SelectedAnswer = &selected
	s.progress.Revealed = true
	if index == s.quiz[s.progress.CurrentIndex].CorrectAnswerIndex {
		s.progress.Score++
	}
	s.broadcastLocked()
	return true
}

// Advance moves past a revealed question, ending in Summary after the last.
func (s *Session) Advance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseQuiz || !s.progress.Revealed {
		return false
	}
	if s.progress.CurrentIndex+1 >= len(s.quiz) {
		s.log.Info("quiz finished",
			zap.String("session", s.id),
			zap.Int("score", s.progress.Score),
			zap.Int("total", len(s.quiz)))
		s.transitionLocked(domain.PhaseSummary)
	} else {
		s.progress.CurrentIndex++
		s.progress.SelectedAnswer = nil
		s.progress.Revealed = false
	}
	s.broadcastLocked()
	return true
}

// SelectTopic replaces the current explanation (and any doubt answer) with
// an explanation of topic.
func (s *Session) SelectTopic(ctx context.Context, topic string) bool {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return false
	}
	c, ok := s.begin(CategoryExplain, func() bool {
		if s.phase != domain.PhaseIllumination || !s.user.HasDocument() {
			return false
		}
		s.topic = topic
		s.explanation = ""
		s.doubt = ""
		s.doubtAnswer = ""
		return true
	})
	if !ok {
		return false
	}

	text := s.oracle.ExplainTopic(ctx, topic, c.doc)
	return s.finish(c, func() bool {
		if s.phase != domain.PhaseIllumination {
			return false
		}
		s.explanation = text
		return true
	})
}

// SubmitDoubt answers a free-form question about the document, replacing any
// previous answer. Blank questions are ignored.
func (s *Session) SubmitDoubt(ctx context.Context, question string) bool {
	question = strings.TrimSpace(question)
	if question == "" {
		return false
	}
	c, ok := s.begin(CategoryDoubt, func() bool {
		if s.phase != domain.PhaseIllumination || !s.user.HasDocument() {
			return false
		}
		s.doubt = question
		s.doubtAnswer = ""
		return true
	})
	if !ok {
		return false
	}

	answer := s.oracle.AnswerDoubt(ctx, question, c.doc)
	return s.finish(c, func() bool {
		// A topic change clears the doubt while this call is in flight.
		if s.phase != domain.PhaseIllumination || s.doubt != question {
			return false
		}
		s.doubtAnswer = answer
		return true
	})
}

// ReturnToChoice leaves Summary. The finished quiz stays visible until a new
// one starts.
func (s *Session) ReturnToChoice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != domain.PhaseSummary {
		return false
	}
	s.transitionLocked(domain.PhaseChoice)
	s.broadcastLocked()
	return true
}

// Restart discards everything and returns to Setup. Calls still in flight
// finish against the old session and their results are dropped.
func (s *Session) Restart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.id
	s.resetLocked()
	s.log.Info("session restarted", zap.String("previous", prev), zap.String("session", s.id))
	s.broadcastLocked()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every change,
// starting with the current state. The caller must invoke cancel.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	// ch is empty and buffered, so this never blocks while holding the lock.
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

type call struct {
	category Category
	epoch    uint64
	guard    *semaphore.Weighted
	doc      domain.DocumentPayload
}

// begin claims the in-flight guard for category if ready approves the
// current state. ready runs under the lock and may prepare state.
func (s *Session) begin(category Category, ready func() bool) (*call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	guard := s.guards[category]
	if !guard.TryAcquire(1) {
		s.log.Debug("action already in flight",
			zap.String("session", s.id),
			zap.Stringer("category", category))
		return nil, false
	}
	if !ready() {
		guard.Release(1)
		return nil, false
	}
	s.busy[category] = true
	s.broadcastLocked()
	return &call{category: category, epoch: s.epoch, guard: guard, doc: s.user.Document}, true
}

// finish applies a result unless the session was restarted meanwhile.
func (s *Session) finish(c *call, apply func() bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer c.guard.Release(1)
	if c.epoch != s.epoch {
		s.log.Debug("discarding result from previous session",
			zap.String("session", s.id),
			zap.Stringer("category", c.category))
		return false
	}
	s.busy[c.category] = false
	applied := apply()
	s.broadcastLocked()
	return applied
}

func (s *Session) resetLocked() {
	s.id = uuid.NewString()
	s.epoch++
	s.phase = domain.PhaseSetup
	s.user = domain.UserContext{}
	s.topics = nil
	s.quiz = nil
	s.progress = domain.QuizProgress{}
	s.topic = ""
	s.explanation = ""
	s.doubt = ""
	s.doubtAnswer = ""
	s.notice = ""
	for i := range s.guards {
		s.guards[i] = semaphore.NewWeighted(1)
		s.busy[i] = false
	}
}

func (s *Session) transitionLocked(to domain.Phase) {
	s.log.Info("phase changed",
		zap.String("session", s.id),
		zap.Stringer("from", s.phase),
		zap.Stringer("to", to))
	s.phase = to
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow subscriber: replace its oldest pending snapshot.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func failureReason(err error) string {
	var ierr *domain.IngestError
	if errors.As(err, &ierr) {
		return ierr.Reason()
	}
	return err.Error()
}
