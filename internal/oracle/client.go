package oracle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"study-companion/internal/domain"
	"study-companion/internal/logger"
)

// Options tunes the oracle client. Zero values pick sensible defaults.
type Options struct {
	// Timeout bounds each attempt; 0 disables the per-attempt deadline.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int
	// InitialBackoff is the first wait between attempts.
	InitialBackoff time.Duration
	Logger         *zap.Logger
}

// Client turns domain requests into generator calls. Every exported method is
// total: failures are logged and replaced by a deterministic fallback.
type Client struct {
	gen  Generator
	opts Options
	log  *zap.Logger
}

func NewClient(gen Generator, opts Options) *Client {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		gen:  gen,
		opts: opts,
		log:  logger.OrNop(opts.Logger).Named("oracle"),
	}
}

// ExtractTopics returns 6-8 topics covered by the document, or FallbackTopics.
func (c *Client) ExtractTopics(ctx context.Context, doc domain.DocumentPayload) []string {
	text, err := c.call(ctx, Request{
		Task:        TaskTopics,
		System:      Persona,
		Document:    doc,
		Instruction: topicsInstruction,
		Shape:       ShapeStringList,
	})
	if err != nil {
		return FallbackTopics()
	}
	topics, err := parseTopics(text)
	if err != nil {
		c.degrade(TaskTopics, parseFailure(err), err)
		return FallbackTopics()
	}
	return topics
}

// GenerateQuiz returns exactly domain.QuizLength questions, or an empty slice.
func (c *Client) GenerateQuiz(ctx context.Context, doc domain.DocumentPayload) []domain.QuizQuestion {
	text, err := c.call(ctx, Request{
		Task:        TaskQuiz,
		System:      Persona,
		Document:    doc,
		Instruction: quizInstruction,
		Shape:       ShapeQuiz,
	})
	if err != nil {
		return []domain.QuizQuestion{}
	}
	quiz, err := parseQuiz(text)
	if err != nil {
		c.degrade(TaskQuiz, parseFailure(err), err)
		return []domain.QuizQuestion{}
	}
	return quiz
}

// ExplainTopic explains one topic using only the document.
func (c *Client) ExplainTopic(ctx context.Context, topic string, doc domain.DocumentPayload) string {
	return c.freeText(ctx, TaskExplain, explainInstruction(topic), doc, FallbackExplanation)
}

// AnswerDoubt answers a free-form question using only the document.
func (c *Client) AnswerDoubt(ctx context.Context, question string, doc domain.DocumentPayload) string {
	return c.freeText(ctx, TaskDoubt, doubtInstruction(question), doc, FallbackDoubtAnswer)
}

func (c *Client) freeText(ctx context.Context, task Task, instruction string, doc domain.DocumentPayload, fallback string) string {
	text, err := c.call(ctx, Request{
		Task:        task,
		System:      Persona,
		Document:    doc,
		Instruction: instruction,
		Shape:       ShapeText,
	})
	if err != nil {
		return fallback
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.degrade(task, domain.OracleEmpty, domain.ErrOracleEmpty)
		return fallback
	}
	return text
}

// call runs the request with a per-attempt deadline, retrying transient
// failures with exponential backoff. Errors are logged before returning.
func (c *Client) call(ctx context.Context, req Request) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.InitialBackoff
	policy.MaxElapsedTime = 0
	bounded := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.opts.MaxRetries)), ctx)

	attempt := 0
	text, err := backoff.RetryWithData(func() (string, error) {
		attempt++
		text, err := c.attempt(ctx, req)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, domain.ErrOracleTimeout) {
			return "", backoff.Permanent(err)
		}
		var transient *TransientError
		if errors.As(err, &transient) {
			c.log.Debug("transient oracle failure",
				zap.String("task", string(req.Task)),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return "", err
		}
		return "", backoff.Permanent(err)
	}, bounded)
	if err != nil {
		kind := domain.OracleTransport
		if errors.Is(err, domain.ErrOracleTimeout) || errors.Is(err, context.DeadlineExceeded) {
			kind = domain.OracleTimeout
		}
		c.degrade(req.Task, kind, err)
		return "", err
	}
	return text, nil
}

// attempt runs one generator call. The deadline is enforced here as well, so
// a generator that ignores its context cannot hold the caller forever.
func (c *Client) attempt(ctx context.Context, req Request) (string, error) {
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := c.gen.Generate(ctx, req)
		done <- result{text: text, err: err}
	}()
	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", errors.Join(domain.ErrOracleTimeout, r.err)
		}
		return r.text, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", domain.ErrOracleTimeout
		}
		return "", ctx.Err()
	}
}

// degrade logs a failure that is about to be replaced by a fallback.
func (c *Client) degrade(task Task, kind domain.OracleErrorKind, err error) {
	oerr := &domain.OracleError{Kind: kind, Task: string(task), Err: err}
	c.log.Warn("oracle call degraded to fallback",
		zap.String("task", oerr.Task),
		zap.String("kind", oerr.Kind.String()),
		zap.Error(oerr))
}

func parseFailure(err error) domain.OracleErrorKind {
	if errors.Is(err, domain.ErrOracleEmpty) {
		return domain.OracleEmpty
	}
	return domain.OracleParse
}
