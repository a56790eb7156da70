package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"study-companion/internal/domain"
	"study-companion/internal/oracle"
)

type countingGenerator struct {
	calls atomic.Int32
	text  string
	err   error
	delay time.Duration
}

func (g *countingGenerator) Generate(context.Context, oracle.Request) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.text, g.err
}

func sampleRequest(topic string) oracle.Request {
	return oracle.Request{
		Task:        oracle.TaskExplain,
		System:      oracle.Persona,
		Document:    domain.TextDocument{Text: "notes"},
		Instruction: "explain " + topic,
	}
}

func TestResponseCacheServesRepeatedRequests(t *testing.T) {
	gen := &countingGenerator{text: "All according to plan."}
	c := NewResponseCache(gen, time.Minute)

	for i := 0; i < 3; i++ {
		text, err := c.Generate(context.Background(), sampleRequest("a"))
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if text != "All according to plan." {
			t.Fatalf("unexpected text %q", text)
		}
	}
	if gen.calls.Load() != 1 {
		t.Fatalf("expected generator called once, got %d", gen.calls.Load())
	}

	if _, err := c.Generate(context.Background(), sampleRequest("b")); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.calls.Load() != 2 {
		t.Fatalf("different request should miss, calls=%d", gen.calls.Load())
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestResponseCacheSkipsEmptyAndFailedResponses(t *testing.T) {
	gen := &countingGenerator{text: "  "}
	c := NewResponseCache(gen, time.Minute)

	_, _ = c.Generate(context.Background(), sampleRequest("a"))
	_, _ = c.Generate(context.Background(), sampleRequest("a"))
	if gen.calls.Load() != 2 {
		t.Fatalf("empty responses must not be cached, calls=%d", gen.calls.Load())
	}

	gen.err = errors.New("provider down")
	if _, err := c.Generate(context.Background(), sampleRequest("a")); err == nil {
		t.Fatalf("expected error to propagate")
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}
}

func TestResponseCacheOnlyKeepsUsableResponses(t *testing.T) {
	gen := &countingGenerator{text: `{"oops": true}`}
	c := NewResponseCache(gen, time.Minute)

	topics := sampleRequest("a")
	topics.Task = oracle.TaskTopics
	topics.Shape = oracle.ShapeStringList
	for i := 0; i < 3; i++ {
		_, _ = c.Generate(context.Background(), topics)
	}
	if gen.calls.Load() != 3 {
		t.Fatalf("unparsable topics must not be cached, calls=%d", gen.calls.Load())
	}

	gen.text = `["Optics","Waves"]`
	_, _ = c.Generate(context.Background(), topics)
	_, _ = c.Generate(context.Background(), topics)
	if gen.calls.Load() != 4 {
		t.Fatalf("parsable topics should be cached, calls=%d", gen.calls.Load())
	}

	quiz := sampleRequest("a")
	quiz.Task = oracle.TaskQuiz
	quiz.Shape = oracle.ShapeQuiz
	for i := 0; i < 3; i++ {
		_, _ = c.Generate(context.Background(), quiz)
	}
	if gen.calls.Load() != 7 {
		t.Fatalf("quizzes must be regenerated each time, calls=%d", gen.calls.Load())
	}
	if c.Len() != 1 {
		t.Fatalf("expected only the topics entry, got %d", c.Len())
	}
}

func TestResponseCacheCollapsesConcurrentMisses(t *testing.T) {
	gen := &countingGenerator{text: "ok", delay: 50 * time.Millisecond}
	c := NewResponseCache(gen, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), sampleRequest("a")); err != nil {
				t.Errorf("generate: %v", err)
			}
		}()
	}
	wg.Wait()

	if gen.calls.Load() != 1 {
		t.Fatalf("expected one upstream call, got %d", gen.calls.Load())
	}
}

func TestTTLWithJitterStaysWithinTenPercent(t *testing.T) {
	c := NewResponseCache(&countingGenerator{}, time.Minute)
	for i := 0; i < 100; i++ {
		ttl := c.ttlWithJitter()
		if ttl < time.Minute || ttl > time.Minute+6*time.Second {
			t.Fatalf("ttl %s out of range", ttl)
		}
	}
}
