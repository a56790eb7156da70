package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"study-companion/internal/domain"
)

var (
	codeFencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	validate         = validator.New(validator.WithRequiredStructEnabled())
)

// stripCodeFence unwraps responses the model decorated with a markdown fence.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if m := codeFencePattern.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}

func parseTopics(text string) ([]string, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, domain.ErrOracleEmpty
	}
	var raw []string
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}
	topics := make([]string, 0, len(raw))
	for _, topic := range raw {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			continue
		}
		topics = append(topics, topic)
		if len(topics) == MaxTopics {
			break
		}
	}
	if len(topics) == 0 {
		return nil, errors.New("decode topics: no topics in response")
	}
	return topics, nil
}

func parseQuiz(text string) ([]domain.QuizQuestion, error) {
	text = stripCodeFence(text)
	if text == "" {
		return nil, domain.ErrOracleEmpty
	}
	var raw []rawQuestion
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}
	if len(raw) < domain.QuizLength {
		return nil, fmt.Errorf("decode quiz: got %d questions, want %d", len(raw), domain.QuizLength)
	}
	quiz := make([]domain.QuizQuestion, domain.QuizLength)
	for i := range quiz {
		q, err := raw[i].question()
		if err != nil {
			return nil, fmt.Errorf("decode quiz: question %d: %w", i+1, err)
		}
		quiz[i] = q
	}
	return quiz, nil
}

// rawQuestion keeps the answer index as a pointer so a missing key is not
// read as option 0.
type rawQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex *int     `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

func (r rawQuestion) question() (domain.QuizQuestion, error) {
	if r.CorrectAnswerIndex == nil {
		return domain.QuizQuestion{}, errors.New("missing correctAnswerIndex")
	}
	q := domain.QuizQuestion{
		Question:           r.Question,
		Options:            r.Options,
		CorrectAnswerIndex: *r.CorrectAnswerIndex,
		Explanation:        r.Explanation,
	}
	if err := validate.Struct(q); err != nil {
		return domain.QuizQuestion{}, err
	}
	return q, nil
}
