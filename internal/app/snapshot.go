package app

import "study-companion/internal/domain"

// Busy reports which action categories have a call outstanding.
type Busy struct {
	Upload  bool `json:"upload"`
	Quiz    bool `json:"quiz"`
	Explain bool `json:"explain"`
	Doubt   bool `json:"doubt"`
}

// Any reports whether any call is outstanding.
func (b Busy) Any() bool {
	return b.Upload || b.Quiz || b.Explain || b.Doubt
}

// Snapshot is an immutable copy of the session for presentation layers.
type Snapshot struct {
	SessionID     string                `json:"sessionId"`
	Phase         domain.Phase          `json:"phase"`
	Context       domain.UserContext    `json:"context"`
	Topics        []string              `json:"topics"`
	Quiz          []domain.QuizQuestion `json:"quiz"`
	Progress      domain.QuizProgress   `json:"progress"`
	Topic         string                `json:"topic,omitempty"`
	Explanation   string                `json:"explanation,omitempty"`
	DoubtQuestion string                `json:"doubtQuestion,omitempty"`
	DoubtAnswer   string                `json:"doubtAnswer,omitempty"`
	Notice        string                `json:"notice,omitempty"`
	Busy          Busy                  `json:"busy"`
	Verdict       domain.Verdict        `json:"verdict"`
}

// Total is the number of questions in the current quiz.
func (s Snapshot) Total() int {
	return len(s.Quiz)
}

// CurrentQuestion returns the question being displayed, if a quiz exists.
func (s Snapshot) CurrentQuestion() (domain.QuizQuestion, bool) {
	i := s.Progress.CurrentIndex
	if i < 0 || i >= len(s.Quiz) {
		return domain.QuizQuestion{}, false
	}
	return s.Quiz[i], true
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:     s.id,
		Phase:         s.phase,
		Context:       s.user,
		Topics:        append([]string(nil), s.topics...),
		Quiz:          make([]domain.QuizQuestion, len(s.quiz)),
		Progress:      s.progress,
		Topic:         s.topic,
		Explanation:   s.explanation,
		DoubtQuestion: s.doubt,
		DoubtAnswer:   s.doubtAnswer,
		Notice:        s.notice,
		Busy: Busy{
			Upload:  s.busy[CategoryUpload],
			Quiz:    s.busy[CategoryQuiz],
			Explain: s.busy[CategoryExplain],
			Doubt:   s.busy[CategoryDoubt],
		},
	}
	for i, q := range s.quiz {
		q.Options = append([]string(nil), q.Options...)
		snap.Quiz[i] = q
	}
	if s.progress.SelectedAnswer != nil {
		selected := *s.progress.SelectedAnswer
		snap.Progress.SelectedAnswer = &selected
	}
	if s.phase == domain.PhaseSummary {
		snap.Verdict = domain.VerdictFor(s.progress.Score, len(s.quiz))
	}
	return snap
}
