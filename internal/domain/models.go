package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Phase is one state of the study session.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseUpload
	PhaseChoice
	PhaseQuiz
	PhaseIllumination
	PhaseSummary
)

var phaseNames = map[Phase]string{
	PhaseSetup:        "setup",
	PhaseUpload:       "upload",
	PhaseChoice:       "choice",
	PhaseQuiz:         "quiz",
	PhaseIllumination: "illumination",
	PhaseSummary:      "summary",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText lets phases travel as strings in JSON snapshots.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Phase) UnmarshalText(text []byte) error {
	for phase, name := range phaseNames {
		if name == string(text) {
			*p = phase
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// Semester is the student's current semester. The zero value is unset.
type Semester int

const (
	SemesterUnset Semester = 0
	MinSemester   Semester = 1
	MaxSemester   Semester = 8
)

// Semesters lists every selectable semester in order.
func Semesters() []Semester {
	out := make([]Semester, 0, MaxSemester)
	for s := MinSemester; s <= MaxSemester; s++ {
		out = append(out, s)
	}
	return out
}

// ParseSemester accepts "1".."8"; anything else yields SemesterUnset.
func ParseSemester(raw string) Semester {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return SemesterUnset
	}
	s := Semester(n)
	if !s.Valid() {
		return SemesterUnset
	}
	return s
}

func (s Semester) Valid() bool { return s >= MinSemester && s <= MaxSemester }

func (s Semester) String() string {
	if !s.Valid() {
		return ""
	}
	return strconv.Itoa(int(s))
}

func (s Semester) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts the empty string as SemesterUnset.
func (s *Semester) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*s = SemesterUnset
		return nil
	}
	parsed := ParseSemester(string(text))
	if parsed == SemesterUnset {
		return fmt.Errorf("invalid semester %q", text)
	}
	*s = parsed
	return nil
}

// Branch is the engineering branch. The zero value is unset.
type Branch int

const (
	BranchUnset Branch = iota
	BranchCSE
	BranchIT
	BranchETNT
	BranchElectrical
	BranchMechanical
	BranchMining
	BranchCivil
)

var branchNames = []string{"", "CSE", "IT", "ETNT", "Electrical", "Mechanical", "Mining", "Civil"}

// Branches lists every selectable branch in display order.
func Branches() []Branch {
	return []Branch{BranchCSE, BranchIT, BranchETNT, BranchElectrical, BranchMechanical, BranchMining, BranchCivil}
}

// ParseBranch matches branch names case-insensitively.
func ParseBranch(raw string) Branch {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return BranchUnset
	}
	for _, b := range Branches() {
		if strings.EqualFold(b.String(), raw) {
			return b
		}
	}
	return BranchUnset
}

func (b Branch) Valid() bool { return b > BranchUnset && int(b) < len(branchNames) }

func (b Branch) String() string {
	if !b.Valid() {
		return ""
	}
	return branchNames[b]
}

func (b Branch) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Branch) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*b = BranchUnset
		return nil
	}
	parsed := ParseBranch(string(text))
	if parsed == BranchUnset {
		return fmt.Errorf("invalid branch %q", text)
	}
	*b = parsed
	return nil
}

// UserContext is the academic context plus the uploaded document.
type UserContext struct {
	Semester Semester        `json:"semester"`
	Branch   Branch          `json:"branch"`
	Document DocumentPayload `json:"-"`
	FileName string          `json:"fileName"`
}

// Ready reports whether both setup fields have been declared.
func (c UserContext) Ready() bool {
	return c.Semester.Valid() && c.Branch.Valid()
}

// HasDocument reports whether an uploaded document is available for oracle calls.
func (c UserContext) HasDocument() bool {
	return c.Document != nil
}

// DocumentPayload is the normalized uploaded document. It is either a
// TextDocument or a BinaryDocument and never changes once created.
type DocumentPayload interface {
	isDocumentPayload()
}

// TextDocument holds the full text of a plain-text upload.
type TextDocument struct {
	Text string
}

// BinaryDocument holds a base64-encoded binary upload and its MIME type.
type BinaryDocument struct {
	Data     string
	MIMEType string
}

func (TextDocument) isDocumentPayload()   {}
func (BinaryDocument) isDocumentPayload() {}

const (
	OptionsPerQuestion = 4
	QuizLength         = 10
)

// QuizQuestion is one multiple-choice question produced by the oracle.
type QuizQuestion struct {
	Question           string   `json:"question" validate:"required"`
	Options            []string `json:"options" validate:"len=4,unique,dive,required"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex" validate:"min=0,max=3"`
	Explanation        string   `json:"explanation" validate:"required"`
}

// QuizProgress tracks the learner's position in the current quiz.
type QuizProgress struct {
	CurrentIndex   int  `json:"currentIndex"`
	Score          int  `json:"score"`
	SelectedAnswer *int `json:"selectedAnswer,omitempty"`
	Revealed       bool `json:"revealed"`
}

// Verdict is the closing judgement shown on the summary screen.
type Verdict int

const (
	VerdictNone Verdict = iota
	VerdictPerfect
	VerdictVictory
	VerdictWeak
)

// VictoryThreshold is the lowest score out of QuizLength that still counts as a victory.
const VictoryThreshold = 7

// VerdictFor grades a final score.
func VerdictFor(score, total int) Verdict {
	switch {
	case total <= 0:
		return VerdictNone
	case score >= total:
		return VerdictPerfect
	case score >= VictoryThreshold:
		return VerdictVictory
	default:
		return VerdictWeak
	}
}

func (v Verdict) Message() string {
	switch v {
	case VerdictPerfect:
		return "Perfect. You are prepared."
	case VerdictVictory:
		return "A victory, but not a total one. Refine your calculations."
	case VerdictWeak:
		return "Your foundation is weak. Study more. I cannot work with incompetence."
	default:
		return ""
	}
}

func (v Verdict) String() string {
	switch v {
	case VerdictPerfect:
		return "perfect"
	case VerdictVictory:
		return "victory"
	case VerdictWeak:
		return "weak"
	default:
		return "none"
	}
}

func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Verdict) UnmarshalText(text []byte) error {
	for _, candidate := range []Verdict{VerdictNone, VerdictPerfect, VerdictVictory, VerdictWeak} {
		if candidate.String() == string(text) {
			*v = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown verdict %q", text)
}
