package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSemester(t *testing.T) {
	assert.Equal(t, Semester(5), ParseSemester("5"))
	assert.Equal(t, Semester(8), ParseSemester(" 8 "))
	assert.Equal(t, SemesterUnset, ParseSemester(""))
	assert.Equal(t, SemesterUnset, ParseSemester("9"))
	assert.Equal(t, SemesterUnset, ParseSemester("fifth"))
	assert.Len(t, Semesters(), 8)
}

func TestParseBranch(t *testing.T) {
	assert.Equal(t, BranchCSE, ParseBranch("CSE"))
	assert.Equal(t, BranchMechanical, ParseBranch("mechanical"))
	assert.Equal(t, BranchUnset, ParseBranch(""))
	assert.Equal(t, BranchUnset, ParseBranch("Aerospace"))
	for _, b := range Branches() {
		assert.Equal(t, b, ParseBranch(b.String()))
	}
}

func TestUserContextReady(t *testing.T) {
	assert.False(t, UserContext{}.Ready())
	assert.False(t, UserContext{Semester: 3}.Ready())
	assert.False(t, UserContext{Branch: BranchIT}.Ready())
	assert.True(t, UserContext{Semester: 3, Branch: BranchIT}.Ready())
}

func TestVerdictFor(t *testing.T) {
	assert.Equal(t, VerdictPerfect, VerdictFor(10, 10))
	assert.Equal(t, VerdictVictory, VerdictFor(7, 10))
	assert.Equal(t, VerdictVictory, VerdictFor(9, 10))
	assert.Equal(t, VerdictWeak, VerdictFor(6, 10))
	assert.Equal(t, VerdictNone, VerdictFor(0, 0))
	assert.Equal(t, "Perfect. You are prepared.", VerdictPerfect.Message())
}

func TestEnumsMarshalAsText(t *testing.T) {
	raw, err := json.Marshal(struct {
		Phase    Phase    `json:"phase"`
		Semester Semester `json:"semester"`
		Branch   Branch   `json:"branch"`
	}{PhaseIllumination, 5, BranchCSE})
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":"illumination","semester":"5","branch":"CSE"}`, string(raw))
}

func TestEnumsUnmarshalFromText(t *testing.T) {
	var decoded struct {
		Phase    Phase    `json:"phase"`
		Semester Semester `json:"semester"`
		Branch   Branch   `json:"branch"`
		Verdict  Verdict  `json:"verdict"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"summary","semester":"8","branch":"mining","verdict":"victory"}`), &decoded))
	assert.Equal(t, PhaseSummary, decoded.Phase)
	assert.Equal(t, Semester(8), decoded.Semester)
	assert.Equal(t, BranchMining, decoded.Branch)
	assert.Equal(t, VerdictVictory, decoded.Verdict)

	require.NoError(t, json.Unmarshal([]byte(`{"semester":"","branch":""}`), &decoded))
	assert.Equal(t, SemesterUnset, decoded.Semester)
	assert.Equal(t, BranchUnset, decoded.Branch)

	assert.Error(t, json.Unmarshal([]byte(`{"phase":"limbo"}`), &decoded))
	assert.Error(t, json.Unmarshal([]byte(`{"semester":"9"}`), &decoded))
}
