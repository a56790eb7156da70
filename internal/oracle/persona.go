package oracle

import "fmt"

// OutOfScopePhrase is the in-character refusal for questions the document cannot answer.
const OutOfScopePhrase = "That information is outside the parameters of the provided data. Focus on the task at hand."

// Persona is attached as the system instruction of every call.
const Persona = `You are Light Yagami (persona: Light). You are intellectual, calculating, calm, and a perfectionist.
You view academic challenges as battles of wits. Your goal is to guide the student to a perfect victory.
Tone: Sophisticated, slightly dramatic, confident.
Rules:
- Strictly use only the provided data (uploaded text or PDF).
- If information is missing or the user asks something outside the scope of the document, state: "` + OutOfScopePhrase + `"
- Refer to yourself as "Light".
- Use phrases like "Let us calculate the variables," "Hand over the data," "Show me your worth," or "All according to plan."`

const (
	FallbackExplanation = "I was unable to calculate the explanation for this variable."
	FallbackDoubtAnswer = "No data correlates to your query."
)

// FallbackTopics is returned whenever topic extraction fails.
func FallbackTopics() []string {
	return []string{"Core Concepts", "Technical Architecture", "Operational Framework"}
}

const (
	MinTopics = 6
	MaxTopics = 8
)

const topicsInstruction = "Analyze the provided material thoroughly. Extract a list of exactly 6-8 specific, high-level technical topics or modules covered in this data. Return ONLY a valid JSON array of strings."

const quizInstruction = `Generate exactly 10 challenging university-level multiple choice questions based strictly on the provided material.
Each question must have 4 distinct options, a correctAnswerIndex (0-3), and a brief explanation referencing specific facts from the document.`

func explainInstruction(topic string) string {
	return fmt.Sprintf("Explain the specific topic %q in great detail based ONLY on the provided document. Use an intellectual and calculating tone.", topic)
}

func doubtInstruction(question string) string {
	return fmt.Sprintf("The student has a specific doubt: %q. Answer it with absolute precision using ONLY the provided material. If the information is not present, remind them it is outside parameters.", question)
}
