package turn

import (
	"strings"

	"athena/internal/llm"
)

// Default instructions substituted when the user sends an attachment-only
// or continuation turn with no text. The Greek texts are the ones the
// widget has always used.

const (
	analyzeInstructionEL  = "Ανάλυσε τα συνημμένα έγγραφα και δώσε σε bullet points με τίτλους: Καλύψεις, Απαλλαγές, Εξαιρέσεις, Προϋποθέσεις/Αναμονές, Σημεία-παγίδες, Επόμενα βήματα."
	continueInstructionEL = "Συνέχισε με βάση τα ενεργά έγγραφα."

	analyzeInstructionEN  = "Analyse the attached documents and give bullet points under the headings: Coverage, Deductibles, Exclusions, Conditions/Waiting periods, Pitfalls, Next steps."
	continueInstructionEN = "Continue based on the active documents."
)

// AnalyzeInstruction is the default "analyze documents" message for a turn
// that attaches files without text.
func AnalyzeInstruction(lang string) string {
	if llm.NormalizeLang(lang) == "en" {
		return analyzeInstructionEN
	}
	return analyzeInstructionEL
}

// ContinueInstruction is the default message for a text-less turn that
// only references already-active documents.
func ContinueInstruction(lang string) string {
	if llm.NormalizeLang(lang) == "en" {
		return continueInstructionEN
	}
	return continueInstructionEL
}

// EffectiveMessage resolves the text actually sent to the model. An empty
// result means the turn carries nothing at all and must be rejected.
func EffectiveMessage(text string, hasNewFiles, hasActiveDocs bool, lang string) string {
	text = strings.TrimSpace(text)
	if text != "" {
		return text
	}
	if hasNewFiles {
		return AnalyzeInstruction(lang)
	}
	if hasActiveDocs {
		return ContinueInstruction(lang)
	}
	return ""
}
