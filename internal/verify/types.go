package verify

// ClaimKind categorizes an atomic factual claim derived from a brief.
type ClaimKind string

const (
	ClaimProgram  ClaimKind = "program"
	ClaimCenter   ClaimKind = "center"
	ClaimWellness ClaimKind = "wellness"
)

// Claim is a single checkable statement.
type Claim struct {
	Kind ClaimKind `json:"kind"`
	Text string    `json:"text"`
}

// Correction pairs a claimed value with the corrected one found in the
// knowledge base.
type Correction struct {
	Claimed   string `json:"claimed"`
	Corrected string `json:"corrected"`
}

// Result is the immutable outcome of verifying one brief.
type Result struct {
	// Score is 0-100; corrections weigh double because they represent
	// active misinformation risk rather than mere gaps.
	Score            float64      `json:"score"`
	VerifiedFacts    []string     `json:"verified_facts"`
	UnverifiedClaims []string     `json:"unverified_claims"`
	Corrections      []Correction `json:"corrections"`
	KnowledgeRefs    []string     `json:"knowledge_refs"`
	Recommendations  []string     `json:"recommendations"`
}

// Passed reports whether the score meets the acceptance threshold. A score
// exactly at the threshold passes.
func (r *Result) Passed(threshold float64) bool {
	return r.Score >= threshold
}

// Score computes the verification score from claim counts, clamped to
// [0,100]. With no claims at all the brief has nothing to contradict and
// scores 100.
func Score(verified, unverified, corrected int) float64 {
	total := verified + unverified + 2*corrected
	if total == 0 {
		return 100
	}
	s := 100 * float64(verified) / float64(total)
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
