package hermes

import "strings"

const (
	SubjectPrefix = "assay"

	// SubjectRunRequest triggers a batch run; the payload is a RunRequestEvent.
	SubjectRunRequest = "assay.run.request"

	StreamName   = "ASSAY_EVENTS"
	StreamMaxAge = "720h" // 30 days
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// Token makes an identifier safe to use as a single subject token.
func Token(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}

func SubjectScoreComputed(entityID string) string {
	return "assay.score." + Token(entityID) + ".computed"
}

func SubjectApprovalEstimated(entityID string) string {
	return "assay.approval." + Token(entityID) + ".estimated"
}

func SubjectRunCompleted(runID string) string { return "assay.run." + Token(runID) + ".completed" }
