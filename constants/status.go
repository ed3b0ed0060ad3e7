package constants

// SubmissionState is the state of the two-step remote submission.
type SubmissionState string

// Stable values (store these exact strings in the ledger).
const (
	StateNotStarted      SubmissionState = "NOT_STARTED"      // report not yet accepted
	StateReportSubmitted SubmissionState = "REPORT_SUBMITTED" // report accepted, file pending
	StateFileSubmitted   SubmissionState = "FILE_SUBMITTED"   // both steps done
	StatePartialFailure  SubmissionState = "PARTIAL_FAILURE"  // report accepted, file failed
)

// Terminal reports whether no further transition is possible from s.
func (s SubmissionState) Terminal() bool {
	return s == StateFileSubmitted || s == StatePartialFailure
}
