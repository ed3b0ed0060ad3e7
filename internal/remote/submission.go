package remote

import (
	"context"

	"github.com/joseph-ayodele/w2-reporter/constants"
	"github.com/joseph-ayodele/w2-reporter/internal/entity"
)

// Submission is the progress of one two-step submission.
type Submission struct {
	State    constants.SubmissionState
	ReportID string
	FileID   string
}

// Submit runs both protocol steps. A failed report step leaves the
// submission in StateNotStarted. A failed file step leaves it in
// StatePartialFailure with the accepted ReportID, so the orphaned report can
// be followed up; the report is never re-sent.
func (c *Client) Submit(ctx context.Context, fields entity.ExtractedFields, doc entity.RawDocument) (Submission, error) {
	sub := Submission{State: constants.StateNotStarted}

	reportID, err := c.SubmitReport(ctx, fields)
	if err != nil {
		return sub, err
	}
	sub.State = constants.StateReportSubmitted
	sub.ReportID = reportID

	fileID, err := c.SubmitFile(ctx, reportID, doc)
	if err != nil {
		sub.State = constants.StatePartialFailure
		c.log.Error("remote.submission.partial",
			"report_id", reportID,
			"error", err,
		)
		return sub, err
	}
	sub.State = constants.StateFileSubmitted
	sub.FileID = fileID

	c.log.Info("remote.submission.ok", "report_id", reportID, "file_id", fileID)
	return sub, nil
}
