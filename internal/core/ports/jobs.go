package ports

// PreviewJob asks for a track's audio preview to be analyzed.
type PreviewJob struct {
	TrackID    string
	PreviewURL string
	UserID     string
}

// JobQueue accepts background work. Submissions never block; false means
// the job was dropped.
type JobQueue interface {
	SubmitProfileSync(userID string) bool
	SubmitPreviewAnalysis(job PreviewJob) bool
}
