package hermes

const (
	SubjectRunRequest = "vento.run.request"
	SubjectRunStats   = "vento.run.stats"

	// SubjectRunAll matches every run subject, requests and stats included.
	SubjectRunAll = "vento.run.>"
)

func SubjectRunStarted(runID string) string   { return "vento.run." + runID + ".started" }
func SubjectRunCompleted(runID string) string { return "vento.run." + runID + ".completed" }
func SubjectRunFailed(runID string) string    { return "vento.run." + runID + ".failed" }
func SubjectRunWarning(runID string) string   { return "vento.run." + runID + ".warning" }
