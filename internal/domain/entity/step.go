package entity

// StepStatus is the state of one step of a multi-step submission.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
)

// Step is one user-visible stage of a submission.
type Step struct {
	Label   string
	Status  StepStatus
	Message string
}
