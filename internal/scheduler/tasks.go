package scheduler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TaskNurturingStepDue = "nurturing.step.due"

// NurturingStepDuePayload identifies one claimed nurturing step.
type NurturingStepDuePayload struct {
	LeadID      int64     `json:"leadId"`
	Step        int       `json:"step"`
	ScheduledAt time.Time `json:"scheduledAt"`
}

// TaskID is stable per claim so a re-enqueue of the same claim is rejected.
func (p NurturingStepDuePayload) TaskID() string {
	return fmt.Sprintf("nurturing:%d:%d:%d", p.LeadID, p.Step, p.ScheduledAt.Unix())
}

func NewNurturingStepDueTask(payload NurturingStepDuePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNurturingStepDue, data), nil
}

func ParseNurturingStepDuePayload(task *asynq.Task) (NurturingStepDuePayload, error) {
	var payload NurturingStepDuePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return NurturingStepDuePayload{}, err
	}
	if payload.LeadID <= 0 {
		return NurturingStepDuePayload{}, fmt.Errorf("invalid nurturing payload: leadId %d", payload.LeadID)
	}
	return payload, nil
}
