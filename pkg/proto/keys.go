package proto

// Common payload keys used in event payloads. Required keys per event type
// are documented on the emitting component.
const (
	KeyTicketID          = "ticket_id"
	KeyTitle             = "title"
	KeyDescription       = "description"
	KeyPriority          = "priority"
	KeyPreviousStatus    = "previous_status"
	KeyNewStatus         = "new_status"
	KeyChangedBy         = "changed_by"
	KeyAssignedTo        = "assigned_to"
	KeyAssignedBy        = "assigned_by"
	KeyReason            = "reason"
	KeyReportedBy        = "reported_by"
	KeyEscalationKind    = "escalation_kind"
	KeyEscalationProcess = "escalation_process"

	KeyPlanID     = "plan_id"
	KeyTaskID     = "task_id"
	KeyAgentID    = "agent_id"
	KeyStepIndex  = "step_index"
	KeyStepCount  = "step_count"
	KeyStepStatus = "step_status"
	KeyPlan       = "plan"

	KeyThreadID = "thread_id"
	KeyContext  = "context"

	KeyFilePath          = "file_path"
	KeyChangeDescription = "change_description"
	KeyReviewRequired    = "review_required"

	KeyKnowledgeID   = "knowledge_id"
	KeyKnowledgeType = "knowledge_type"
	KeyTags          = "tags"

	KeyErrorKind = "error_kind"
	KeyMessage   = "message"
)
