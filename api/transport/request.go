package transport

// CreateTaskRequest is the payload for POST /api/v1/tasks.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// RenameTaskRequest is the payload for POST /api/v1/tasks/{id}/rename.
type RenameTaskRequest struct {
	Title string `json:"title"`
}

// ChangeTaskPriorityRequest is the payload for
// POST /api/v1/tasks/{id}/priority.
type ChangeTaskPriorityRequest struct {
	Priority int `json:"priority"`
}

// AssignTaskRequest is the payload for POST /api/v1/tasks/{id}/assign.
type AssignTaskRequest struct {
	AssigneeUserID string `json:"assignee_user_id"`
	AssigneeName   string `json:"assignee_name"`
}
