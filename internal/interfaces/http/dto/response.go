package dto

import "time"

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

// ErrorInfo represents error details
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Success bool       `json:"success"`
	Error   *ErrorInfo `json:"error"`
}

// NewSuccessResponse creates a success response
func NewSuccessResponse(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// NewErrorResponse creates an error response
func NewErrorResponse(code, message, requestID string) ErrorResponse {
	return ErrorResponse{
		Error: &ErrorInfo{Code: code, Message: message, RequestID: requestID},
	}
}

// WebhookAck is returned for every webhook batch with a valid signature.
// The status is 503 when Failed is non-zero so that HubSpot redelivers the batch.
type WebhookAck struct {
	Received   int `json:"received"`
	Invalid    int `json:"invalid"`
	Duplicate  int `json:"duplicate"`
	Filtered   int `json:"filtered"`
	Dropped    int `json:"dropped"`
	Unknown    int `json:"unknown"`
	Dispatched int `json:"dispatched"`
	Failed     int `json:"failed"`
}

// PollRequest is the optional body of a manual poll trigger.
// From and To are accounting dates (YYYY-MM-DD); To defaults to the day after From.
type PollRequest struct {
	From string `json:"from" form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `json:"to" form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// PollAccepted is returned once a poll has been scheduled
type PollAccepted struct {
	TenantID   string    `json:"tenant_id"`
	Kind       string    `json:"kind"`
	WindowFrom time.Time `json:"window_from"`
	WindowTo   time.Time `json:"window_to"`
}

// SyncRunResponse is one recorded poll run
type SyncRunResponse struct {
	ID            string     `json:"id"`
	Kind          string     `json:"kind"`
	WindowFrom    time.Time  `json:"window_from"`
	WindowTo      time.Time  `json:"window_to"`
	Status        string     `json:"status"`
	PagesFetched  int        `json:"pages_fetched"`
	RecordsSeen   int        `json:"records_seen"`
	RecordsFailed int        `json:"records_failed"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
}

// HealthResponse reports service and dependency health
type HealthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
