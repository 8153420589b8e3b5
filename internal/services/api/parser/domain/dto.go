// Package domain holds DTOs for parser http and service contracts
package domain

// SearchInput runs a post search through the execution core
type SearchInput struct {
	Query      string `json:"query" validate:"required,min=1,max=500" example:"solana presale"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=100" example:"50"`
}

// AccountInput targets one social account by username
type AccountInput struct {
	Username   string `json:"username" validate:"required,min=1,max=100" example:"whale_alert"`
	MaxResults int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=100" example:"50"`
}

// EnqueueInput submits a task for asynchronous execution
type EnqueueInput struct {
	Type        string `json:"type" validate:"required,oneof=search account_tweets account_followers" example:"search"`
	Query       string `json:"query,omitempty" validate:"omitempty,min=1,max=500" example:"solana presale"`
	Username    string `json:"username,omitempty" validate:"omitempty,handle" example:"whale_alert"`
	MaxResults  int    `json:"max_results,omitempty" validate:"omitempty,min=1,max=100" example:"50"`
	Priority    string `json:"priority,omitempty" validate:"omitempty,oneof=low normal high" example:"high"`
	MaxAttempts int    `json:"max_attempts,omitempty" validate:"omitempty,min=1,max=10" example:"3"`
}

// EnqueueResponse returns the durable task id
type EnqueueResponse struct {
	TaskID string `json:"task_id" example:"3f3c1a52-8a70-4c7e-9f3b-0a9a5a2f6c11"`
}

// WorkerResponse reports the worker lifecycle state
type WorkerResponse struct {
	Worker string `json:"worker" example:"running"`
}
