package models

import (
	"encoding/json"
	"time"
)

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusSuspended, StatusCancelled:
		return true
	}
	return false
}

// Tenant is a gateway client. DelegatedToken is never serialized.
type Tenant struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	APIKey             string    `json:"-"`
	Plan               Plan      `json:"plan"`
	Status             Status    `json:"status"`
	ExternalUserID     *string   `json:"external_user_id,omitempty"`
	DelegatedUsername  *string   `json:"delegated_username,omitempty"`
	DelegatedToken     *string   `json:"-"`
	DelegatedConnected bool      `json:"delegated_connected"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (t *Tenant) Active() bool {
	return t != nil && t.Status == StatusActive
}

// Connected reports whether the tenant holds a usable delegated credential.
func (t *Tenant) Connected() bool {
	return t != nil && t.DelegatedToken != nil && *t.DelegatedToken != "" && t.DelegatedUsername != nil
}

type ContextRecord struct {
	TenantID  string          `json:"tenant_id"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type UsageStatus string

const (
	UsageSuccess UsageStatus = "success"
	UsageError   UsageStatus = "error"
)

type UsageLog struct {
	ID        int64       `json:"id"`
	TenantID  *string     `json:"tenant_id"`
	ToolName  string      `json:"tool_name"`
	LatencyMs int64       `json:"latency_ms"`
	Status    UsageStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

type ThreatIncident struct {
	ID          int64     `json:"id"`
	TenantID    *string   `json:"tenant_id"`
	RiskScore   float64   `json:"risk_score"`
	PatternID   string    `json:"pattern_id"`
	Category    string    `json:"category"`
	ActionTaken string    `json:"action_taken"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToolCount aggregates usage rows by tool and status.
type ToolCount struct {
	ToolName     string  `json:"tool_name"`
	Calls        int64   `json:"calls"`
	Errors       int64   `json:"errors"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

type Stats struct {
	Tenants          int64       `json:"tenants"`
	ActiveTenants    int64       `json:"active_tenants"`
	ConnectedTenants int64       `json:"connected_tenants"`
	ContextRecords   int64       `json:"context_records"`
	ToolCalls        int64       `json:"tool_calls"`
	ToolErrors       int64       `json:"tool_errors"`
	ThreatsBlocked   int64       `json:"threats_blocked"`
	ByTool           []ToolCount `json:"by_tool"`
}
