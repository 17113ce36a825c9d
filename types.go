package main

import (
	"github.com/xpzouying/reels-autopost/planner"
	"github.com/xpzouying/reels-autopost/state"
)

// HTTP API 响应类型

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data"`
	Message string `json:"message,omitempty"`
}

// RunRequest 手动触发一次尝试；留空使用持久化的游标
type RunRequest struct {
	Collection string `json:"collection,omitempty"`
	Item       int    `json:"item,omitempty"`
}

// PlanRequest 分段计划请求
type PlanRequest struct {
	Duration float64 `form:"duration" json:"duration" binding:"required"`
}

// StatusResponse 状态响应
type StatusResponse struct {
	State           *state.PostingState `json:"state"`
	RanToday        bool                `json:"ran_today"`
	BudgetExhausted bool                `json:"budget_exhausted"`
}

// PlanResponse 分段计划响应
type PlanResponse struct {
	*planner.Plan
	Count int `json:"count"`
}

// MCP 相关类型（用于内部转换）

// MCPToolResult MCP 工具结果（内部使用）
type MCPToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent MCP 内容（内部使用）
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
