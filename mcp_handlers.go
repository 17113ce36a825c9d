package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/poster"
)

// MCP 工具处理函数

func textResult(text string, isError bool) *MCPToolResult {
	return &MCPToolResult{
		Content: []MCPContent{{
			Type: "text",
			Text: text,
		}},
		IsError: isError,
	}
}

func jsonResult(prefix string, v any) *MCPToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return textResult("序列化结果失败: "+err.Error(), true)
	}
	return textResult(prefix+"\n\n"+string(data), false)
}

// handleGetPostingState 处理查看发布状态
func (s *AppServer) handleGetPostingState(ctx context.Context) *MCPToolResult {
	logrus.Info("MCP: 查看发布状态")
	return jsonResult("发布状态:", s.status())
}

// handleRunAttempt 处理执行发布尝试
func (s *AppServer) handleRunAttempt(ctx context.Context, args RunAttemptArgs) *MCPToolResult {
	if args.Collection == "" && args.Item != 0 {
		return textResult("item 需要同时提供 collection", true)
	}

	report, err := s.service.RunAttempt(context.WithoutCancel(ctx), poster.RunOptions{
		Collection: args.Collection,
		Ordinal:    args.Item,
	})
	if err != nil {
		return textResult("执行发布尝试失败: "+err.Error(), true)
	}

	result := jsonResult(fmt.Sprintf("发布尝试结束: %s", report.Outcome), report)
	result.IsError = report.Outcome == poster.OutcomeFailure || report.Outcome == poster.OutcomeInterrupted
	return result
}

// handlePlanSegments 处理分段计划
func (s *AppServer) handlePlanSegments(ctx context.Context, args PlanSegmentsArgs) *MCPToolResult {
	plan, err := s.service.Plan(args.Duration)
	if err != nil {
		return textResult("计算分段失败: "+err.Error(), true)
	}
	return jsonResult(fmt.Sprintf("%.1f 秒的视频切成 %d 段，每段输出 %.1f 秒:", args.Duration, plan.Count(), plan.OutputDuration()), plan)
}
