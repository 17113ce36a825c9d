package main

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// MCP 工具参数结构体定义

// RunAttemptArgs 执行一次发布尝试的参数
type RunAttemptArgs struct {
	Collection string `json:"collection,omitempty" jsonschema:"强制使用的集合（文件夹）名称，留空则按持久化游标执行"`
	Item       int    `json:"item,omitempty" jsonschema:"集合内的序号（从1开始），需要同时提供 collection"`
}

// PlanSegmentsArgs 分段计划的参数
type PlanSegmentsArgs struct {
	Duration float64 `json:"duration" jsonschema:"源视频时长（秒）"`
}

// InitMCPServer 初始化 MCP Server
func InitMCPServer(appServer *AppServer) *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    "reels-autopost",
			Version: "1.0.0",
		},
		nil,
	)

	registerTools(server, appServer)

	logrus.Debug("MCP Server initialized with official SDK")

	return server
}

// registerTools 注册所有 MCP 工具
func registerTools(server *mcp.Server, appServer *AppServer) {
	// 工具 1: 查看发布状态
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "get_posting_state",
			Description: "查看持久化的发布状态：游标位置、连续错误数、发布总数和历史记录",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
			result := appServer.handleGetPostingState(ctx)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 2: 执行一次发布尝试
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "run_attempt",
			Description: "执行一次完整的发布尝试（下载、切分加速、发布到 Instagram），可强制指定集合和序号",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args RunAttemptArgs) (*mcp.CallToolResult, any, error) {
			logrus.Infof("MCP Server: 收到发布尝试请求，args: %+v", args)
			result := appServer.handleRunAttempt(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	// 工具 3: 分段计划
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "plan_segments",
			Description: "按当前配置计算给定时长的视频会被切成几段、每段多长",
		},
		func(ctx context.Context, req *mcp.CallToolRequest, args PlanSegmentsArgs) (*mcp.CallToolResult, any, error) {
			result := appServer.handlePlanSegments(ctx, args)
			return convertToMCPResult(result), nil, nil
		},
	)

	logrus.Debugf("Registered %d MCP tools", 3)
}

// convertToMCPResult 将自定义的 MCPToolResult 转换为官方 SDK 的格式
func convertToMCPResult(result *MCPToolResult) *mcp.CallToolResult {
	var contents []mcp.Content
	for _, c := range result.Content {
		if c.Type == "text" {
			contents = append(contents, &mcp.TextContent{Text: c.Text})
		}
	}

	return &mcp.CallToolResult{
		Content: contents,
		IsError: result.IsError,
	}
}
