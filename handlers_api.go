package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/xpzouying/reels-autopost/poster"
)

// respondError 返回错误响应
func respondError(c *gin.Context, statusCode int, code, message string, details any) {
	response := ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	}

	logrus.Errorf("%s %s %d", c.Request.Method, c.Request.URL.Path, statusCode)

	c.JSON(statusCode, response)
}

// respondSuccess 返回成功响应
func respondSuccess(c *gin.Context, data any, message string) {
	response := SuccessResponse{
		Success: true,
		Data:    data,
		Message: message,
	}

	logrus.Debugf("%s %s %d", c.Request.Method, c.Request.URL.Path, http.StatusOK)

	c.JSON(http.StatusOK, response)
}

// healthHandler 健康检查
func healthHandler(c *gin.Context) {
	respondSuccess(c, map[string]any{
		"status":    "healthy",
		"service":   "reels-autopost",
		"timestamp": time.Now().Unix(),
	}, "服务正常")
}

func (s *AppServer) status() *StatusResponse {
	st := s.service.State()
	cfg := s.service.cfg
	return &StatusResponse{
		State:           st,
		RanToday:        cfg.PostDaily && st.RanOn(time.Now(), cfg.Location()),
		BudgetExhausted: st.ErrorBudgetExhausted(cfg.MaxConsecutiveErrors),
	}
}

// stateHandler 查看持久化的发布状态
//
// HTTP API 端点：GET /api/v1/state
func (s *AppServer) stateHandler(c *gin.Context) {
	respondSuccess(c, s.status(), "获取发布状态成功")
}

// runHandler 同步执行一次发布尝试
//
// HTTP API 端点：POST /api/v1/run
//
// 请求参数（可选，body 为空时按游标执行）：
//
//	{
//	  "collection": "day3",
//	  "item": 2
//	}
//
// 已有尝试在执行时返回 409。
func (s *AppServer) runHandler(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
				"请求参数错误", err.Error())
			return
		}
	}
	if req.Collection == "" && req.Item != 0 {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"item requires collection", nil)
		return
	}

	// 客户端断开不应中断已开始的发布
	report, err := s.service.RunAttempt(context.WithoutCancel(c.Request.Context()), poster.RunOptions{
		Collection: req.Collection,
		Ordinal:    req.Item,
	})
	if errors.Is(err, ErrBusy) {
		respondError(c, http.StatusConflict, "ATTEMPT_RUNNING", err.Error(), nil)
		return
	}
	if err != nil {
		c.Error(err)
		respondError(c, http.StatusInternalServerError, "RUN_FAILED", "执行发布尝试失败", err.Error())
		return
	}

	respondSuccess(c, report, string(report.Outcome))
}

// planHandler 预览分段计划
//
// HTTP API 端点：GET /api/v1/plan?duration=400
func (s *AppServer) planHandler(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST",
			"请求参数错误", err.Error())
		return
	}

	plan, err := s.service.Plan(req.Duration)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_DURATION", "无法计算分段", err.Error())
		return
	}

	respondSuccess(c, PlanResponse{Plan: plan, Count: plan.Count()}, "计算分段成功")
}
