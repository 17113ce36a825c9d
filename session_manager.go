package main

import (
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// maxSessions 同时保留的 MCP 会话上限，超出后淘汰最早创建的
const maxSessions = 64

// SessionManager 管理MCP会话状态
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[string]*mcp.Server
	order     []string
	appServer *AppServer
}

// NewSessionManager 创建新的会话管理器
func NewSessionManager(appServer *AppServer) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*mcp.Server),
		appServer: appServer,
	}
}

// GetOrCreateSession 获取或创建会话
func (sm *SessionManager) GetOrCreateSession(sessionID string) *mcp.Server {
	sm.mu.RLock()
	server, exists := sm.sessions[sessionID]
	sm.mu.RUnlock()

	if exists {
		return server
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 再次检查，避免竞态条件
	if server, exists = sm.sessions[sessionID]; exists {
		return server
	}

	if len(sm.order) >= maxSessions {
		oldest := sm.order[0]
		sm.order = sm.order[1:]
		delete(sm.sessions, oldest)
	}

	server = InitMCPServer(sm.appServer)
	sm.sessions[sessionID] = server
	sm.order = append(sm.order, sessionID)

	return server
}

// Len 当前会话数量
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
