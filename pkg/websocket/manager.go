package websocket

import (
	"sync"
)

// Manager 管理本进程所有的WebSocket会话
// 同一成员可以有多个会话（多个标签页/设备）

type Manager struct {
	clients map[string]*Client // 会话ID -> 连接
	lock    sync.RWMutex
	wg      sync.WaitGroup
}

// NewManager 创建会话管理器
func NewManager() *Manager {
	return &Manager{clients: make(map[string]*Client)}
}

// AddClient 添加新连接
func (m *Manager) AddClient(client *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.clients[client.ID] = client
	m.wg.Add(1)
}

// RemoveClient 移除连接
func (m *Manager) RemoveClient(client *Client) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		m.wg.Done()
	}
}

// SendToMember 推送帧给成员的所有会话
func (m *Manager) SendToMember(memberID string, frame Frame) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, c := range m.clients {
		if c.MemberID == memberID {
			c.Send(frame)
		}
	}
}

// IsOnline 成员在本进程是否有会话
func (m *Manager) IsOnline(memberID string) bool {
	m.lock.RLock()
	defer m.lock.RUnlock()
	for _, c := range m.clients {
		if c.MemberID == memberID {
			return true
		}
	}
	return false
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.clients)
}

// CloseAll 关闭所有会话并等待它们完成清理（退出在线频道等）
func (m *Manager) CloseAll() {
	m.lock.RLock()
	clients := make([]*Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.lock.RUnlock()

	for _, c := range clients {
		c.Close()
	}
	m.wg.Wait()
}
