package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Conn - адресат рассылки. Send не должен блокироваться надолго.
type Conn interface {
	Send(payload []byte) error
}

// Closer реализуют соединения, которые можно закрыть при остановке сервера
type Closer interface {
	Close(code int, reason string)
}

type Entry struct {
	UserID uuid.UUID
	Conn   Conn
}

type groupConns struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Conn
	// dead выставляется, когда группа опустела и уходит из индекса
	dead bool
}

// Registry - живые соединения по группам, не более одного на пользователя.
// Глобальная блокировка защищает только индекс групп и берется на запись
// лишь при создании и удалении группы. Соединения меняются под блокировкой
// своей группы. Если обе нужны одновременно, сначала registry, затем группа.
type Registry struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]*groupConns
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[uuid.UUID]*groupConns)}
}

// Register добавляет соединение. Предыдущее соединение пользователя в группе
// вытесняется, но не закрывается.
func (r *Registry) Register(groupID, userID uuid.UUID, conn Conn) {
	for {
		g := r.group(groupID, true)
		g.mu.Lock()
		if g.dead {
			// группу как раз убирают из индекса, берем новую
			g.mu.Unlock()
			continue
		}
		g.conns[userID] = conn
		g.mu.Unlock()
		return
	}
}

// Unregister удаляет соединение пользователя. Отсутствующая запись не ошибка.
func (r *Registry) Unregister(groupID, userID uuid.UUID) {
	r.remove(groupID, userID, nil)
}

// Remove удаляет запись, только если она все еще указывает на conn.
// Так закрывающееся старое соединение не снимет своего преемника.
func (r *Registry) Remove(groupID, userID uuid.UUID, conn Conn) bool {
	return r.remove(groupID, userID, conn)
}

func (r *Registry) remove(groupID, userID uuid.UUID, conn Conn) bool {
	g := r.group(groupID, false)
	if g == nil {
		return false
	}

	g.mu.Lock()
	current, ok := g.conns[userID]
	if !ok || (conn != nil && current != conn) {
		g.mu.Unlock()
		return false
	}
	delete(g.conns, userID)
	empty := len(g.conns) == 0 && !g.dead
	if empty {
		g.dead = true
	}
	g.mu.Unlock()

	if empty {
		r.mu.Lock()
		if r.groups[groupID] == g {
			delete(r.groups, groupID)
		}
		r.mu.Unlock()
	}
	return true
}

// group возвращает запись группы, при create создает недостающую
func (r *Registry) group(groupID uuid.UUID, create bool) *groupConns {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	r.mu.RUnlock()
	if ok || !create {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[groupID]; !ok {
		g = &groupConns{conns: make(map[uuid.UUID]Conn)}
		r.groups[groupID] = g
	}
	return g
}

// Snapshot - копия соединений группы на момент вызова
func (r *Registry) Snapshot(groupID uuid.UUID) []Entry {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.RUnlock()
		return nil
	}
	g.mu.RLock()
	r.mu.RUnlock()
	defer g.mu.RUnlock()

	entries := make([]Entry, 0, len(g.conns))
	for userID, conn := range g.conns {
		entries = append(entries, Entry{UserID: userID, Conn: conn})
	}
	return entries
}

func (r *Registry) Lookup(groupID, userID uuid.UUID) (Conn, bool) {
	r.mu.RLock()
	g, ok := r.groups[groupID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	g.mu.RLock()
	r.mu.RUnlock()
	defer g.mu.RUnlock()

	conn, ok := g.conns[userID]
	return conn, ok
}

func (r *Registry) Groups() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Count - общее число соединений
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, g := range r.groups {
		g.mu.RLock()
		total += len(g.conns)
		g.mu.RUnlock()
	}
	return total
}

// CloseAll закрывает все соединения, поддерживающие Closer, и очищает реестр
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	groups := r.groups
	r.groups = make(map[uuid.UUID]*groupConns)
	r.mu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		g.dead = true
		for _, conn := range g.conns {
			if c, ok := conn.(Closer); ok {
				c.Close(code, reason)
			}
		}
		g.mu.Unlock()
	}
}
