// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.


package rest

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Pending log messages per client. Messages beyond this are dropped for that client only
const logBacklog = 256

// Maximum time for sending one message to a client before it is disconnected
const logWriteTimeout = 5 * time.Second

// A websocket client of the log stream with its own queue of pending messages
type logClient struct {
	conn  *websocket.Conn
	queue chan []byte
}

// Fans log output out to all connected websocket clients. Each client is served by its own
// goroutines, which exit when the client disconnects. A hub without clients runs no goroutines
type logHub struct {
	mu        sync.Mutex
	clients   map[*logClient]bool
	upgrader  websocket.Upgrader
}

func newLogHub() *logHub {
	return &logHub{
		clients  : make(map[*logClient]bool),
		upgrader : websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Queues p for all clients. Never blocks, and never fails
func (h *logHub) Write(p []byte) (n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.clients)==0 { return len(p), nil }
	msg:=make([]byte, len(p))
	copy(msg, p)
	for client:=range h.clients {
		select {
		case client.queue<-msg:
		default:
		}
	}
	return len(p), nil
}

func (h *logHub) add(client *logClient) {
	h.mu.Lock()
	h.clients[client]=true
	h.mu.Unlock()
}

// Removes the client and closes its queue. Safe to call more than once
func (h *logHub) remove(client *logClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] { return }
	delete(h.clients, client)
	close(client.queue)
}

// Sends queued messages until the queue is closed or a write fails
func (h *logHub) send(client *logClient) {
	defer client.conn.Close()
	for msg:=range client.queue {
		client.conn.SetWriteDeadline(time.Now().Add(logWriteTimeout))
		if err:=client.conn.WriteMessage(websocket.TextMessage, msg); err!=nil {
			h.remove(client)
			return
		}
	}
}

// Upgrades the request to a websocket which receives the server log until the client disconnects
func (h *logHub) getLog(c *gin.Context) {
	conn, err:=h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err!=nil { return }  // the upgrader has replied with an error status
	client:=&logClient{conn: conn, queue: make(chan []byte, logBacklog)}
	h.add(client)
	go h.send(client)
	go func() {
		defer h.remove(client)
		for {
			if _, _, err:=conn.ReadMessage(); err!=nil { return }
		}
	}()
}
