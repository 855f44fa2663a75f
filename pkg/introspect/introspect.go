/*
 * Copyright 2022 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package introspect streams the accounting graph's state-machine
// transitions (Observed/Latched/Resolved/Failed) to attached debug
// clients over a websocket, supplementing spec.md §6's "tooling can
// scan... to recover call-site identity" with a live feed rather than
// only post-mortem memory scanning. Built on
// github.com/gorilla/websocket, grounded on launix-de-memcp's own use
// of the same library for its REPL's websocket endpoint.
package introspect

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/cloudwego/drti/pkg/accounting"
	"github.com/cloudwego/drti/pkg/klog"
)

// Event is one treenode state transition, serialized as JSON to every
// attached client.
type Event struct {
	Time       time.Time `json:"time"`
	State      string    `json:"state"`
	ABIVersion int32     `json:"abi_version"`
	ChainCalls int64     `json:"chain_calls"`
}

// Server fans out accounting.Inspector notifications to every attached
// websocket client. Create one with NewServer: the zero value has no
// client set, and ServeHTTP on it panics when registering a client.
type Server struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// NewServer builds a Server ready to be registered with
// accounting.SetInspector and mounted as an http.Handler.
func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

// Inspect satisfies accounting.Inspector. It must not block: events are
// handed to each client's buffered channel, and a client too slow to
// drain its buffer is dropped rather than stalling the caller.
func (s *Server) Inspect(node *accounting.Treenode) {
	ev := Event{
		Time:       time.Now(),
		State:      node.State().String(),
		ABIVersion: node.ABIVersion,
		ChainCalls: node.ChainCalls.Load(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- ev:
		default:
			klog.Warnf("drti: introspect: client send buffer full, dropping")
		}
	}
}

// ServeHTTP upgrades the connection to a websocket and streams Events
// to it until the client disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		klog.Errorf("drti: introspect: upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan Event, 64)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
	}()

	go s.drainIncoming(conn)

	for ev := range c.send {
		data, err := json.Marshal(ev)
		if err != nil {
			klog.Errorf("drti: introspect: marshal event: %v", err)
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// drainIncoming discards anything the client sends; this is a
// one-directional feed, but ReadMessage must still be called so
// gorilla/websocket processes control frames (ping/close) and notices
// disconnects.
func (s *Server) drainIncoming(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
