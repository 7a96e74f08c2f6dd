// Copyright 2024 Nordeck IT + Consulting GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// WebSocketPort is a Port over a websocket connection, for hosts that bridge
// the widget API out of the browser. Every frame is one text message.
type WebSocketPort struct {
	conn *websocket.Conn
}

// NewWebSocketPort wraps an established websocket connection.
func NewWebSocketPort(conn *websocket.Conn) *WebSocketPort {
	return &WebSocketPort{conn: conn}
}

// DialWebSocket connects to a host listening on url.
func DialWebSocket(ctx context.Context, url string, header http.Header) (*WebSocketPort, error) {
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	return NewWebSocketPort(conn), nil
}

// AcceptWebSocket upgrades an HTTP request to a websocket port.
func AcceptWebSocket(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) (*WebSocketPort, error) {
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		return nil, err
	}
	return NewWebSocketPort(conn), nil
}

func (p *WebSocketPort) Send(ctx context.Context, frame []byte) error {
	return p.translate(p.conn.Write(ctx, websocket.MessageText, frame))
}

func (p *WebSocketPort) Receive(ctx context.Context) ([]byte, error) {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			return nil, p.translate(err)
		}
		if typ == websocket.MessageText {
			return data, nil
		}
	}
}

func (p *WebSocketPort) Close() error {
	return p.conn.Close(websocket.StatusNormalClosure, "")
}

// translate reports a regular close by the peer as ErrClosed.
func (p *WebSocketPort) translate(err error) error {
	if err == nil {
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	return err
}
