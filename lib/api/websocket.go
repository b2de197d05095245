package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(req *http.Request) bool {
		return true
	},
}

// PushInterval is how often stats are pushed to websocket clients.
var PushInterval = 2 * time.Second

// @Summary	Open websocket for realtime status information
// @Router		/api/ws [get]
// @Param		Upgrade	header	string	true	"websocket"
// @Tags		base
// @Success	101
func (a *Api) handleWebsocket(w http.ResponseWriter, req *http.Request) {
	ws, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Warn(fmt.Sprintf("couldn't make websocket: %s", err))
		return
	}
	defer func(ws *websocket.Conn) {
		err := ws.Close()
		if err != nil {
			a.log.Debug(fmt.Sprintf("could not close websocket: %s", err))
		}
	}(ws)

	a.wsLock.Lock()
	a.wsClients[ws] = true
	a.Stats.SetWsClients(len(a.wsClients))
	a.wsLock.Unlock()

	done := make(chan struct{})
	go a.websocketWriter(ws, done)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			break
		}
		a.log.Debug(fmt.Sprintf("received: %s", msg))
	}
	close(done)

	a.wsLock.Lock()
	delete(a.wsClients, ws)
	a.Stats.SetWsClients(len(a.wsClients))
	a.wsLock.Unlock()
}

func (a *Api) websocketWriter(ws *websocket.Conn, done <-chan struct{}) {
	pingTicker := time.NewTicker(PushInterval)
	defer pingTicker.Stop()

	timeout := 10 * time.Second
	push := func() bool {
		packet, err := json.Marshal(a.Stats.Snapshot())
		if err != nil {
			return false
		}
		err = ws.SetWriteDeadline(time.Now().Add(timeout))
		if err != nil {
			a.log.Debug(fmt.Sprintf("could not set write deadline: %s", err))
			return false
		}
		return ws.WriteMessage(websocket.TextMessage, packet) == nil
	}

	if !push() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-pingTicker.C:
			if !push() {
				return
			}
		}
	}
}
