package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"sessions-portal/core/notify"
	"sessions-portal/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AssetStatusWSHandler streams status changes of one asset. The current status
// is sent right away; the socket closes after a READY or FAILED event.
func (h *APIHandler) AssetStatusWSHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}

	// 先订阅再读状态，避免漏掉中间的事件
	events, cancel := h.hub.Subscribe(id)
	defer cancel()

	asset, err := h.assetRepo.GetByID(r.Context(), id)
	if err != nil {
		logger.Error("get video asset failed", logger.Uint("assetId", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if asset == nil {
		writeError(w, http.StatusNotFound, "Not found.")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	defer conn.Close()

	send := func(ev notify.StatusEvent) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(ev); err != nil {
			logger.Debug("websocket write failed", logger.Uint("assetId", id), logger.ErrorField(err))
			return false
		}
		return true
	}
	closeNormal := func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsWriteWait))
	}

	current := notify.StatusEvent{AssetID: asset.ID, Status: asset.Status, Error: asset.LastError, At: asset.UpdatedAt}
	if !send(current) {
		return
	}
	if asset.Status.IsFinal() {
		closeNormal()
		return
	}

	// 客户端断开时 ReadMessage 返回错误
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !send(ev) {
				return
			}
			if ev.Status.IsFinal() {
				closeNormal()
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
