package api

import (
	"log"
	"net/http"
	"time"

	"demand-trend/internal/history"
	"demand-trend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 16
)

// Event is pushed to websocket subscribers.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// BatchEvent describes a freshly stored upload batch.
type BatchEvent struct {
	UploadID     string `json:"upload_id"`
	BatchID      string `json:"batch_id"`
	NominalDate  string `json:"nominal_date"`
	Source       string `json:"source"`
	Variant      string `json:"variant"`
	RowsStored   int    `json:"rows_stored"`
	RowsExcluded int    `json:"rows_excluded"`
}

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans ingestion events out to websocket clients. The client set is
// owned by the Run goroutine.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Event
	done       chan struct{}
	upgrader   websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves the hub until Close is called.
func (h *Hub) Run() {
	clients := make(map[*client]struct{})
	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
			}
		case ev := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- ev:
				default:
					// slow reader
					delete(clients, c)
					close(c.send)
				}
			}
		case <-h.done:
			for c := range clients {
				close(c.send)
			}
			return
		}
	}
}

// Close stops Run and disconnects every client.
func (h *Hub) Close() { close(h.done) }

// Publish queues an event; it drops the event if the hub is backed up.
func (h *Hub) Publish(ev Event) {
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("⚠️  event hub busy, dropped %s event", ev.Type)
	}
}

// BatchIngested lets the hub receive notifications from the demand service.
func (h *Hub) BatchIngested(u models.UploadBatch) {
	h.Publish(Event{Type: "batch_ingested", Data: BatchEvent{
		UploadID:     u.UploadID,
		BatchID:      history.FormatBatchID(u.BatchID),
		NominalDate:  u.NominalDate.UTC().Format(models.DateLayout),
		Source:       u.SourceName,
		Variant:      u.Variant,
		RowsStored:   u.RowsStored,
		RowsExcluded: u.RowsExcluded,
	}})
}

// Serve upgrades the request and streams events until the peer goes away.
func (h *Hub) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	cl := &client{conn: conn, send: make(chan Event, sendBuffer)}
	select {
	case h.register <- cl:
	case <-h.done:
		conn.Close()
		return
	}
	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer func() {
		select {
		case h.unregister <- cl:
		case <-h.done:
		}
		cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()
	for {
		select {
		case ev, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
