// Command nyxd watches a kernel-state snapshot file and streams each new
// snapshot to connected websocket clients as JSON, a debug aid for
// observing ring/endpoint/capability counts from outside the process.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Daemoniorum-LLC/nyx-os-sub004/internal/snapshot"
)

const writeTimeout = 5 * time.Second

var (
	listenAddr = flag.String("listen", ":8642", "HTTP listen address for the /ws endpoint")
	snapPath   = flag.String("snapshot", "", "Path to a kernel-state snapshot file to watch")
	interval   = flag.Duration("interval", time.Second, "Snapshot poll interval")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans the latest decoded snapshot out to every connected client.
type hub struct {
	mtx     sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *hub) add(c *websocket.Conn) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.clients[c] = struct{}{}
}

func (h *hub) remove(c *websocket.Conn) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	delete(h.clients, c)
	c.Close()
}

func (h *hub) broadcast(v interface{}) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteJSON(v); err != nil {
			delete(h.clients, c)
			c.Close()
		}
	}
}

type snapshotMessage struct {
	ID      string         `json:"id"`
	TakenAt time.Time      `json:"taken_at"`
	Objects map[string]int `json:"objects"` // key -> generation, for a compact wire shape
}

func toMessage(s snapshot.Snapshot) snapshotMessage {
	msg := snapshotMessage{ID: s.ID.String(), TakenAt: s.TakenAt, Objects: make(map[string]int, len(s.Objects))}
	for id, obj := range s.Objects {
		msg.Objects[fmt.Sprintf("%v", id)] = int(obj.Generation)
	}
	return msg
}

func main() {
	flag.Parse()
	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "usage: nyxd -snapshot <file>")
		os.Exit(1)
	}

	h := newHub()

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.add(conn)
		defer h.remove(conn)
		// The connection is push-only; drain and discard anything the
		// client sends so its read buffer never blocks a clean close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	go watch(h)

	fmt.Fprintf(os.Stderr, "nyxd listening on %s, watching %s\n", *listenAddr, *snapPath)
	if err := http.ListenAndServe(*listenAddr, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watch(h *hub) {
	var lastID string
	for {
		data, err := os.ReadFile(*snapPath)
		if err == nil {
			if snap, err := snapshot.Decode(data); err == nil && snap.ID.String() != lastID {
				lastID = snap.ID.String()
				h.broadcast(toMessage(snap))
			}
		}
		time.Sleep(*interval)
	}
}
