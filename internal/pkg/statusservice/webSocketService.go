package statusservice

import (
	"strings"
	"sync"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// WsConn is interface for websocket handling in status service
type WsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	WriteJSON(v interface{}) error
}

// wsClient is one connection with its subscriptions, writes to a connection must not run in parallel
type wsClient struct {
	conn  WsConn
	ids   map[string]struct{}
	write sync.Mutex
}

// WSConnKeeper keeps project subscriptions of websocket connections
// one connection may follow several projects, a message lists project IDs separated by comma
type WSConnKeeper struct {
	byProject map[string]map[*wsClient]struct{}
	byConn    map[WsConn]*wsClient
	lock      sync.Mutex
	idleLimit time.Duration
}

// NewWSConnKeeper creates manager
func NewWSConnKeeper() *WSConnKeeper {
	return &WSConnKeeper{byProject: map[string]map[*wsClient]struct{}{},
		byConn: map[WsConn]*wsClient{}, idleLimit: 30 * time.Minute}
}

// HandleConnection reads subscriptions until the connection is closed or idle for too long
func (kp *WSConnKeeper) HandleConnection(conn WsConn) error {
	defer kp.drop(conn)
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	readCh := make(chan []string)
	go readIDs(conn, readCh, done)

	idle := time.NewTimer(kp.idleLimit)
	defer idle.Stop()
	for {
		select {
		case <-idle.C:
			goapp.Log.Debug().Msg("ws conn idle, closing")
			return nil
		case ids, ok := <-readCh:
			if !ok {
				return nil
			}
			kp.subscribe(conn, ids)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(kp.idleLimit)
		}
	}
}

// readIDs sends subscriptions of the connection until a read fails or done is closed
func readIDs(conn WsConn, readCh chan<- []string, done <-chan struct{}) {
	defer close(readCh)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			goapp.Log.Debug().Err(err).Msg("ws read")
			return
		}
		if ids := parseIDs(string(message)); len(ids) > 0 {
			select {
			case readCh <- ids:
			case <-done:
				return
			}
		}
	}
}

func parseIDs(msg string) []string {
	var res []string
	for _, s := range strings.Split(msg, ",") {
		if s = strings.TrimSpace(s); s != "" {
			res = append(res, s)
		}
	}
	return res
}

func (kp *WSConnKeeper) subscribe(conn WsConn, ids []string) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	cl, ok := kp.byConn[conn]
	if !ok {
		cl = &wsClient{conn: conn, ids: map[string]struct{}{}}
		kp.byConn[conn] = cl
	}
	for _, id := range ids {
		goapp.Log.Info().Str("ID", goapp.Sanitize(id)).Msg("subscribe")
		cl.ids[id] = struct{}{}
		cls, ok := kp.byProject[id]
		if !ok {
			cls = map[*wsClient]struct{}{}
			kp.byProject[id] = cls
		}
		cls[cl] = struct{}{}
	}
	goapp.Log.Debug().Int("conns", len(kp.byConn)).Int("projects", len(kp.byProject)).Msg("subscriptions")
}

func (kp *WSConnKeeper) drop(conn WsConn) {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	cl, ok := kp.byConn[conn]
	if !ok {
		return
	}
	for id := range cl.ids {
		cls := kp.byProject[id]
		delete(cls, cl)
		if len(cls) == 0 {
			delete(kp.byProject, id)
		}
	}
	delete(kp.byConn, conn)
	goapp.Log.Debug().Int("conns", len(kp.byConn)).Msg("ws conn dropped")
}

// Subscribed returns true if anyone follows the project
func (kp *WSConnKeeper) Subscribed(id string) bool {
	return kp.Count(id) > 0
}

// Count returns the number of connections following the project
func (kp *WSConnKeeper) Count(id string) int {
	kp.lock.Lock()
	defer kp.lock.Unlock()
	return len(kp.byProject[id])
}

// Push writes v to every subscriber of the project and returns how many got it.
// A connection that fails the write is closed, its reader then drops it.
func (kp *WSConnKeeper) Push(id string, v interface{}) int {
	kp.lock.Lock()
	cls := make([]*wsClient, 0, len(kp.byProject[id]))
	for cl := range kp.byProject[id] {
		cls = append(cls, cl)
	}
	kp.lock.Unlock()

	res := 0
	for _, cl := range cls {
		cl.write.Lock()
		err := cl.conn.WriteJSON(v)
		cl.write.Unlock()
		if err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Msg("ws write, closing")
			_ = cl.conn.Close()
			continue
		}
		res++
	}
	return res
}
