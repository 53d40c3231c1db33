package quadrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

type ChannelSettings struct {
	WsHandshakeTimeout    time.Duration
	SubscribeTimeout      time.Duration
	ReconnectTimeout      time.Duration
	ReconnectAttemptLimit int
	PingTimeout           time.Duration
	WriteTimeout          time.Duration
	ReadTimeout           time.Duration
}

func DefaultChannelSettings() *ChannelSettings {
	return &ChannelSettings{
		WsHandshakeTimeout:    2 * time.Second,
		SubscribeTimeout:      2 * time.Second,
		ReconnectTimeout:      1 * time.Second,
		ReconnectAttemptLimit: 5,
		PingTimeout:           1 * time.Second,
		WriteTimeout:          5 * time.Second,
		ReadTimeout:           15 * time.Second,
	}
}

type EventFunction func(event *Event)

// the subscribe frame sent after dial. the server echoes it verbatim to
// confirm the subscription; anything else fails the connect.
type subscribeFrame struct {
	ActivityId Id     `json:"activity_id"`
	UserId     Id     `json:"user_id"`
	Username   string `json:"username"`
}

// one logical subscription per (activity, participant).
// delivers named events to at most one handler per event name, in read
// order. on transport loss it reconnects with jittered growing backoff up
// to a bounded attempt count, then surfaces the disconnected state.
type PushChannel struct {
	ctx    context.Context
	cancel context.CancelFunc

	wsUrl    string
	settings *ChannelSettings

	mutex     sync.Mutex
	handlers  map[EventName]EventFunction
	state     ConnectionState
	connected bool

	stateCallbacks *CallbackList[ConnectionStateFunction]
}

func NewPushChannelWithDefaults(ctx context.Context, wsUrl string) *PushChannel {
	return NewPushChannel(ctx, wsUrl, DefaultChannelSettings())
}

func NewPushChannel(ctx context.Context, wsUrl string, settings *ChannelSettings) *PushChannel {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &PushChannel{
		ctx:            cancelCtx,
		cancel:         cancel,
		wsUrl:          wsUrl,
		settings:       settings,
		handlers:       map[EventName]EventFunction{},
		state:          ConnectionStateDisconnected,
		stateCallbacks: NewCallbackList[ConnectionStateFunction](),
	}
}

// exactly one active handler per event name. re-registering replaces.
func (self *PushChannel) On(name EventName, handler EventFunction) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.handlers[name] = handler
}

func (self *PushChannel) Off(name EventName) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	delete(self.handlers, name)
}

func (self *PushChannel) AddConnectionStateCallback(callback ConnectionStateFunction) func() {
	return self.stateCallbacks.Add(callback)
}

func (self *PushChannel) ConnectionState() ConnectionState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.state
}

// establishes the subscription. a failure here is non-fatal for the
// caller: the view keeps working from the snapshot in a degraded mode.
func (self *PushChannel) Connect(activityId Id, userId Id, username string) error {
	self.mutex.Lock()
	if self.connected {
		self.mutex.Unlock()
		return &ConnectionError{
			Op:  "connect",
			Err: fmt.Errorf("already connected"),
		}
	}
	self.connected = true
	self.mutex.Unlock()

	sub := &subscribeFrame{
		ActivityId: activityId,
		UserId:     userId,
		Username:   username,
	}

	self.setState(ConnectionStateConnecting)
	ws, err := self.dial(sub)
	if err != nil {
		self.mutex.Lock()
		self.connected = false
		self.mutex.Unlock()
		self.setState(ConnectionStateDisconnected)
		return &ConnectionError{
			Op:  "connect",
			Err: err,
		}
	}
	self.setState(ConnectionStateConnected)

	go self.run(ws, sub)
	return nil
}

func (self *PushChannel) dial(sub *subscribeFrame) (*websocket.Conn, error) {
	subBytes, err := json.Marshal(sub)
	if err != nil {
		return nil, err
	}

	dialer := &websocket.Dialer{
		HandshakeTimeout: self.settings.WsHandshakeTimeout,
	}
	ws, _, err := dialer.DialContext(self.ctx, self.wsUrl, nil)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			ws.Close()
		}
	}()

	ws.SetWriteDeadline(time.Now().Add(self.settings.SubscribeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, subBytes); err != nil {
		return nil, err
	}
	ws.SetReadDeadline(time.Now().Add(self.settings.SubscribeTimeout))
	if messageType, message, err := ws.ReadMessage(); err != nil {
		return nil, err
	} else {
		// verify the subscribe echo
		switch messageType {
		case websocket.TextMessage:
			if !bytes.Equal(subBytes, message) {
				return nil, fmt.Errorf("subscribe response error: bad bytes")
			}
		default:
			return nil, fmt.Errorf("subscribe response error")
		}
	}

	success = true
	return ws, nil
}

func (self *PushChannel) run(ws *websocket.Conn, sub *subscribeFrame) {
	defer func() {
		self.mutex.Lock()
		self.connected = false
		self.mutex.Unlock()
		self.setState(ConnectionStateDisconnected)
	}()

	for {
		self.handle(ws)

		select {
		case <-self.ctx.Done():
			return
		default:
		}

		// the transport dropped. reconnect with growing backoff.
		// already-delivered events are not re-fired; the session
		// re-fetches the snapshot to cover the gap.
		var next *websocket.Conn
		for attempt := 0; attempt < self.settings.ReconnectAttemptLimit; attempt += 1 {
			self.setState(ConnectionStateConnecting)
			reconnect := NewReconnect(self.settings.ReconnectTimeout * time.Duration(attempt+1))
			select {
			case <-self.ctx.Done():
				return
			case <-reconnect.After():
			}

			ws, err := self.dial(sub)
			if err == nil {
				next = ws
				break
			}
			glog.Infof("[ch]reconnect %s attempt %d = %s\n", sub.UserId, attempt+1, err)
		}
		if next == nil {
			glog.Infof("[ch]reconnect %s gave up\n", sub.UserId)
			return
		}
		ws = next
		self.setState(ConnectionStateConnected)
	}
}

// reads and dispatches until the transport drops or the channel closes
func (self *PushChannel) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	// unblock the read loop when the channel closes
	go func() {
		<-handleCtx.Done()
		ws.Close()
	}()

	go func() {
		defer handleCancel()

		for {
			select {
			case <-handleCtx.Done():
				return
			case <-time.After(self.settings.PingTimeout):
				ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
				if err := ws.WriteMessage(websocket.TextMessage, make([]byte, 0)); err != nil {
					// a websocket deadline timeout cannot be recovered
					return
				}
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			glog.V(2).Infof("[ch]read error = %s\n", err)
			return
		}

		switch messageType {
		case websocket.TextMessage:
			if 0 == len(message) {
				// ping
				continue
			}
			event, err := DecodeEvent(message)
			if err != nil {
				glog.Infof("[ch]drop bad event = %s\n", err)
				continue
			}
			self.dispatch(event)
		default:
			glog.V(2).Infof("[ch]other message type %d\n", messageType)
		}
	}
}

// events for one name are dispatched in read order: the read loop is the
// only dispatcher
func (self *PushChannel) dispatch(event *Event) {
	self.mutex.Lock()
	handler := self.handlers[event.Name]
	self.mutex.Unlock()

	if handler == nil {
		glog.V(2).Infof("[ch]no handler for %s\n", event.Name)
		return
	}
	handler(event)
}

func (self *PushChannel) setState(state ConnectionState) {
	self.mutex.Lock()
	if self.state == state {
		self.mutex.Unlock()
		return
	}
	self.state = state
	self.mutex.Unlock()

	for _, callback := range self.stateCallbacks.Get() {
		callback(state)
	}
}

// releases the channel. safe to call multiple times.
func (self *PushChannel) Disconnect() {
	self.cancel()
}
