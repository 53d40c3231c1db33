package quadrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/gorilla/websocket"
)

// an in-memory activity backend: the http surface plus the push
// endpoint, echoing every accepted mutation to all subscribers
type sessionTestServer struct {
	server *httptest.Server

	mutex    sync.Mutex
	activity *Activity
	conns    []*websocket.Conn
	joins    []*JoinActivityArgs

	failSnapshots bool
}

func newSessionTestServer() *sessionTestServer {
	self := &sessionTestServer{
		activity: testActivity(),
	}

	upgrader := websocket.Upgrader{}
	self.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/events" {
			ws, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			_, message, err := ws.ReadMessage()
			if err != nil {
				ws.Close()
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, message); err != nil {
				ws.Close()
				return
			}
			self.mutex.Lock()
			self.conns = append(self.conns, ws)
			self.mutex.Unlock()
			go func() {
				for {
					if _, _, err := ws.ReadMessage(); err != nil {
						return
					}
				}
			}()
			return
		}

		self.mutex.Lock()
		defer self.mutex.Unlock()

		base := "/api/activities/" + self.activity.ActivityId.String()
		switch {
		case r.Method == "GET" && r.URL.Path == base:
			if self.failSnapshots {
				writeEnvelope[*Activity](w, http.StatusInternalServerError, nil, "backend down")
				return
			}
			writeEnvelope(w, http.StatusOK, self.activity.Copy(), "")
		case r.Method == "POST" && r.URL.Path == base+"/participants":
			args := &JoinActivityArgs{}
			json.NewDecoder(r.Body).Decode(args)
			self.joins = append(self.joins, args)
			participant := &Participant{UserId: args.UserId, Username: args.Username}
			self.activity.Participants = append(self.activity.Participants, participant)
			self.broadcastLocked(&Event{Name: EventParticipantJoined, Participant: participant})
			writeEnvelope[*struct{}](w, http.StatusOK, nil, "")
		case r.Method == "POST" && r.URL.Path == base+"/rating":
			args := &SubmitRatingArgs{}
			json.NewDecoder(r.Body).Decode(args)
			rating := &Rating{UserId: args.UserId, Position: args.Position}
			self.activity.Ratings = append(self.activity.Ratings, rating)
			self.broadcastLocked(&Event{Name: EventRatingAdded, Rating: rating})
			writeEnvelope(w, http.StatusOK, rating, "")
		case r.Method == "POST" && r.URL.Path == base+"/comment":
			args := &SubmitCommentArgs{}
			json.NewDecoder(r.Body).Decode(args)
			comment := &Comment{
				CommentId: NewId(),
				UserId:    args.UserId,
				Text:      args.Text,
				CreatedAt: time.Now(),
			}
			self.activity.Comments = append(self.activity.Comments, comment)
			self.broadcastLocked(&Event{Name: EventCommentAdded, Comment: comment})
			writeEnvelope(w, http.StatusOK, comment, "")
		case r.Method == "POST" && strings.HasSuffix(r.URL.Path, "/vote"):
			for _, comment := range self.activity.Comments {
				if strings.Contains(r.URL.Path, comment.CommentId.String()) {
					comment.VoteCount += 1
					self.broadcastLocked(&Event{Name: EventCommentVoted, Comment: comment})
					writeEnvelope(w, http.StatusOK, comment, "")
					return
				}
			}
			writeEnvelope[*Comment](w, http.StatusNotFound, nil, "comment not found")
		default:
			writeEnvelope[*struct{}](w, http.StatusNotFound, nil, "not found")
		}
	}))
	return self
}

func (self *sessionTestServer) broadcastLocked(event *Event) {
	message, err := EncodeEvent(event)
	if err != nil {
		return
	}
	for _, ws := range self.conns {
		ws.WriteMessage(websocket.TextMessage, message)
	}
}

func (self *sessionTestServer) dropConns() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	for _, ws := range self.conns {
		ws.Close()
	}
	self.conns = nil
}

func (self *sessionTestServer) wsUrl() string {
	return "ws" + strings.TrimPrefix(self.server.URL, "http") + "/events"
}

func (self *sessionTestServer) close() {
	self.dropConns()
	self.server.Close()
}

func waitFor(t *testing.T, reconciler *Reconciler, predicate func(activity *Activity) bool) *Activity {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		activity := reconciler.CurrentActivity()
		if activity != nil && predicate(activity) {
			return activity
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timeout waiting for state")
	return nil
}

func TestSessionLiveUpdates(t *testing.T) {
	server := newSessionTestServer()
	defer server.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := NewIdentity()
	api := NewActivityApiWithContext(ctx, server.server.URL)
	channel := NewPushChannel(ctx, server.wsUrl(), testChannelSettings())

	session, err := StartSession(ctx, api, channel, identity, server.activity.ActivityId)
	assert.Equal(t, err, nil)
	defer session.Close()

	reconciler := session.Reconciler()
	assert.NotEqual(t, reconciler.CurrentActivity(), nil)

	server.mutex.Lock()
	assert.Equal(t, 1, len(server.joins))
	assert.Equal(t, identity.UserId, server.joins[0].UserId)
	server.mutex.Unlock()

	// no optimistic update: the state change arrives as the echo
	session.SubmitRating(Position{X: 2, Y: 3})
	activity := waitFor(t, reconciler, func(activity *Activity) bool {
		return 0 < len(activity.Ratings)
	})
	assert.Equal(t, identity.UserId, activity.Ratings[0].UserId)
	assert.Equal(t, 2.0, activity.Ratings[0].Position.X)

	session.SubmitComment("needs better coffee")
	activity = waitFor(t, reconciler, func(activity *Activity) bool {
		return 0 < len(activity.Comments)
	})
	assert.Equal(t, "needs better coffee", activity.Comments[0].Text)
	assert.NotEqual(t, activity.Comments[0].CommentId, Id{})

	session.SubmitVote(activity.Comments[0].CommentId)
	activity = waitFor(t, reconciler, func(activity *Activity) bool {
		return activity.Comments[0].VoteCount == 1
	})

	// the projections see the reconciled state
	index := NewUserIndex(activity)
	comment := index.CommentForUser(identity.UserId)
	assert.NotEqual(t, comment, nil)
	assert.Equal(t, 1, comment.VoteCount)
}

func TestSessionResyncAfterReconnect(t *testing.T) {
	server := newSessionTestServer()
	defer server.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := NewIdentity()
	api := NewActivityApiWithContext(ctx, server.server.URL)
	channel := NewPushChannel(ctx, server.wsUrl(), testChannelSettings())

	session, err := StartSession(ctx, api, channel, identity, server.activity.ActivityId)
	assert.Equal(t, err, nil)
	defer session.Close()

	waitFor(t, session.Reconciler(), func(activity *Activity) bool {
		return true
	})

	// a mutation happens while the transport is down. the reconnect
	// re-fetches the snapshot, so the gap does not go stale.
	missedId := NewId()
	server.mutex.Lock()
	server.activity.Comments = append(server.activity.Comments, &Comment{
		CommentId: missedId,
		UserId:    NewId(),
		Text:      "missed while away",
		CreatedAt: time.Now(),
	})
	server.mutex.Unlock()
	server.dropConns()

	activity := waitFor(t, session.Reconciler(), func(activity *Activity) bool {
		return 0 < len(activity.Comments)
	})
	assert.Equal(t, missedId, activity.Comments[0].CommentId)
}

func TestSessionSnapshotFailure(t *testing.T) {
	server := newSessionTestServer()
	defer server.close()
	server.mutex.Lock()
	server.failSnapshots = true
	server.mutex.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := NewIdentity()
	api := NewActivityApiWithContext(ctx, server.server.URL)
	channel := NewPushChannel(ctx, server.wsUrl(), testChannelSettings())

	// the initial snapshot is the one failure the caller sees,
	// so the view can offer a retry
	_, err := StartSession(ctx, api, channel, identity, server.activity.ActivityId)
	assert.NotEqual(t, err, nil)
}

func TestSessionCloseTearsDown(t *testing.T) {
	server := newSessionTestServer()
	defer server.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := NewIdentity()
	api := NewActivityApiWithContext(ctx, server.server.URL)
	channel := NewPushChannel(ctx, server.wsUrl(), testChannelSettings())

	session, err := StartSession(ctx, api, channel, identity, server.activity.ActivityId)
	assert.Equal(t, err, nil)

	session.Close()
	// safe twice
	session.Close()

	assert.Equal(t, session.Reconciler().CurrentActivity(), nil)

	// a late event against the torn-down session is a no-op
	server.mutex.Lock()
	server.broadcastLocked(&Event{
		Name:        EventParticipantJoined,
		Participant: &Participant{UserId: NewId(), Username: "late"},
	})
	server.mutex.Unlock()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, session.Reconciler().CurrentActivity(), nil)
}
