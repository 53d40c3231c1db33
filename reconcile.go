package quadrant

import (
	"sync"

	"github.com/golang/glog"
)

type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
)

type ChangeFunction func()

type ConnectionStateFunction func(state ConnectionState)

type ReconcilerSettings struct {
	// events that arrive before the snapshot loads are buffered up to
	// this many entries and replayed in arrival order on load.
	// past the limit the oldest entry is evicted.
	PendingEventLimit int
}

func DefaultReconcilerSettings() *ReconcilerSettings {
	return &ReconcilerSettings{
		PendingEventLimit: 1024,
	}
}

// owns the canonical in-memory activity state for one view.
// the only mutation surface is LoadSnapshot and the apply operations;
// every apply is idempotent for repeats of itself and commutative with
// applies for unrelated entities, so cross-event ordering does not matter.
//
// all mutation is serialized behind one mutex. events arrive from the
// channel read loop, api callbacks from call goroutines; interleaving
// between them is fine because each apply is a complete transition.
type Reconciler struct {
	settings *ReconcilerSettings

	mutex           sync.Mutex
	activity        *Activity
	connectionState ConnectionState
	pending         []*Event
	closed          bool

	changeCallbacks *CallbackList[ChangeFunction]
	stateCallbacks  *CallbackList[ConnectionStateFunction]
	stateMonitor    *Monitor
}

func NewReconcilerWithDefaults() *Reconciler {
	return NewReconciler(DefaultReconcilerSettings())
}

func NewReconciler(settings *ReconcilerSettings) *Reconciler {
	return &Reconciler{
		settings:        settings,
		connectionState: ConnectionStateDisconnected,
		changeCallbacks: NewCallbackList[ChangeFunction](),
		stateCallbacks:  NewCallbackList[ConnectionStateFunction](),
		stateMonitor:    NewMonitor(),
	}
}

// replaces the current activity wholesale and replays any events that
// arrived before the snapshot. the one exception to wholesale replace is
// the completed status, which never reverts to active for the same
// activity (a re-sync racing a completion must not reopen the view).
func (self *Reconciler) LoadSnapshot(activity *Activity) {
	if activity == nil {
		return
	}

	self.mutex.Lock()
	if self.closed {
		self.mutex.Unlock()
		return
	}

	next := activity.Copy()
	if self.activity != nil &&
		self.activity.ActivityId == next.ActivityId &&
		self.activity.Completed() {
		next.Status = StatusCompleted
	}
	self.activity = next

	pending := self.pending
	self.pending = nil
	for _, event := range pending {
		self.applyLocked(event)
	}
	self.mutex.Unlock()

	if 0 < len(pending) {
		glog.V(2).Infof("[rc]replayed %d pending events\n", len(pending))
	}
	self.notifyChanged()
}

// applies one push event. before the snapshot loads the event is
// buffered; after Close it is dropped. never panics.
func (self *Reconciler) Apply(event *Event) {
	if event == nil {
		return
	}

	self.mutex.Lock()
	if self.closed {
		self.mutex.Unlock()
		return
	}
	if self.activity == nil {
		self.pending = append(self.pending, event)
		if self.settings.PendingEventLimit < len(self.pending) {
			self.pending = self.pending[1:]
		}
		self.mutex.Unlock()
		return
	}
	changed := self.applyLocked(event)
	self.mutex.Unlock()

	if changed {
		self.notifyChanged()
	}
}

func (self *Reconciler) ApplyRatingAdded(rating *Rating) {
	if rating == nil {
		return
	}
	self.Apply(&Event{
		Name:   EventRatingAdded,
		Rating: rating,
	})
}

func (self *Reconciler) ApplyCommentAdded(comment *Comment) {
	if comment == nil {
		return
	}
	self.Apply(&Event{
		Name:    EventCommentAdded,
		Comment: comment,
	})
}

func (self *Reconciler) ApplyCommentVoted(comment *Comment) {
	if comment == nil {
		return
	}
	self.Apply(&Event{
		Name:    EventCommentVoted,
		Comment: comment,
	})
}

func (self *Reconciler) ApplyParticipantJoined(participant *Participant) {
	if participant == nil {
		return
	}
	self.Apply(&Event{
		Name:        EventParticipantJoined,
		Participant: participant,
	})
}

func (self *Reconciler) ApplyParticipantLeft(participantId Id) {
	self.Apply(&Event{
		Name:          EventParticipantLeft,
		ParticipantId: participantId,
	})
}

func (self *Reconciler) applyLocked(event *Event) bool {
	switch event.Name {
	case EventRatingAdded:
		return self.ratingAddedLocked(event.Rating)
	case EventCommentAdded:
		return self.commentAddedLocked(event.Comment)
	case EventCommentVoted:
		return self.commentVotedLocked(event.Comment)
	case EventParticipantJoined:
		return self.participantJoinedLocked(event.Participant)
	case EventParticipantLeft:
		return self.participantLeftLocked(event.ParticipantId)
	default:
		glog.Infof("[rc]drop unknown event %s\n", event.Name)
		return false
	}
}

// remove any rating with the same user, append the new one
func (self *Reconciler) ratingAddedLocked(rating *Rating) bool {
	if rating == nil {
		return false
	}

	next := *rating
	out := self.activity.Ratings[:0:0]
	for _, existing := range self.activity.Ratings {
		if existing.UserId != rating.UserId {
			out = append(out, existing)
		}
	}
	self.activity.Ratings = append(out, &next)
	return true
}

// dedup in order of precedence:
// 1. same user and same text: the same logical comment arriving again
//    (optimistically shaped, or echoed with updated metadata). merge in
//    place so a confirmed comment never flickers out and back.
// 2. otherwise evict any comment by the same user and append.
func (self *Reconciler) commentAddedLocked(comment *Comment) bool {
	if comment == nil {
		return false
	}

	for i, existing := range self.activity.Comments {
		if existing.UserId == comment.UserId && existing.Text == comment.Text {
			self.activity.Comments[i] = mergeComment(existing, comment)
			return true
		}
	}

	next := *comment
	out := self.activity.Comments[:0:0]
	for _, existing := range self.activity.Comments {
		if existing.UserId != comment.UserId {
			out = append(out, existing)
		}
	}
	self.activity.Comments = append(out, &next)
	return true
}

// vote counts are server-authoritative. replace by comment id;
// an unknown id is dropped, the next snapshot re-sync will carry it.
func (self *Reconciler) commentVotedLocked(comment *Comment) bool {
	if comment == nil || comment.CommentId.IsZero() {
		return false
	}

	for i, existing := range self.activity.Comments {
		if existing.CommentId == comment.CommentId {
			self.activity.Comments[i] = mergeComment(existing, comment)
			return true
		}
	}
	glog.V(2).Infof("[rc]vote for unknown comment %s\n", comment.CommentId)
	return false
}

// upsert by user id
func (self *Reconciler) participantJoinedLocked(participant *Participant) bool {
	if participant == nil {
		return false
	}

	next := *participant
	for i, existing := range self.activity.Participants {
		if existing.UserId == participant.UserId {
			self.activity.Participants[i] = &next
			return true
		}
	}
	self.activity.Participants = append(self.activity.Participants, &next)
	return true
}

func (self *Reconciler) participantLeftLocked(participantId Id) bool {
	out := self.activity.Participants[:0:0]
	removed := false
	for _, existing := range self.activity.Participants {
		if existing.UserId == participantId {
			removed = true
		} else {
			out = append(out, existing)
		}
	}
	if removed {
		self.activity.Participants = out
	}
	return removed
}

// merge an incoming copy of a comment over the stored one.
// the incoming entity wins, except:
// - a zero incoming id keeps the locally known server id
// - a zero incoming timestamp keeps the known creation time
// - the vote count never decreases, which keeps comment_added and
//   comment_voted for the same comment commutative
func mergeComment(existing *Comment, incoming *Comment) *Comment {
	next := *incoming
	if next.CommentId.IsZero() {
		next.CommentId = existing.CommentId
	}
	if next.CreatedAt.IsZero() {
		next.CreatedAt = existing.CreatedAt
	}
	if next.VoteCount < existing.VoteCount {
		next.VoteCount = existing.VoteCount
	}
	return &next
}

// a consistent deep copy of the current state, or nil before the
// snapshot loads. callers own the copy.
func (self *Reconciler) CurrentActivity() *Activity {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if self.activity == nil {
		return nil
	}
	return self.activity.Copy()
}

func (self *Reconciler) ConnectionState() ConnectionState {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	return self.connectionState
}

func (self *Reconciler) SetConnectionState(state ConnectionState) {
	self.mutex.Lock()
	if self.closed || self.connectionState == state {
		self.mutex.Unlock()
		return
	}
	self.connectionState = state
	self.mutex.Unlock()

	for _, callback := range self.stateCallbacks.Get() {
		callback(state)
	}
	self.stateMonitor.NotifyAll()
}

func (self *Reconciler) AddChangeCallback(callback ChangeFunction) func() {
	return self.changeCallbacks.Add(callback)
}

func (self *Reconciler) AddConnectionStateCallback(callback ConnectionStateFunction) func() {
	return self.stateCallbacks.Add(callback)
}

// closed on the next state change
func (self *Reconciler) StateChannel() chan struct{} {
	return self.stateMonitor.NotifyChannel()
}

func (self *Reconciler) notifyChanged() {
	for _, callback := range self.changeCallbacks.Get() {
		callback()
	}
	self.stateMonitor.NotifyAll()
}

// after Close every apply and load is a permanent no-op.
// this is what makes stale responses after teardown harmless.
func (self *Reconciler) Close() {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.closed = true
	self.activity = nil
	self.pending = nil
}
