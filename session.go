package quadrant

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

// one participant viewing one activity.
// acquires the push channel on start and guarantees release on Close;
// the reconciler it owns is the only mutation path for view state.
//
// local actions are fire-and-forget: they do not touch state on
// submission. the authoritative update arrives as the push channel echo,
// which eliminates optimistic-update conflicts at the cost of a little
// latency before the user sees their own action.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	api        *ActivityApi
	channel    *PushChannel
	identity   *Identity
	reconciler *Reconciler

	activityId Id

	stateMutex    sync.Mutex
	everConnected bool

	removeStateCallback func()
	closeOnce           sync.Once
}

// joins the activity, connects the push channel, then loads the
// snapshot. events that arrive between connect and snapshot load are
// buffered by the reconciler and replayed.
//
// a join or channel failure degrades the session rather than failing it;
// only a snapshot load failure is returned, so the caller can offer a
// retry.
func StartSession(
	ctx context.Context,
	api *ActivityApi,
	channel *PushChannel,
	identity *Identity,
	activityId Id,
) (*Session, error) {
	cancelCtx, cancel := context.WithCancel(ctx)

	session := &Session{
		ctx:        cancelCtx,
		cancel:     cancel,
		api:        api,
		channel:    channel,
		identity:   identity,
		reconciler: NewReconcilerWithDefaults(),
		activityId: activityId,
	}

	if err := api.JoinActivitySync(activityId, &JoinActivityArgs{
		UserId:   identity.UserId,
		Username: identity.Username,
	}); err != nil {
		glog.Infof("[s]join error = %s\n", err)
	}

	for _, name := range []EventName{
		EventRatingAdded,
		EventCommentAdded,
		EventCommentVoted,
		EventParticipantJoined,
		EventParticipantLeft,
	} {
		channel.On(name, session.reconciler.Apply)
	}
	session.removeStateCallback = channel.AddConnectionStateCallback(session.connectionStateChanged)

	if err := channel.Connect(activityId, identity.UserId, identity.Username); err != nil {
		// degraded mode: the snapshot below still gives a consistent view
		glog.Infof("[s]channel error = %s\n", err)
	}

	activity, err := api.GetActivitySync(activityId)
	if err != nil {
		session.Close()
		return nil, err
	}
	session.reconciler.LoadSnapshot(activity)

	return session, nil
}

func (self *Session) Reconciler() *Reconciler {
	return self.reconciler
}

func (self *Session) Identity() *Identity {
	return self.identity
}

func (self *Session) connectionStateChanged(state ConnectionState) {
	self.reconciler.SetConnectionState(state)

	if state != ConnectionStateConnected {
		return
	}

	self.stateMutex.Lock()
	first := !self.everConnected
	self.everConnected = true
	self.stateMutex.Unlock()

	if !first {
		// the client may have missed events during the reconnect gap.
		// re-fetch the snapshot to bound staleness.
		go self.resync()
	}
}

func (self *Session) resync() {
	activity, err := self.api.GetActivitySync(self.activityId)
	if err != nil {
		glog.Infof("[s]resync error = %s\n", err)
		return
	}
	self.reconciler.LoadSnapshot(activity)
	glog.V(2).Infof("[s]resynced %s\n", self.activityId)
}

func (self *Session) SubmitRating(position Position) {
	self.api.SubmitRating(self.activityId, &SubmitRatingArgs{
		UserId:   self.identity.UserId,
		Position: position,
	}, NewApiCallback(func(result *Rating, err error) {
		if err != nil {
			glog.Infof("[s]submit rating error = %s\n", err)
		}
	}))
}

func (self *Session) SubmitComment(text string) {
	self.api.SubmitComment(self.activityId, &SubmitCommentArgs{
		UserId: self.identity.UserId,
		Text:   text,
	}, NewApiCallback(func(result *Comment, err error) {
		if err != nil {
			glog.Infof("[s]submit comment error = %s\n", err)
		}
	}))
}

func (self *Session) SubmitVote(commentId Id) {
	self.api.VoteComment(self.activityId, commentId, &VoteCommentArgs{
		UserId: self.identity.UserId,
	}, NewApiCallback(func(result *Comment, err error) {
		if err != nil {
			glog.Infof("[s]vote error = %s\n", err)
		}
	}))
}

// releases the channel and tears down the core on every path.
// applies against the closed core are no-ops, so a stale response
// arriving after Close is harmless.
func (self *Session) Close() {
	self.closeOnce.Do(func() {
		for _, name := range []EventName{
			EventRatingAdded,
			EventCommentAdded,
			EventCommentVoted,
			EventParticipantJoined,
			EventParticipantLeft,
		} {
			self.channel.Off(name)
		}
		if self.removeStateCallback != nil {
			self.removeStateCallback()
		}
		self.channel.Disconnect()
		self.reconciler.Close()
		self.cancel()
	})
}
