package quadrant

import (
	"golang.org/x/exp/maps"
)

// projections are pure reads over an activity snapshot plus local ui
// selection state. they never mutate the reconciler's state.

type ActivityStats struct {
	ParticipantCount int
	RatingCount      int
	CommentCount     int
	// componentwise arithmetic mean over all ratings.
	// nil when there are no ratings.
	MeanPosition *Position
}

func Stats(activity *Activity) *ActivityStats {
	stats := &ActivityStats{}
	if activity == nil {
		return stats
	}

	stats.ParticipantCount = len(activity.Participants)
	stats.RatingCount = len(activity.Ratings)
	stats.CommentCount = len(activity.Comments)

	if 0 < len(activity.Ratings) {
		mean := &Position{}
		for _, rating := range activity.Ratings {
			mean.X += rating.Position.X
			mean.Y += rating.Position.Y
		}
		mean.X /= float64(len(activity.Ratings))
		mean.Y /= float64(len(activity.Ratings))
		stats.MeanPosition = mean
	}
	return stats
}

// mutating affordances are disabled once the activity completes
func CanSubmit(activity *Activity) bool {
	return activity != nil && !activity.Completed()
}

// user-keyed index over one activity snapshot.
// a spatial marker (rating) and a textual entry (comment) are linked when
// they share a user id; the index resolves either direction, and comments
// by server id, in constant time.
type UserIndex struct {
	participants map[Id]*Participant
	ratings      map[Id]*Rating
	comments     map[Id]*Comment
	commentsById map[Id]*Comment
}

func NewUserIndex(activity *Activity) *UserIndex {
	index := &UserIndex{
		participants: map[Id]*Participant{},
		ratings:      map[Id]*Rating{},
		comments:     map[Id]*Comment{},
		commentsById: map[Id]*Comment{},
	}
	if activity == nil {
		return index
	}

	for _, participant := range activity.Participants {
		index.participants[participant.UserId] = participant
	}
	for _, rating := range activity.Ratings {
		index.ratings[rating.UserId] = rating
	}
	for _, comment := range activity.Comments {
		index.comments[comment.UserId] = comment
		if !comment.CommentId.IsZero() {
			index.commentsById[comment.CommentId] = comment
		}
	}
	return index
}

func (self *UserIndex) ParticipantForUser(userId Id) *Participant {
	return self.participants[userId]
}

func (self *UserIndex) RatingForUser(userId Id) *Rating {
	return self.ratings[userId]
}

func (self *UserIndex) CommentForUser(userId Id) *Comment {
	return self.comments[userId]
}

func (self *UserIndex) CommentById(commentId Id) *Comment {
	return self.commentsById[commentId]
}

func (self *UserIndex) HasRating(userId Id) bool {
	_, ok := self.ratings[userId]
	return ok
}

func (self *UserIndex) HasComment(userId Id) bool {
	_, ok := self.comments[userId]
	return ok
}

func (self *UserIndex) UserIds() []Id {
	return maps.Keys(self.participants)
}

// the subset of comments currently rendered by the list view.
// marker interactions test visibility here before trying to open or
// highlight a textual entry that is not on screen.
type CommentWindow struct {
	order   []Id
	visible map[Id]bool
}

// window of up to limit comments starting at offset, in snapshot order.
// comments the server has not assigned an id yet are not addressable and
// are excluded from the visible set.
func NewCommentWindow(activity *Activity, offset int, limit int) *CommentWindow {
	window := &CommentWindow{
		visible: map[Id]bool{},
	}
	if activity == nil || limit <= 0 {
		return window
	}

	if offset < 0 {
		offset = 0
	}
	if len(activity.Comments) <= offset {
		return window
	}
	end := offset + limit
	if len(activity.Comments) < end {
		end = len(activity.Comments)
	}

	for _, comment := range activity.Comments[offset:end] {
		if comment.CommentId.IsZero() {
			continue
		}
		window.order = append(window.order, comment.CommentId)
		window.visible[comment.CommentId] = true
	}
	return window
}

func (self *CommentWindow) Visible(commentId Id) bool {
	return self.visible[commentId]
}

// rendered comment ids in render order
func (self *CommentWindow) VisibleIds() []Id {
	return self.order
}

func (self *CommentWindow) Len() int {
	return len(self.order)
}
