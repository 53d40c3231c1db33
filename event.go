package quadrant

import (
	"encoding/json"
	"fmt"
)

type EventName string

const (
	EventRatingAdded       EventName = "rating_added"
	EventCommentAdded      EventName = "comment_added"
	EventCommentVoted      EventName = "comment_voted"
	EventParticipantJoined EventName = "participant_joined"
	EventParticipantLeft   EventName = "participant_left"
)

// wire frame for the push channel. events always carry the full updated
// entity, never a partial delta, so the core can apply a pure upsert.
type eventFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type participantRef struct {
	UserId Id `json:"user_id"`
}

// closed variant over the five push event kinds.
// exactly one entity field is set, selected by Name.
type Event struct {
	Name          EventName
	Rating        *Rating
	Comment       *Comment
	Participant   *Participant
	ParticipantId Id
}

func DecodeEvent(message []byte) (*Event, error) {
	var frame eventFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		return nil, err
	}

	event := &Event{
		Name: frame.Event,
	}
	switch frame.Event {
	case EventRatingAdded:
		rating := &Rating{}
		if err := json.Unmarshal(frame.Data, rating); err != nil {
			return nil, err
		}
		event.Rating = rating
	case EventCommentAdded, EventCommentVoted:
		comment := &Comment{}
		if err := json.Unmarshal(frame.Data, comment); err != nil {
			return nil, err
		}
		event.Comment = comment
	case EventParticipantJoined:
		participant := &Participant{}
		if err := json.Unmarshal(frame.Data, participant); err != nil {
			return nil, err
		}
		event.Participant = participant
	case EventParticipantLeft:
		ref := &participantRef{}
		if err := json.Unmarshal(frame.Data, ref); err != nil {
			return nil, err
		}
		event.ParticipantId = ref.UserId
	default:
		return nil, fmt.Errorf("unknown event %s", frame.Event)
	}
	return event, nil
}

func EncodeEvent(event *Event) ([]byte, error) {
	var data any
	switch event.Name {
	case EventRatingAdded:
		data = event.Rating
	case EventCommentAdded, EventCommentVoted:
		data = event.Comment
	case EventParticipantJoined:
		data = event.Participant
	case EventParticipantLeft:
		data = &participantRef{UserId: event.ParticipantId}
	default:
		return nil, fmt.Errorf("unknown event %s", event.Name)
	}

	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&eventFrame{
		Event: event.Name,
		Data:  dataBytes,
	})
}
