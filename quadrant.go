package quadrant

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// comparable
type Id [16]byte

func NewId() Id {
	return Id(ulid.Make())
}

func IdFromBytes(idBytes []byte) (Id, error) {
	if len(idBytes) != 16 {
		return Id{}, errors.New("Id must be 16 bytes")
	}
	return Id(idBytes), nil
}

func ParseId(idStr string) (Id, error) {
	return parseUuid(idStr)
}

func RequireId(idStr string) Id {
	id, err := ParseId(idStr)
	if err != nil {
		panic(err)
	}
	return id
}

func (self Id) IsZero() bool {
	return self == Id{}
}

func (self Id) Bytes() []byte {
	return self[0:16]
}

func (self Id) String() string {
	return encodeUuid(self)
}

func (self *Id) MarshalJSON() ([]byte, error) {
	var buf [16]byte
	copy(buf[0:16], self[0:16])
	var buff bytes.Buffer
	buff.WriteByte('"')
	buff.WriteString(encodeUuid(buf))
	buff.WriteByte('"')
	return buff.Bytes(), nil
}

func (self *Id) UnmarshalJSON(src []byte) error {
	if len(src) != 38 {
		return fmt.Errorf("invalid length for UUID: %v", len(src))
	}
	buf, err := parseUuid(string(src[1 : len(src)-1]))
	if err != nil {
		return err
	}
	*self = buf
	return nil
}

func parseUuid(src string) (dst [16]byte, err error) {
	switch len(src) {
	case 36:
		src = src[0:8] + src[9:13] + src[14:18] + src[19:23] + src[24:]
	case 32:
		// dashes already stripped, assume valid
	default:
		// assume invalid.
		return dst, fmt.Errorf("cannot parse UUID %v", src)
	}

	buf, err := hex.DecodeString(src)
	if err != nil {
		return dst, err
	}

	copy(dst[:], buf)
	return dst, err
}

func encodeUuid(src [16]byte) string {
	return fmt.Sprintf("%x-%x-%x-%x-%x", src[0:4], src[4:6], src[6:8], src[8:10], src[10:16])
}

type ActivityStatus string

const (
	StatusActive    ActivityStatus = "active"
	StatusCompleted ActivityStatus = "completed"
)

// axis-normalized coordinates, in [Axis.Min, Axis.Max]
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Axis struct {
	Label string  `json:"label"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type Participant struct {
	UserId   Id     `json:"user_id"`
	Username string `json:"username"`
}

// at most one rating per (activity, user). resubmission replaces.
type Rating struct {
	UserId   Id       `json:"user_id"`
	Position Position `json:"position"`
}

// at most one comment per (activity, user). resubmission replaces.
// CommentId is server-assigned and may be zero on an entry that has not
// been confirmed yet.
type Comment struct {
	CommentId Id        `json:"comment_id,omitempty"`
	UserId    Id        `json:"user_id"`
	Text      string    `json:"text"`
	VoteCount int       `json:"vote_count"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Activity struct {
	ActivityId      Id             `json:"activity_id"`
	UrlName         string         `json:"url_name,omitempty"`
	Title           string         `json:"title"`
	MapQuestion     string         `json:"map_question"`
	CommentQuestion string         `json:"comment_question"`
	XAxis           Axis           `json:"x_axis"`
	YAxis           Axis           `json:"y_axis"`
	Status          ActivityStatus `json:"status"`
	Participants    []*Participant `json:"participants"`
	Ratings         []*Rating      `json:"ratings"`
	Comments        []*Comment     `json:"comments"`
}

// deep copy. readers get one of these, never the reconciler's own value.
func (self *Activity) Copy() *Activity {
	out := *self
	out.Participants = make([]*Participant, len(self.Participants))
	for i, participant := range self.Participants {
		p := *participant
		out.Participants[i] = &p
	}
	out.Ratings = make([]*Rating, len(self.Ratings))
	for i, rating := range self.Ratings {
		r := *rating
		out.Ratings[i] = &r
	}
	out.Comments = make([]*Comment, len(self.Comments))
	for i, comment := range self.Comments {
		c := *comment
		out.Comments[i] = &c
	}
	return &out
}

func (self *Activity) Completed() bool {
	return self.Status == StatusCompleted
}
