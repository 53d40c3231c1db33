package quadrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const defaultHttpTimeout = 60 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient() *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultHttpTimeout,
	}
}

type apiCallback[R any] interface {
	Result(result R, err error)
}

// for internal use
type simpleApiCallback[R any] struct {
	callback func(result R, err error)
}

func NewApiCallback[R any](callback func(result R, err error)) apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: callback,
	}
}

func NewNoopApiCallback[R any]() apiCallback[R] {
	return &simpleApiCallback[R]{
		callback: func(result R, err error) {},
	}
}

func (self *simpleApiCallback[R]) Result(result R, err error) {
	self.callback(result, err)
}

type ApiCallbackResult[R any] struct {
	Result R
	Error  error
}

func NewBlockingApiCallback[R any]() (apiCallback[R], chan ApiCallbackResult[R]) {
	c := make(chan ApiCallbackResult[R])
	apiCallback := NewApiCallback[R](func(result R, err error) {
		c <- ApiCallbackResult[R]{
			Result: result,
			Error:  err,
		}
	})
	return apiCallback, c
}

// every response is wrapped as {success, data?, error?}
type apiEnvelope[R any] struct {
	Success bool   `json:"success"`
	Data    R      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// request/response client for the activity api.
// mutating calls are fire-and-forget from the view's perspective: the
// authoritative update arrives via the push channel, not the return value.
type ActivityApi struct {
	ctx    context.Context
	cancel context.CancelFunc

	apiUrl string
}

func NewActivityApi(apiUrl string) *ActivityApi {
	return NewActivityApiWithContext(context.Background(), apiUrl)
}

func NewActivityApiWithContext(ctx context.Context, apiUrl string) *ActivityApi {
	cancelCtx, cancel := context.WithCancel(ctx)

	return &ActivityApi{
		ctx:    cancelCtx,
		cancel: cancel,
		apiUrl: strings.TrimSuffix(apiUrl, "/"),
	}
}

type GetActivityCallback apiCallback[*Activity]

func (self *ActivityApi) GetActivity(activityId Id, callback GetActivityCallback) {
	go request(
		self.ctx,
		"get activity",
		"GET",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		nil,
		callback,
	)
}

func (self *ActivityApi) GetActivitySync(activityId Id) (*Activity, error) {
	return request(
		self.ctx,
		"get activity",
		"GET",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		nil,
		NewNoopApiCallback[*Activity](),
	)
}

func (self *ActivityApi) GetActivityByUrlName(urlName string, callback GetActivityCallback) {
	go request(
		self.ctx,
		"get activity by url name",
		"GET",
		fmt.Sprintf("%s/api/activities/by-url/%s", self.apiUrl, urlName),
		nil,
		callback,
	)
}

func (self *ActivityApi) GetActivityByUrlNameSync(urlName string) (*Activity, error) {
	return request(
		self.ctx,
		"get activity by url name",
		"GET",
		fmt.Sprintf("%s/api/activities/by-url/%s", self.apiUrl, urlName),
		nil,
		NewNoopApiCallback[*Activity](),
	)
}

type ListActivitiesCallback apiCallback[[]*Activity]

func (self *ActivityApi) ListActivities(callback ListActivitiesCallback) {
	go request(
		self.ctx,
		"list activities",
		"GET",
		fmt.Sprintf("%s/api/activities", self.apiUrl),
		nil,
		callback,
	)
}

func (self *ActivityApi) ListActivitiesSync() ([]*Activity, error) {
	return request(
		self.ctx,
		"list activities",
		"GET",
		fmt.Sprintf("%s/api/activities", self.apiUrl),
		nil,
		NewNoopApiCallback[[]*Activity](),
	)
}

type CreateActivityCallback apiCallback[*Activity]

type CreateActivityArgs struct {
	Title           string `json:"title"`
	UrlName         string `json:"url_name,omitempty"`
	MapQuestion     string `json:"map_question"`
	CommentQuestion string `json:"comment_question"`
	XAxis           Axis   `json:"x_axis"`
	YAxis           Axis   `json:"y_axis"`
}

func (self *ActivityApi) CreateActivity(createActivity *CreateActivityArgs, callback CreateActivityCallback) {
	go request(
		self.ctx,
		"create activity",
		"POST",
		fmt.Sprintf("%s/api/activities", self.apiUrl),
		createActivity,
		callback,
	)
}

func (self *ActivityApi) CreateActivitySync(createActivity *CreateActivityArgs) (*Activity, error) {
	return request(
		self.ctx,
		"create activity",
		"POST",
		fmt.Sprintf("%s/api/activities", self.apiUrl),
		createActivity,
		NewNoopApiCallback[*Activity](),
	)
}

type UpdateActivityCallback apiCallback[*Activity]

// partial update. nil fields are left unchanged.
type UpdateActivityArgs struct {
	Title           *string         `json:"title,omitempty"`
	MapQuestion     *string         `json:"map_question,omitempty"`
	CommentQuestion *string         `json:"comment_question,omitempty"`
	Status          *ActivityStatus `json:"status,omitempty"`
}

func (self *ActivityApi) UpdateActivity(activityId Id, updateActivity *UpdateActivityArgs, callback UpdateActivityCallback) {
	go request(
		self.ctx,
		"update activity",
		"PATCH",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		updateActivity,
		callback,
	)
}

func (self *ActivityApi) UpdateActivitySync(activityId Id, updateActivity *UpdateActivityArgs) (*Activity, error) {
	return request(
		self.ctx,
		"update activity",
		"PATCH",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		updateActivity,
		NewNoopApiCallback[*Activity](),
	)
}

// status transitions only active -> completed
func (self *ActivityApi) CompleteActivitySync(activityId Id) (*Activity, error) {
	status := StatusCompleted
	return self.UpdateActivitySync(activityId, &UpdateActivityArgs{
		Status: &status,
	})
}

type DeleteActivityCallback apiCallback[*struct{}]

func (self *ActivityApi) DeleteActivity(activityId Id, callback DeleteActivityCallback) {
	go request(
		self.ctx,
		"delete activity",
		"DELETE",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		nil,
		callback,
	)
}

func (self *ActivityApi) DeleteActivitySync(activityId Id) error {
	_, err := request(
		self.ctx,
		"delete activity",
		"DELETE",
		fmt.Sprintf("%s/api/activities/%s", self.apiUrl, activityId),
		nil,
		NewNoopApiCallback[*struct{}](),
	)
	return err
}

type SubmitRatingCallback apiCallback[*Rating]

type SubmitRatingArgs struct {
	UserId   Id       `json:"user_id"`
	Position Position `json:"position"`
}

func (self *ActivityApi) SubmitRating(activityId Id, submitRating *SubmitRatingArgs, callback SubmitRatingCallback) {
	go request(
		self.ctx,
		"submit rating",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/rating", self.apiUrl, activityId),
		submitRating,
		callback,
	)
}

func (self *ActivityApi) SubmitRatingSync(activityId Id, submitRating *SubmitRatingArgs) (*Rating, error) {
	return request(
		self.ctx,
		"submit rating",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/rating", self.apiUrl, activityId),
		submitRating,
		NewNoopApiCallback[*Rating](),
	)
}

type SubmitCommentCallback apiCallback[*Comment]

type SubmitCommentArgs struct {
	UserId Id     `json:"user_id"`
	Text   string `json:"text"`
}

func (self *ActivityApi) SubmitComment(activityId Id, submitComment *SubmitCommentArgs, callback SubmitCommentCallback) {
	go request(
		self.ctx,
		"submit comment",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/comment", self.apiUrl, activityId),
		submitComment,
		callback,
	)
}

func (self *ActivityApi) SubmitCommentSync(activityId Id, submitComment *SubmitCommentArgs) (*Comment, error) {
	return request(
		self.ctx,
		"submit comment",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/comment", self.apiUrl, activityId),
		submitComment,
		NewNoopApiCallback[*Comment](),
	)
}

type VoteCommentCallback apiCallback[*Comment]

type VoteCommentArgs struct {
	UserId Id `json:"user_id"`
}

func (self *ActivityApi) VoteComment(activityId Id, commentId Id, voteComment *VoteCommentArgs, callback VoteCommentCallback) {
	go request(
		self.ctx,
		"vote comment",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/comment/%s/vote", self.apiUrl, activityId, commentId),
		voteComment,
		callback,
	)
}

func (self *ActivityApi) VoteCommentSync(activityId Id, commentId Id, voteComment *VoteCommentArgs) (*Comment, error) {
	return request(
		self.ctx,
		"vote comment",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/comment/%s/vote", self.apiUrl, activityId, commentId),
		voteComment,
		NewNoopApiCallback[*Comment](),
	)
}

type JoinActivityCallback apiCallback[*struct{}]

type JoinActivityArgs struct {
	UserId   Id     `json:"user_id"`
	Username string `json:"username"`
}

func (self *ActivityApi) JoinActivity(activityId Id, joinActivity *JoinActivityArgs, callback JoinActivityCallback) {
	go request(
		self.ctx,
		"join activity",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/participants", self.apiUrl, activityId),
		joinActivity,
		callback,
	)
}

func (self *ActivityApi) JoinActivitySync(activityId Id, joinActivity *JoinActivityArgs) error {
	_, err := request(
		self.ctx,
		"join activity",
		"POST",
		fmt.Sprintf("%s/api/activities/%s/participants", self.apiUrl, activityId),
		joinActivity,
		NewNoopApiCallback[*struct{}](),
	)
	return err
}

func request[R any](ctx context.Context, op string, method string, url string, args any, callback apiCallback[R]) (R, error) {
	var empty R

	var requestBodyBytes []byte
	if args == nil {
		requestBodyBytes = make([]byte, 0)
	} else {
		var err error
		requestBodyBytes, err = json.Marshal(args)
		if err != nil {
			callback.Result(empty, err)
			return empty, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		callback.Result(empty, err)
		return empty, err
	}

	req.Header.Add("Content-Type", "application/json")

	client := defaultClient()
	r, err := client.Do(req)
	if err != nil {
		err = &NetworkError{
			Op:  op,
			Err: err,
		}
		callback.Result(empty, err)
		return empty, err
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		err = &NetworkError{
			Op:  op,
			Err: err,
		}
		callback.Result(empty, err)
		return empty, err
	}

	var envelope apiEnvelope[R]
	message := ""
	if jsonErr := json.Unmarshal(responseBodyBytes, &envelope); jsonErr == nil {
		message = envelope.Error
	}
	if message == "" {
		message = strings.TrimSpace(string(responseBodyBytes))
	}

	if r.StatusCode == http.StatusNotFound {
		err = &NotFoundError{
			Op:  op,
			Ref: url,
		}
		callback.Result(empty, err)
		return empty, err
	}
	if r.StatusCode < 200 || 300 <= r.StatusCode || !envelope.Success {
		err = &ValidationError{
			Op:      op,
			Message: message,
		}
		callback.Result(empty, err)
		return empty, err
	}

	callback.Result(envelope.Data, nil)
	return envelope.Data, nil
}
