package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"github.com/joho/godotenv"

	"quadrantlive.com/quadrant"
)

const QuadrantCtlVersion = "0.0.1"

const DefaultApiUrl = "http://localhost:8080"
const DefaultWsUrl = "ws://localhost:8080/events"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := `Quadrant control.

Reads QUADRANT_API_URL and QUADRANT_WS_URL from the environment or a
.env file in the working directory. Flags override.

Usage:
    quadrantctl list [--api_url=<api_url>]
    quadrantctl create [--api_url=<api_url>]
        --title=<title>
        --map_question=<question>
        --comment_question=<question>
        [--x_axis=<label,min,max>]
        [--y_axis=<label,min,max>]
    quadrantctl complete [--api_url=<api_url>] <activity_id>
    quadrantctl delete [--api_url=<api_url>] <activity_id>
    quadrantctl rate [--api_url=<api_url>] <activity_id> --x=<x> --y=<y>
    quadrantctl comment [--api_url=<api_url>] <activity_id> <text>
    quadrantctl watch [--api_url=<api_url>] [--ws_url=<ws_url>]
        [--url_name=<url_name>]
        [--name=<display_name>]
        [--token=<token>]
        [<activity_id>]

Options:
    -h --help                  Show this screen.
    --version                  Show version.
    --api_url=<api_url>
    --ws_url=<ws_url>
    --title=<title>
    --map_question=<question>
    --comment_question=<question>
    --x_axis=<label,min,max>   X axis as label,min,max [default: x,0,10]
    --y_axis=<label,min,max>   Y axis as label,min,max [default: y,0,10]
    --x=<x>                    X position.
    --y=<y>                    Y position.
    --url_name=<url_name>      Look the activity up by its short name.
    --name=<display_name>      Display name to join with.
    --token=<token>            Participant token from an embedding page.`

	godotenv.Load()

	opts, err := docopt.ParseArgs(usage, os.Args[1:], QuadrantCtlVersion)
	if err != nil {
		panic(err)
	}

	if list_, _ := opts.Bool("list"); list_ {
		list(opts)
	} else if create_, _ := opts.Bool("create"); create_ {
		create(opts)
	} else if complete_, _ := opts.Bool("complete"); complete_ {
		complete(opts)
	} else if delete_, _ := opts.Bool("delete"); delete_ {
		deleteActivity(opts)
	} else if rate_, _ := opts.Bool("rate"); rate_ {
		rate(opts)
	} else if comment_, _ := opts.Bool("comment"); comment_ {
		comment(opts)
	} else if watch_, _ := opts.Bool("watch"); watch_ {
		watch(opts)
	}
}

func apiUrl(opts docopt.Opts) string {
	if url, err := opts.String("--api_url"); err == nil && url != "" {
		return url
	}
	if url := os.Getenv("QUADRANT_API_URL"); url != "" {
		return url
	}
	return DefaultApiUrl
}

func wsUrl(opts docopt.Opts) string {
	if url, err := opts.String("--ws_url"); err == nil && url != "" {
		return url
	}
	if url := os.Getenv("QUADRANT_WS_URL"); url != "" {
		return url
	}
	return DefaultWsUrl
}

func requireActivityId(opts docopt.Opts) quadrant.Id {
	activityIdStr, _ := opts.String("<activity_id>")
	activityId, err := quadrant.ParseId(activityIdStr)
	if err != nil {
		Err.Fatalf("Invalid activity_id (%s).", err)
	}
	return activityId
}

func parseAxis(value string) (quadrant.Axis, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 3 {
		return quadrant.Axis{}, fmt.Errorf("axis must be label,min,max")
	}
	min, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return quadrant.Axis{}, err
	}
	max, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return quadrant.Axis{}, err
	}
	return quadrant.Axis{
		Label: parts[0],
		Min:   min,
		Max:   max,
	}, nil
}

func list(opts docopt.Opts) {
	api := quadrant.NewActivityApi(apiUrl(opts))

	activities, err := api.ListActivitiesSync()
	if err != nil {
		Err.Fatalf("List failed (%s).", err)
	}

	for _, activity := range activities {
		stats := quadrant.Stats(activity)
		Out.Printf(
			"%s  %-24s  %-9s  %d participants, %d ratings, %d comments",
			activity.ActivityId,
			activity.Title,
			activity.Status,
			stats.ParticipantCount,
			stats.RatingCount,
			stats.CommentCount,
		)
	}
}

func create(opts docopt.Opts) {
	title, _ := opts.String("--title")
	mapQuestion, _ := opts.String("--map_question")
	commentQuestion, _ := opts.String("--comment_question")

	xAxisStr, _ := opts.String("--x_axis")
	xAxis, err := parseAxis(xAxisStr)
	if err != nil {
		Err.Fatalf("Invalid x_axis (%s).", err)
	}
	yAxisStr, _ := opts.String("--y_axis")
	yAxis, err := parseAxis(yAxisStr)
	if err != nil {
		Err.Fatalf("Invalid y_axis (%s).", err)
	}

	api := quadrant.NewActivityApi(apiUrl(opts))

	activity, err := api.CreateActivitySync(&quadrant.CreateActivityArgs{
		Title:           title,
		MapQuestion:     mapQuestion,
		CommentQuestion: commentQuestion,
		XAxis:           xAxis,
		YAxis:           yAxis,
	})
	if err != nil {
		Err.Fatalf("Create failed (%s).", err)
	}

	Out.Printf("%s", activity.ActivityId)
}

func complete(opts docopt.Opts) {
	api := quadrant.NewActivityApi(apiUrl(opts))

	activity, err := api.CompleteActivitySync(requireActivityId(opts))
	if err != nil {
		Err.Fatalf("Complete failed (%s).", err)
	}
	Out.Printf("%s %s", activity.ActivityId, activity.Status)
}

func deleteActivity(opts docopt.Opts) {
	api := quadrant.NewActivityApi(apiUrl(opts))

	if err := api.DeleteActivitySync(requireActivityId(opts)); err != nil {
		Err.Fatalf("Delete failed (%s).", err)
	}
}

func loadIdentity(opts docopt.Opts) *quadrant.Identity {
	if token, err := opts.String("--token"); err == nil && token != "" {
		identity, err := quadrant.ParseParticipantTokenUnverified(token)
		if err != nil {
			Err.Fatalf("Invalid token (%s).", err)
		}
		return identity
	}

	path, err := quadrant.DefaultIdentityPath()
	if err != nil {
		Err.Fatalf("No identity path (%s).", err)
	}
	identity, err := quadrant.LoadOrCreateIdentity(path)
	if err != nil {
		Err.Fatalf("No identity (%s).", err)
	}

	if name, err := opts.String("--name"); err == nil && name != "" {
		identity.Username = name
		identity.Save(path)
	}
	return identity
}

func rate(opts docopt.Opts) {
	xStr, _ := opts.String("--x")
	x, err := strconv.ParseFloat(xStr, 64)
	if err != nil {
		Err.Fatalf("Invalid x (%s).", err)
	}
	yStr, _ := opts.String("--y")
	y, err := strconv.ParseFloat(yStr, 64)
	if err != nil {
		Err.Fatalf("Invalid y (%s).", err)
	}

	identity := loadIdentity(opts)
	api := quadrant.NewActivityApi(apiUrl(opts))

	rating, err := api.SubmitRatingSync(requireActivityId(opts), &quadrant.SubmitRatingArgs{
		UserId:   identity.UserId,
		Position: quadrant.Position{X: x, Y: y},
	})
	if err != nil {
		Err.Fatalf("Rate failed (%s).", err)
	}
	Out.Printf("rated (%.2f, %.2f)", rating.Position.X, rating.Position.Y)
}

func comment(opts docopt.Opts) {
	text, _ := opts.String("<text>")

	identity := loadIdentity(opts)
	api := quadrant.NewActivityApi(apiUrl(opts))

	result, err := api.SubmitCommentSync(requireActivityId(opts), &quadrant.SubmitCommentArgs{
		UserId: identity.UserId,
		Text:   text,
	})
	if err != nil {
		Err.Fatalf("Comment failed (%s).", err)
	}
	Out.Printf("%s", result.CommentId)
}

func watch(opts docopt.Opts) {
	cancelCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	identity := loadIdentity(opts)
	api := quadrant.NewActivityApiWithContext(cancelCtx, apiUrl(opts))

	var activityId quadrant.Id
	if urlName, err := opts.String("--url_name"); err == nil && urlName != "" {
		activity, err := api.GetActivityByUrlNameSync(urlName)
		if err != nil {
			Err.Fatalf("Lookup failed (%s).", err)
		}
		activityId = activity.ActivityId
	} else {
		activityId = requireActivityId(opts)
	}

	channel := quadrant.NewPushChannelWithDefaults(cancelCtx, wsUrl(opts))

	session, err := quadrant.StartSession(cancelCtx, api, channel, identity, activityId)
	if err != nil {
		Err.Fatalf("Could not load activity (%s).", err)
	}
	defer session.Close()

	render := make(chan struct{}, 1)
	notify := func() {
		select {
		case render <- struct{}{}:
		default:
		}
	}
	removeChange := session.Reconciler().AddChangeCallback(notify)
	defer removeChange()
	removeState := session.Reconciler().AddConnectionStateCallback(func(state quadrant.ConnectionState) {
		notify()
	})
	defer removeState()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	notify()
	for {
		select {
		case <-sig:
			return
		case <-render:
			renderActivity(session)
		}
	}
}

func renderActivity(session *quadrant.Session) {
	activity := session.Reconciler().CurrentActivity()
	if activity == nil {
		return
	}

	width := 48
	if term.IsTerminal(int(syscall.Stdout)) {
		if w, _, err := term.GetSize(int(syscall.Stdout)); err == nil && 20 < w {
			width = w - 8
			if 72 < width {
				width = 72
			}
		}
	}
	height := width / 4

	stats := quadrant.Stats(activity)
	index := quadrant.NewUserIndex(activity)

	Out.Printf("")
	Out.Printf("%s [%s] (%s)", activity.Title, activity.Status, session.Reconciler().ConnectionState())
	Out.Printf("%s", activity.MapQuestion)

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = '.'
		}
	}
	for _, rating := range activity.Ratings {
		col := cell(rating.Position.X, activity.XAxis, width)
		// y grows upward on the map
		row := height - 1 - cell(rating.Position.Y, activity.YAxis, height)
		marker := 'o'
		if rating.UserId == session.Identity().UserId {
			marker = '@'
		}
		grid[row][col] = marker
	}
	if stats.MeanPosition != nil {
		col := cell(stats.MeanPosition.X, activity.XAxis, width)
		row := height - 1 - cell(stats.MeanPosition.Y, activity.YAxis, height)
		grid[row][col] = '+'
	}
	for _, line := range grid {
		Out.Printf("  %s", string(line))
	}
	Out.Printf("  x: %s, y: %s", activity.XAxis.Label, activity.YAxis.Label)

	Out.Printf(
		"%d participants, %d ratings, %d comments",
		stats.ParticipantCount,
		stats.RatingCount,
		stats.CommentCount,
	)

	Out.Printf("%s", activity.CommentQuestion)
	for _, comment := range activity.Comments {
		username := comment.UserId.String()
		if participant := index.ParticipantForUser(comment.UserId); participant != nil {
			username = participant.Username
		}
		Out.Printf("  [%2d] %s: %s", comment.VoteCount, username, comment.Text)
	}
}

func cell(value float64, axis quadrant.Axis, size int) int {
	span := axis.Max - axis.Min
	if span <= 0 {
		return 0
	}
	i := int(float64(size) * (value - axis.Min) / span)
	if i < 0 {
		return 0
	}
	if size <= i {
		return size - 1
	}
	return i
}
