package suggest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"venue-pickup-service/internal/domain"
	"venue-pickup-service/internal/platform/obs"
	"venue-pickup-service/internal/ports"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sirupsen/logrus"
)

const systemPrompt = `You assign night-shift cast members to pickup cars that drive them home from a venue.
You receive the venue, the day's routes with their capacity, trips and current load, and
the attendees still waiting for a ride with their destination address.
Group attendees whose destinations lie in the same direction on the same route. Prefer
filling the outbound trip (trip_number 1) before return trips and stay within capacity
when possible. Only use route ids and attendee ids from the input.
Reply with JSON only, in this form:
{"suggestions":[{"attendee_id":"...","route_id":"...","trip_number":1,"reason":"..."}]}`

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	Cache       ports.SuggestionCache
	CacheTTL    time.Duration
	HTTPClient  *http.Client
}

// OpenAISuggester asks a chat completion model for placements. Raw answers are
// cached by a digest of the prompt when a cache is configured.
type OpenAISuggester struct {
	client      openai.Client
	model       string
	temperature float64
	cache       ports.SuggestionCache
	ttl         time.Duration
}

func NewOpenAISuggester(cfg Config) (*OpenAISuggester, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai suggester: api key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("openai suggester: model is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAISuggester{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		cache:       cfg.Cache,
		ttl:         cfg.CacheTTL,
	}, nil
}

type promptRoute struct {
	ID            uuid.UUID `json:"id"`
	Label         string    `json:"label"`
	Capacity      int       `json:"capacity"`
	Trips         int       `json:"trips"`
	Load          []int     `json:"load_per_trip"`
	DepartAt      string    `json:"depart_at"`
	AvoidHighways bool      `json:"avoid_highways,omitempty"`
	AvoidTolls    bool      `json:"avoid_tolls,omitempty"`
}

type promptAttendee struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Destination string    `json:"destination"`
}

type prompt struct {
	Venue     string           `json:"venue"`
	Origin    string           `json:"origin"`
	Date      string           `json:"business_date"`
	Routes    []promptRoute    `json:"routes"`
	Attendees []promptAttendee `json:"attendees"`
}

func buildPrompt(req ports.SuggestionRequest) (string, error) {
	load := make(map[uuid.UUID][]int, len(req.Routes))
	for _, rt := range req.Routes {
		load[rt.ID] = make([]int, rt.TripCount())
	}
	for _, p := range req.Passengers {
		if legs, ok := load[p.RouteID]; ok && p.TripNumber >= 1 && p.TripNumber <= len(legs) {
			legs[p.TripNumber-1]++
		}
	}

	loc := req.Venue.Location
	if loc == nil {
		loc = time.UTC
	}

	pr := prompt{
		Venue:  req.Venue.Name,
		Origin: req.Venue.Address,
		Date:   req.Date.String(),
	}
	for _, rt := range req.Routes {
		pr.Routes = append(pr.Routes, promptRoute{
			ID:            rt.ID,
			Label:         rt.Label,
			Capacity:      rt.Capacity,
			Trips:         rt.TripCount(),
			Load:          load[rt.ID],
			DepartAt:      rt.DepartAt.In(loc).Format("15:04"),
			AvoidHighways: rt.AvoidHighways,
			AvoidTolls:    rt.AvoidTolls,
		})
	}
	for _, a := range req.Attendees {
		if !a.Eligible() {
			continue
		}
		pr.Attendees = append(pr.Attendees, promptAttendee{ID: a.ProfileID, Name: a.DisplayName, Destination: *a.Destination})
	}

	b, err := json.Marshal(pr)
	if err != nil {
		return "", errors.Wrap(err, "marshal prompt")
	}
	return string(b), nil
}

func (s *OpenAISuggester) cacheKey(user string) string {
	h := md5.New()
	h.Write([]byte(s.model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(s.temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(systemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *OpenAISuggester) Suggest(ctx context.Context, req ports.SuggestionRequest) (_ []domain.Suggestion, err error) {
	defer obs.Time(ctx, "suggest.openai")(&err)

	user, err := buildPrompt(req)
	if err != nil {
		return nil, err
	}
	key := s.cacheKey(user)

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			obs.Logger(ctx).WithError(err).Warn("suggestion cache lookup failed")
		} else if ok {
			if out, err := parseSuggestions(raw); err == nil {
				obs.Logger(ctx).WithField("key", key).Debug("suggestion cache hit")
				return out, nil
			}
		}
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: s.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(s.temperature),
	})
	if err != nil {
		return nil, errors.Wrap(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion: no choices")
	}

	raw := resp.Choices[0].Message.Content
	obs.Logger(ctx).WithFields(logrus.Fields{
		"model": s.model,
		"chars": len(raw),
	}).Debug("openai response received")

	out, err := parseSuggestions(raw)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			obs.Logger(ctx).WithError(err).Warn("suggestion cache store failed")
		}
	}
	return out, nil
}

// parseSuggestions reads the model's JSON answer, tolerating code fences and prose
// around the object.
func parseSuggestions(raw string) ([]domain.Suggestion, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, errors.New("parse suggestions: no json object in response")
	}

	var body struct {
		Suggestions []domain.Suggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &body); err != nil {
		return nil, errors.Wrap(err, "parse suggestions")
	}
	if body.Suggestions == nil {
		body.Suggestions = []domain.Suggestion{}
	}
	return body.Suggestions, nil
}
