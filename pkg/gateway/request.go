package gateway

import (
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const classPrefix = "class:"

const (
	DefaultTemperature float32 = 0.7
	DefaultMaxTokens           = 100
)

// Request describes one chat completion call. Model is empty (gateway
// default), a class selector such as "class:fast", or a concrete model id
// such as "llama3:8b".
type Request struct {
	Messages    []openai.ChatCompletionMessage
	Model       string
	Temperature float32
	MaxTokens   int
	// Timeout overrides the client default for this call when > 0.
	Timeout time.Duration
}

// NewRequest builds a single user-message request with the default sampling
// settings.
func NewRequest(model, prompt string) Request {
	return Request{
		Messages:    []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
		Model:       strings.TrimSpace(model),
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

func (r Request) WithMaxTokens(n int) Request {
	r.MaxTokens = n
	return r
}

func (r Request) WithTimeout(d time.Duration) Request {
	r.Timeout = d
	return r
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Messages    []chatMessage `json:"messages"`
	Model       string        `json:"model,omitempty"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

func (r Request) payload() chatPayload {
	msgs := make([]chatMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
	}
	return chatPayload{
		Messages:    msgs,
		Model:       strings.TrimSpace(r.Model),
		Temperature: r.Temperature,
		MaxTokens:   r.MaxTokens,
	}
}

// IsClassSelector reports whether model is a "class:<name>" selector.
func IsClassSelector(model string) bool {
	return strings.HasPrefix(strings.TrimSpace(model), classPrefix)
}

// ClassName returns the class of a selector, or "" for other ids.
func ClassName(model string) string {
	model = strings.TrimSpace(model)
	if !strings.HasPrefix(model, classPrefix) {
		return ""
	}
	return strings.TrimPrefix(model, classPrefix)
}

func ClassSelector(name string) string {
	return classPrefix + strings.TrimSpace(name)
}

// ResolvedModel returns the model the gateway reports having used.
func ResolvedModel(resp openai.ChatCompletionResponse) string {
	return strings.TrimSpace(resp.Model)
}

// Content returns the first choice's assistant content.
func Content(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].Message.Content
}

// FirstSpecificModel picks the first listed model id that is not a class
// selector.
func FirstSpecificModel(models openai.ModelsList) (string, bool) {
	for _, m := range models.Models {
		id := strings.TrimSpace(m.ID)
		if id != "" && !IsClassSelector(id) {
			return id, true
		}
	}
	return "", false
}

// CallOption adjusts the identity or correlation of a single call.
type CallOption func(*callOptions)

type callOptions struct {
	user    string
	role    string
	noAuth  bool
	bearer  string
	probeID string
}

func AsUser(user string) CallOption {
	u := strings.TrimSpace(user)
	return func(o *callOptions) { o.user = u }
}

func AsRole(role string) CallOption {
	r := strings.TrimSpace(role)
	return func(o *callOptions) { o.role = r }
}

// Unauthenticated sends the call without an Authorization header.
func Unauthenticated() CallOption {
	return func(o *callOptions) { o.noAuth = true }
}

// WithBearer sends token verbatim instead of resolving one.
func WithBearer(token string) CallOption {
	return func(o *callOptions) { o.bearer = token }
}

// WithProbeID tags the call's X-Request-ID with a probe number.
func WithProbeID(id string) CallOption {
	pid := strings.TrimSpace(id)
	return func(o *callOptions) { o.probeID = pid }
}

func collectOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
