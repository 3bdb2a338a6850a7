package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/example/accessiride/internal/models"
)

var ErrSpeechUnsupported = errors.New("speech not supported")

// HelpPrompt is spoken when a transcript is not a route request.
const HelpPrompt = "Sorry, I didn't understand. Please say, for example, 'get a ride from downtown to the university'."

var commandPrefixes = []string{"find a route from", "get a ride from"}

// Command is a route request extracted from a spoken transcript.
type Command struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ParseCommand reads "get a ride from X to Y" style transcripts. The
// lower-cased transcript must split on " to " into exactly two parts.
func ParseCommand(transcript string) (Command, bool) {
	parts := strings.Split(strings.ToLower(transcript), " to ")
	if len(parts) != 2 {
		return Command{}, false
	}
	from := parts[0]
	for _, p := range commandPrefixes {
		from = strings.Replace(from, p, "", 1)
	}
	cmd := Command{From: strings.TrimSpace(from), To: strings.TrimSpace(parts[1])}
	if cmd.From == "" || cmd.To == "" {
		return Command{}, false
	}
	return cmd, true
}

// Speaker speaks text aloud, cancelling any utterance still playing.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	State() models.ServiceState
}

// Utterance is one captured phrase: a transcript recognized on the
// device, or raw audio.
type Utterance struct {
	Transcript string `json:"transcript"`
	Audio      []byte `json:"audio,omitempty"`
}

// Recognizer turns an utterance into a transcript.
type Recognizer interface {
	Recognize(ctx context.Context, u Utterance) (string, error)
	State() models.ServiceState
}

// DeviceRecognizer accepts transcripts produced by the client's own speech
// engine. Raw audio is not supported.
type DeviceRecognizer struct{}

func (DeviceRecognizer) Recognize(_ context.Context, u Utterance) (string, error) {
	t := strings.TrimSpace(u.Transcript)
	if t == "" {
		return "", ErrSpeechUnsupported
	}
	return t, nil
}

func (DeviceRecognizer) State() models.ServiceState { return models.StateReady }

// Recorder is a Speaker that keeps what would have been spoken so it can
// be handed to the client for playback. Each Speak supersedes the
// previous utterance.
type Recorder struct {
	logger *slog.Logger

	mu      sync.Mutex
	current string
	history []string
}

func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) Speak(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != "" {
		r.logger.Debug("utterance cancelled", "text", r.current)
	}
	r.current = text
	r.history = append(r.history, text)
	r.logger.Debug("speak", "text", text)
	return nil
}

func (r *Recorder) State() models.ServiceState { return models.StateReady }

// Last returns the utterance that is currently playing.
func (r *Recorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// History returns every utterance in order, including cancelled ones.
func (r *Recorder) History() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history...)
}

// Mute is a Speaker for clients without text-to-speech.
type Mute struct{}

func (Mute) Speak(context.Context, string) error { return ErrSpeechUnsupported }

func (Mute) State() models.ServiceState { return models.StateFailed }
