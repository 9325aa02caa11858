package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EventNames maps protocol concepts to the type strings a given service
// version uses. Every field can be overridden from configuration.
type EventNames struct {
	SessionUpdate     string `yaml:"session_update"`
	AudioAppend       string `yaml:"audio_append"`
	ItemCreate        string `yaml:"item_create"`
	SessionCreated    string `yaml:"session_created"`
	SpeechStarted     string `yaml:"speech_started"`
	SpeechStopped     string `yaml:"speech_stopped"`
	TranscriptionDone string `yaml:"transcription_done"`
	ResponseCreated   string `yaml:"response_created"`
	AudioDelta        string `yaml:"audio_delta"`
	TextDelta         string `yaml:"text_delta"`
	ResponseDone      string `yaml:"response_done"`
	Error             string `yaml:"error"`
}

// DefaultEventNames returns the names used by the OpenAI realtime beta API.
func DefaultEventNames() EventNames {
	return EventNames{
		SessionUpdate:     "session.update",
		AudioAppend:       "input_audio_buffer.append",
		ItemCreate:        "conversation.item.create",
		SessionCreated:    "session.created",
		SpeechStarted:     "input_audio_buffer.speech_started",
		SpeechStopped:     "input_audio_buffer.speech_stopped",
		TranscriptionDone: "conversation.item.input_audio_transcription.completed",
		ResponseCreated:   "response.created",
		AudioDelta:        "response.audio.delta",
		TextDelta:         "response.audio_transcript.delta",
		ResponseDone:      "response.done",
		Error:             "error",
	}
}

// WithDefaults fills empty names from DefaultEventNames.
func (n EventNames) WithDefaults() EventNames {
	d := DefaultEventNames()
	fill := func(v *string, def string) {
		if *v == "" {
			*v = def
		}
	}
	fill(&n.SessionUpdate, d.SessionUpdate)
	fill(&n.AudioAppend, d.AudioAppend)
	fill(&n.ItemCreate, d.ItemCreate)
	fill(&n.SessionCreated, d.SessionCreated)
	fill(&n.SpeechStarted, d.SpeechStarted)
	fill(&n.SpeechStopped, d.SpeechStopped)
	fill(&n.TranscriptionDone, d.TranscriptionDone)
	fill(&n.ResponseCreated, d.ResponseCreated)
	fill(&n.AudioDelta, d.AudioDelta)
	fill(&n.TextDelta, d.TextDelta)
	fill(&n.ResponseDone, d.ResponseDone)
	fill(&n.Error, d.Error)
	return n
}

// Kind classifies an inbound event.
type Kind int

const (
	KindUnknown Kind = iota
	KindSessionReady
	KindSpeechStarted
	KindSpeechStopped
	KindTranscription
	KindResponseCreated
	KindAudioDelta
	KindTextDelta
	KindResponseDone
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSessionReady:
		return "session-ready"
	case KindSpeechStarted:
		return "speech-started"
	case KindSpeechStopped:
		return "speech-stopped"
	case KindTranscription:
		return "transcription-completed"
	case KindResponseCreated:
		return "response-created"
	case KindAudioDelta:
		return "audio-delta"
	case KindTextDelta:
		return "text-delta"
	case KindResponseDone:
		return "response-done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one decoded inbound message. Only the field matching Kind is set:
// Text for transcription and text deltas, Audio for audio deltas, Err for
// errors.
type Event struct {
	Kind  Kind
	Type  string
	Text  string
	Audio []byte
	Err   *ServiceError
}

// ServiceError is the error payload sent by the remote service.
type ServiceError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ServiceError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

type envelope struct {
	Type       string        `json:"type"`
	Delta      string        `json:"delta"`
	Transcript string        `json:"transcript"`
	Error      *ServiceError `json:"error"`
}

// Decode classifies one inbound message. Unknown types decode to KindUnknown
// without error.
func Decode(names EventNames, data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", ErrDecode)
	}

	ev := Event{Type: env.Type}
	switch env.Type {
	case names.SessionCreated:
		ev.Kind = KindSessionReady
	case names.SpeechStarted:
		ev.Kind = KindSpeechStarted
	case names.SpeechStopped:
		ev.Kind = KindSpeechStopped
	case names.TranscriptionDone:
		ev.Kind = KindTranscription
		ev.Text = env.Transcript
	case names.ResponseCreated:
		ev.Kind = KindResponseCreated
	case names.AudioDelta:
		pcm, err := DecodeAudio(env.Delta)
		if err != nil {
			return Event{}, fmt.Errorf("%w: audio delta: %w", ErrDecode, err)
		}
		ev.Kind = KindAudioDelta
		ev.Audio = pcm
	case names.TextDelta:
		ev.Kind = KindTextDelta
		ev.Text = env.Delta
	case names.ResponseDone:
		ev.Kind = KindResponseDone
	case names.Error:
		ev.Kind = KindError
		ev.Err = env.Error
		if ev.Err == nil {
			ev.Err = &ServiceError{Type: "unknown", Message: string(data)}
		}
	default:
		ev.Kind = KindUnknown
	}
	return ev, nil
}

// EncodeAudio is the transport encoding for PCM bytes.
func EncodeAudio(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeAudio reverses EncodeAudio.
func DecodeAudio(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}
