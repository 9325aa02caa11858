package realtime

// TranscriptionPrompt asks for literal transcripts with hesitations kept.
const TranscriptionPrompt = `PRIORITY:
1. Transcribe ONLY clear speech. If audio is unclear or contains only noise, return empty. Never guess or add words not clearly spoken.
2. Keep natural speech patterns: um, uh, like, you know, so, well, actually, basically.
3. Mark hesitations with (...).
4. Show repetitions: I, I mean.
5. Mark false starts: I was, I mean.
6. NEVER add content not spoken.
7. NEVER clean up or interpret. Raw speech only.
8. Focus on accuracy over emotional markers.`

// SessionConfig is the payload of the session update message.
type SessionConfig struct {
	Modalities              []string       `json:"modalities"`
	Instructions            string         `json:"instructions"`
	Voice                   string         `json:"voice"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *Transcription `json:"input_audio_transcription,omitempty"`
	NoiseReduction          *NoiseConfig   `json:"input_audio_noise_reduction,omitempty"`
	TurnDetection           *TurnDetection `json:"turn_detection,omitempty"`
}

type Transcription struct {
	Model    string `json:"model"`
	Prompt   string `json:"prompt,omitempty"`
	Language string `json:"language,omitempty"`
}

type NoiseConfig struct {
	Type string `json:"type"`
}

// TurnDetection is the server-side voice activity policy.
type TurnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMS   int     `json:"prefix_padding_ms"`
	SilenceDurationMS int     `json:"silence_duration_ms"`
	CreateResponse    *bool   `json:"create_response,omitempty"`
}

// InterviewTurnDetection is less sensitive and waits longer before ending a
// turn so that long technical answers are not cut off.
func InterviewTurnDetection() *TurnDetection {
	create := true
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.76,
		PrefixPaddingMS:   900,
		SilenceDurationMS: 1500,
		CreateResponse:    &create,
	}
}

// ConversationTurnDetection is tuned for quick back-and-forth.
func ConversationTurnDetection() *TurnDetection {
	return &TurnDetection{
		Type:              "server_vad",
		Threshold:         0.3,
		PrefixPaddingMS:   600,
		SilenceDurationMS: 1000,
	}
}

// NewSessionConfig builds the pcm16 audio session used by both modes.
func NewSessionConfig(instructions, voice, transcriptionModel, language string, turn *TurnDetection) SessionConfig {
	return SessionConfig{
		Modalities:        []string{"text", "audio"},
		Instructions:      instructions,
		Voice:             voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		InputAudioTranscription: &Transcription{
			Model:    transcriptionModel,
			Prompt:   TranscriptionPrompt,
			Language: language,
		},
		NoiseReduction: &NoiseConfig{Type: "near_field"},
		TurnDetection:  turn,
	}
}
