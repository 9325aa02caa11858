package conversation

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bosley/parley/phase"
)

var t0 = time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)

func TestAccumulator_DeltasConcatenateInOrder(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.AddUserText("I built a scheduler", t0)
	a.BeginResponse(t0)

	deltas := []string{"That ", "sounds ", "interesting", ". How did you test it?"}
	for _, d := range deltas {
		a.AppendResponse(d)
	}

	ex, elapsed, ok := a.Finalize(t0.Add(1500*time.Millisecond), phase.Technical)
	if !ok {
		t.Fatal("no exchange emitted")
	}
	if want := strings.Join(deltas, ""); ex.Assistant != want {
		t.Errorf("assistant = %q; want %q", ex.Assistant, want)
	}
	if ex.User != "I built a scheduler" || ex.Seq != 1 || ex.Phase != phase.Technical {
		t.Errorf("unexpected exchange %+v", ex)
	}
	if elapsed != 1500*time.Millisecond {
		t.Errorf("elapsed = %v; want 1.5s", elapsed)
	}

	user, response := a.Pending()
	if user != "" || response != "" {
		t.Errorf("buffers not cleared: user=%q response=%q", user, response)
	}
	if a.InProgress() {
		t.Error("response still marked in progress")
	}
}

func TestAccumulator_UserTextJoinsUtterances(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	if a.AddUserText("   ", t0) {
		t.Error("blank transcript was added")
	}
	a.AddUserText("First part.", t0)
	a.AddUserText(" second part ", t0.Add(time.Second))

	user, _ := a.Pending()
	if user != "First part. second part" {
		t.Errorf("user = %q", user)
	}
	if !a.LastSpeech().Equal(t0.Add(time.Second)) {
		t.Errorf("last speech = %v", a.LastSpeech())
	}
}

func TestAccumulator_NoExchangeWithoutBothSides(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		user     string
		response string
	}{
		{name: "no user text", response: "Welcome to the interview."},
		{name: "no response", user: "Hello?"},
		{name: "blank response", user: "Hello?", response: "   "},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a := NewAccumulator()
			a.AddUserText(tt.user, t0)
			a.BeginResponse(t0)
			a.AppendResponse(tt.response)

			if _, _, ok := a.Finalize(t0, phase.Introduction); ok {
				t.Fatal("exchange emitted")
			}
			user, response := a.Pending()
			if user != "" || response != "" {
				t.Errorf("buffers not cleared: user=%q response=%q", user, response)
			}
		})
	}
}

func TestAccumulator_SequenceCountsOnlyEmitted(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.AppendResponse("greeting")
	a.Finalize(t0, "")

	for i := 1; i <= 3; i++ {
		a.AddUserText("answer", t0)
		a.AppendResponse("question")
		ex, _, ok := a.Finalize(t0, "")
		if !ok || ex.Seq != i {
			t.Fatalf("turn %d: ok=%v seq=%d", i, ok, ex.Seq)
		}
	}
}

func TestAccumulator_ConcurrentDeltasNotLost(t *testing.T) {
	t.Parallel()

	a := NewAccumulator()
	a.AddUserText("go", t0)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.AppendResponse("x")
		}()
	}
	wg.Wait()

	ex, _, ok := a.Finalize(t0, "")
	if !ok || len(ex.Assistant) != 50 {
		t.Fatalf("assistant has %d bytes; want 50", len(ex.Assistant))
	}
}

func TestLog_AppendAndSubscribe(t *testing.T) {
	t.Parallel()

	l := NewLog()
	var got []int
	id := l.Subscribe(func(ex Exchange) { got = append(got, ex.Seq) })

	l.Append(Exchange{Seq: 1, User: "hi", Assistant: "Tell me about Kafka."})
	l.Append(Exchange{Seq: 2, User: "sure", Assistant: "And retries?"})
	l.Unsubscribe(id)
	l.Append(Exchange{Seq: 3, User: "ok", Assistant: "Thanks."})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("subscriber saw %v; want [1 2]", got)
	}
	if l.Len() != 3 {
		t.Errorf("Len = %d; want 3", l.Len())
	}
	if last, ok := l.Last(); !ok || last.Seq != 3 {
		t.Errorf("Last = %+v", last)
	}

	exs := l.Exchanges()
	exs[0].User = "mutated"
	if l.Exchanges()[0].User != "hi" {
		t.Error("Exchanges returned shared storage")
	}

	if text := l.AssistantText(); text != "tell me about kafka. and retries? thanks." {
		t.Errorf("AssistantText = %q", text)
	}
	if tr := l.Transcript(); !strings.Contains(tr, "Interviewer: Tell me about Kafka.\nCandidate: hi\n") {
		t.Errorf("Transcript = %q", tr)
	}
}

func TestCovered(t *testing.T) {
	t.Parallel()

	said := "So tell me, how do you design a distributed cache with strong consistency guarantees? Also, salary?"
	tests := []struct {
		question string
		want     bool
	}{
		{"How would you design a distributed cache with consistency?", true},
		{"Explain garbage collection tuning in production services", false},
		{"Do you use it, or not at all?", true},
		{"What consistency level do you need?", false},
		{"Salary?", true},
		{"Notice period?", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Covered(tt.question, said); got != tt.want {
			t.Errorf("Covered(%q) = %v; want %v", tt.question, got, tt.want)
		}
	}
}

func TestLog_Coverage(t *testing.T) {
	t.Parallel()

	l := NewLog()
	l.Append(Exchange{Seq: 1, User: "yes", Assistant: "Are you open to relocation?"})

	covered, missed := l.Coverage([]string{"relocation", "Do you have experience with Kubernetes operators?"})
	if covered != 1 || len(missed) != 1 {
		t.Errorf("covered=%d missed=%v", covered, missed)
	}
}
