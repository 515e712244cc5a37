package interview

import (
	"hash/fnv"
	"strconv"
	"strings"

	"github.com/ashureev/interview-probe/internal/domain"
)

const (
	greetingMessage = "Hello, and thank you for taking part in this interview. " +
		"I'll ask you about your experiences, and there are no right or wrong answers. " +
		"Share as much or as little as you're comfortable with. Whenever you're ready, just say hello and we'll begin."
	closingMessage = "That brings us to the end of the interview. " +
		"Thank you so much for your time and for sharing your experiences so openly. Your responses have been recorded."
	postClosingMessage = "Thanks again. The interview is already complete, so there's nothing more you need to do."
)

var (
	answerAcks = []string{
		"Thank you for sharing that.",
		"Thanks, that's really helpful.",
		"I appreciate you telling me about that.",
		"Thanks for walking me through that.",
	}
	probeAcks = []string{
		"Thanks, that's a good start.",
		"Thank you, I'd like to understand that a little better.",
		"Thanks for that. I'd love a bit more detail.",
	}
	startFramings = []string{
		"Great, let's get started.",
		"Wonderful, let's begin.",
	}
	nextFramings = []string{
		"Next question:",
		"Let's move on.",
		"Here's the next one:",
	}
)

const (
	finalFraming  = "Here's my last question:"
	reaskFraming  = "I didn't quite catch that. Let me ask once more:"
	onlyQuestion  = "There's just one question today:"
	closingPrefix = "Thank you for sharing that."
)

// ComposeInput is everything the composer needs to write one reply.
type ComposeInput struct {
	SessionID string
	Decision  Decision
}

// Composer turns a Decision into the bot's reply. It is pure: the same input
// always yields the same text.
type Composer struct{}

// NewComposer creates a composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Compose returns the reply text. Every reply to an answer opens with an
// acknowledgment and poses at most one question.
func (c *Composer) Compose(in ComposeInput) string {
	d := in.Decision
	pick := func(options []string, salt string) string {
		return choose(options, in.SessionID, d.Step, salt)
	}

	switch {
	case d.PrevPhase == domain.PhaseComplete:
		return postClosingMessage
	case d.Phase == domain.PhaseComplete:
		return closingPrefix + " " + closingMessage
	case d.PrevPhase == domain.PhaseIntro && d.Phase == domain.PhaseIntro:
		return greetingMessage
	case d.PrevPhase == domain.PhaseIntro:
		framing := pick(startFramings, "start")
		if d.IsFinalQuestion {
			framing += " " + onlyQuestion
		}
		return join(framing, d.Question)
	case d.Reasked:
		return join(reaskFraming, d.Question)
	case d.Phase == domain.PhaseAwaitingFollowUp:
		return join(pick(probeAcks, "probe"), d.Question)
	case d.IsFinalQuestion && d.QuestionCompleted:
		return join(pick(answerAcks, "ack"), finalFraming, d.Question)
	case d.QuestionCompleted:
		return join(pick(answerAcks, "ack"), pick(nextFramings, "next"), d.Question)
	default:
		return join(pick(answerAcks, "ack"), d.Question)
	}
}

func choose(options []string, sessionID string, step int, salt string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strconv.Itoa(step)))
	_, _ = h.Write([]byte(salt))
	return options[h.Sum32()%uint32(len(options))]
}

func join(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
