package behavior

import (
	"context"

	"github.com/odvcencio/gpsr/pkg/fsm"
	"github.com/odvcencio/gpsr/pkg/lang"
)

const (
	tellPhrase fsm.State = "tell_phrase"

	answerQuestion fsm.State = "question"
	answerAnswer   fsm.State = "answer"
)

// TellPhrase speaks a phrase selected by a category key: "time" speaks the
// current time and "name" the robot identity. Other keys say nothing. The
// primitive always succeeds.
type TellPhrase struct {
	env *Env
	key string
	m   *fsm.Machine
}

// NewTellPhrase creates a tell primitive for key.
func NewTellPhrase(env *Env, key string) *TellPhrase {
	p := &TellPhrase{env: env, key: key}
	p.m = env.Machine("tell_phrase").
		AddState(stateInit, p.init, tellPhrase).
		AddState(tellPhrase, p.tell, stateFinal).
		AddState(stateFinal, nil).
		SetStart(stateInit).
		SetFinal(stateFinal).
		MustBuild()
	return p
}

func (p *TellPhrase) Name() string { return "tell_phrase" }

// Execute runs the primitive to completion.
func (p *TellPhrase) Execute(ctx context.Context) fsm.Status {
	return run(ctx, p.env, p.Name(), p.m)
}

func (p *TellPhrase) init(ctx context.Context) fsm.Transition {
	return fsm.Go(tellPhrase)
}

func (p *TellPhrase) tell(ctx context.Context) fsm.Transition {
	switch p.key {
	case "time":
		p.env.Commands.Say(ctx, p.env.clock().Format("Monday, January 2 2006, 3:04 PM"))
	case "name":
		p.env.Commands.Say(ctx, p.env.phrases().Identity)
	default:
		p.env.Log.Debug("no phrase for key", "key", p.key)
	}
	return fsm.Finish(stateFinal, fsm.StatusSucceeded)
}

// AnswerQuestion asks the operator for a question and answers it.
//
// The utterance queue is polled up to AnswerPolls times, waiting
// AnswerPollDelay between empty polls. An utterance classified as a say act
// is answered and ends the primitive. Any other utterance is dropped and
// polling continues without spending a poll.
type AnswerQuestion struct {
	env      *Env
	attempts int
	m        *fsm.Machine
}

//go:generate mockgen -package=behavior -destination=mock_classifier_test.go github.com/odvcencio/gpsr/pkg/lang Classifier

// NewAnswerQuestion creates an answer primitive.
func NewAnswerQuestion(env *Env) *AnswerQuestion {
	a := &AnswerQuestion{env: env}
	a.m = env.Machine("answer_question").
		AddState(stateInit, a.init, answerQuestion).
		AddState(answerQuestion, a.question, answerAnswer).
		AddState(answerAnswer, a.answer, stateFinal).
		AddState(stateFinal, nil).
		SetStart(stateInit).
		SetFinal(stateFinal).
		MustBuild()
	return a
}

func (a *AnswerQuestion) Name() string { return "answer_question" }

// Execute runs the primitive to completion.
func (a *AnswerQuestion) Execute(ctx context.Context) fsm.Status {
	return run(ctx, a.env, a.Name(), a.m)
}

// Attempts returns how many empty polls were spent.
func (a *AnswerQuestion) Attempts() int {
	return a.attempts
}

func (a *AnswerQuestion) init(ctx context.Context) fsm.Transition {
	a.attempts = 0
	return fsm.Go(answerQuestion)
}

func (a *AnswerQuestion) question(ctx context.Context) fsm.Transition {
	a.env.Commands.SayBrief(ctx, a.env.phrases().AskQuestion)
	a.env.Queue.Clear()
	return fsm.Go(answerAnswer)
}

func (a *AnswerQuestion) answer(ctx context.Context) fsm.Transition {
	if a.attempts >= a.env.AnswerPolls {
		a.env.Log.AttemptsExhausted("answer_question.poll", a.attempts)
		a.env.Commands.SayBrief(ctx, a.env.phrases().CannotHear)
		return fsm.Finish(stateFinal, fsm.StatusFailed)
	}

	text, ok := a.env.Queue.TryDequeue()
	if !ok {
		a.attempts++
		a.env.Queue.Wait(ctx, a.env.AnswerPollDelay)
		return fsm.Go(answerAnswer)
	}

	act, err := a.env.Classifier.Classify(ctx, text)
	if err != nil {
		a.env.Log.Warn("classification failed", "utterance", text, "error", err.Error())
	}
	if err == nil && act.Verb == lang.VerbSay {
		a.env.Log.Info("answering", "question", text, "answer", act.Payload)
		a.env.Commands.SayWithin(ctx, act.Payload, a.env.Commands.Timeouts().Answer)
		a.env.Queue.Clear()
		return fsm.Finish(stateFinal, fsm.StatusSucceeded)
	}

	a.env.Queue.Clear()
	return fsm.Go(answerAnswer)
}
