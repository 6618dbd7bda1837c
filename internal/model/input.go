package model

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// QuestionInput is a question as submitted by a teacher form, a CSV row or an LLM draft.
type QuestionInput struct {
	Text    string `validate:"required,max=4000"`
	OptionA string `validate:"required,max=500"`
	OptionB string `validate:"required,max=500"`
	OptionC string `validate:"required,max=500"`
	OptionD string `validate:"required,max=500"`
	Correct string `validate:"required,oneof=a b c d"`
}

// Normalize trims every field and lower-cases the correct designator.
func (in QuestionInput) Normalize() QuestionInput {
	return QuestionInput{
		Text:    strings.TrimSpace(in.Text),
		OptionA: strings.TrimSpace(in.OptionA),
		OptionB: strings.TrimSpace(in.OptionB),
		OptionC: strings.TrimSpace(in.OptionC),
		OptionD: strings.TrimSpace(in.OptionD),
		Correct: strings.ToLower(strings.TrimSpace(in.Correct)),
	}
}

// Question validates the input and builds a question for the given set.
func (in QuestionInput) Question(setID int64) (Question, error) {
	in = in.Normalize()
	if err := validate.Struct(in); err != nil {
		return Question{}, NewValidationError(err)
	}
	return Question{
		SetID:   setID,
		Text:    in.Text,
		Options: [4]string{in.OptionA, in.OptionB, in.OptionC, in.OptionD},
		Correct: Option(in.Correct),
	}, nil
}

// StudentLogin identifies a student starting or resuming an exam.
type StudentLogin struct {
	Email    string `validate:"required,email,max=200"`
	Index    string `validate:"required,max=50"`
	SetToken string `validate:"required,uuid4"`
}

// Normalize lower-cases the email and trims all fields.
func (l StudentLogin) Normalize() StudentLogin {
	return StudentLogin{
		Email:    strings.ToLower(strings.TrimSpace(l.Email)),
		Index:    strings.TrimSpace(l.Index),
		SetToken: strings.TrimSpace(l.SetToken),
	}
}

// Validate normalizes and checks the login form.
func (l StudentLogin) Validate() (StudentLogin, error) {
	l = l.Normalize()
	if err := validate.Struct(l); err != nil {
		return l, NewValidationError(err)
	}
	return l, nil
}

// SetInput names a new question set.
type SetInput struct {
	Name string `validate:"required,max=200"`
}

// Validate trims and checks the set name.
func (s SetInput) Validate() (SetInput, error) {
	s.Name = strings.TrimSpace(s.Name)
	if err := validate.Struct(s); err != nil {
		return s, NewValidationError(err)
	}
	return s, nil
}
