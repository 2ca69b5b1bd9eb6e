package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/skypro1111/speechcoach/internal/apperr"
)

// Report is the analysis of one recording
type Report struct {
	Transcription string         `json:"transcription"`
	Fluency       *Fluency       `json:"fluency" validate:"required"`
	Grammar       *Grammar       `json:"grammar" validate:"required"`
	Pronunciation *Pronunciation `json:"pronunciation" validate:"required"`
}

// Fluency holds the delivery metrics
type Fluency struct {
	FillerWordCount int     `json:"filler_word_count" validate:"gte=0"`
	FluencyScore    float64 `json:"fluency_score" validate:"gte=0,lte=100"`
	SentenceCount   int     `json:"sentence_count" validate:"gte=0"`
	// SpeakingRate is in words per minute.
	SpeakingRate float64 `json:"speaking_rate" validate:"gte=0"`
	PauseCount   int     `json:"pause_count" validate:"gte=0"`
}

// Grammar holds the correction results. Score can go negative when a
// sentence carries more than one error.
type Grammar struct {
	TotalSentences int          `json:"total_sentences" validate:"gte=0"`
	TotalErrors    int          `json:"total_errors" validate:"gte=0"`
	Score          float64      `json:"grammar_score" validate:"lte=100"`
	Corrections    []Correction `json:"corrections" validate:"dive"`
}

// Correction pairs a sentence with its corrected form
type Correction struct {
	Original  string `json:"original" validate:"required"`
	Corrected string `json:"corrected" validate:"required"`
}

// Pronunciation is the fixed set of pronunciation metrics
type Pronunciation struct {
	Accuracy     *Metric `json:"accuracy" validate:"required"`
	Fluency      *Metric `json:"fluency" validate:"required"`
	Completeness *Metric `json:"completeness" validate:"required"`
	Prosody      *Metric `json:"prosody" validate:"required"`
	Overall      *Metric `json:"overall" validate:"required"`
}

// Metric is a scalar score with qualitative commentary
type Metric struct {
	Score   float64 `json:"score" validate:"gte=0,lte=100"`
	Comment string  `json:"comment"`
}

// Metrics returns the pronunciation metrics by name
func (p *Pronunciation) Metrics() map[string]*Metric {
	return map[string]*Metric{
		"accuracy":     p.Accuracy,
		"fluency":      p.Fluency,
		"completeness": p.Completeness,
		"prosody":      p.Prosody,
		"overall":      p.Overall,
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks r against the schema and wraps failures in
// apperr.ErrMalformedReport
func (r *Report) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: empty report", apperr.ErrMalformedReport)
	}
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", apperr.ErrMalformedReport, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %w", apperr.ErrMalformedReport, err)
	}
	return nil
}
