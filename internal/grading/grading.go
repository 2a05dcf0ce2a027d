// Package grading converts raw IELTS listening/reading scores to bands and
// auto-grades objective answers against an answer key.
package grading

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/stemsi/ieltsmock-backend/internal/model"
)

// MaxRawScore is the number of questions in a listening or reading paper.
const MaxRawScore = 40

// bandFloors lists the minimum raw score (out of 40) for each band, highest first.
var bandFloors = []struct {
	min  int
	band float64
}{
	{40, 9.0},
	{38, 8.5},
	{35, 8.0},
	{33, 7.5},
	{30, 7.0},
	{27, 6.5},
	{24, 6.0},
	{21, 5.5},
	{18, 5.0},
	{15, 4.5},
	{12, 4.0},
	{9, 3.5},
	{6, 3.0},
	{3, 2.5},
	{1, 2.0},
}

// Band converts a raw score out of 40 to an IELTS band. Out-of-range input is
// clamped.
func Band(raw int) float64 {
	if raw > MaxRawScore {
		raw = MaxRawScore
	}
	for _, f := range bandFloors {
		if raw >= f.min {
			return f.band
		}
	}
	return 1.0
}

// ScaledBand converts correct/total to a band by first scaling to 40.
// Papers shorter than 40 questions are common in mock content.
func ScaledBand(correct, total int) float64 {
	if total <= 0 {
		return Band(0)
	}
	raw := int(math.Round(float64(correct) * MaxRawScore / float64(total)))
	return Band(raw)
}

// Overall averages four section bands rounded to the nearest half band.
// It returns nil unless all four are present.
func Overall(listening, reading, writing, speaking *float64) *float64 {
	if listening == nil || reading == nil || writing == nil || speaking == nil {
		return nil
	}
	avg := (*listening + *reading + *writing + *speaking) / 4
	rounded := math.Round(avg*2) / 2
	return &rounded
}

// Grade compares answers against key for one section. Comparison ignores
// case and surrounding whitespace; alternatives in the key are separated by "|".
func Grade(key map[string]string, answers model.SectionAnswers) *model.SectionScore {
	score := &model.SectionScore{Total: len(key)}
	for qid, expected := range key {
		got, ok := answers[qid]
		if !ok {
			continue
		}
		if matches(expected, fmt.Sprint(got)) {
			score.Correct++
		}
	}
	score.Band = ScaledBand(score.Correct, score.Total)
	return score
}

func matches(expected, got string) bool {
	got = normalize(got)
	if got == "" {
		return false
	}
	for _, alt := range strings.Split(expected, "|") {
		if normalize(alt) == got {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// WordCount counts whitespace-separated words in a writing response.
func WordCount(text string) int {
	return len(strings.FieldsFunc(text, unicode.IsSpace))
}

// Writing task minimums.
const (
	Task1MinWords = 150
	Task2MinWords = 250
)

// MeetsWordCount reports whether text reaches min words.
func MeetsWordCount(text string, min int) bool {
	return WordCount(text) >= min
}

// Score grades the objective sections of an attempt. Writing and speaking
// bands carried on prev are preserved.
func Score(key model.AnswerKey, answers model.Answers, prev *model.Scores) *model.Scores {
	out := &model.Scores{}
	if prev != nil {
		out.Writing = prev.Writing
		out.Speaking = prev.Speaking
	}
	if k := key[model.SectionListening]; len(k) > 0 {
		out.Listening = Grade(k, answers.Listening)
	}
	if k := key[model.SectionReading]; len(k) > 0 {
		out.Reading = Grade(k, answers.Reading)
	}

	var l, r *float64
	if out.Listening != nil {
		l = &out.Listening.Band
	}
	if out.Reading != nil {
		r = &out.Reading.Band
	}
	out.Overall = Overall(l, r, out.Writing, out.Speaking)
	return out
}

// MergeKeys returns base with every section present in overlay replaced.
// A variant's answer key takes precedence over its test's for the sections
// it defines.
func MergeKeys(base, overlay model.AnswerKey) model.AnswerKey {
	out := make(model.AnswerKey, len(base)+len(overlay))
	for s, k := range base {
		out[s] = k
	}
	for s, k := range overlay {
		if len(k) > 0 {
			out[s] = k
		}
	}
	return out
}
