// Package intent provides deterministic classification of user utterances
// during a planning conversation.
//
// Classification is a pure text heuristic: no model call, no stored state.
// It decides whether a reply is a confirmation, a refusal, a request for
// help about the planning modes, an explicit generate command, or
// something ambiguous that should be forwarded to the planner agent.
package intent

import (
	"regexp"
	"strings"
)

// Intent is the classification of a single utterance.
type Intent string

const (
	Affirmative     Intent = "affirmative"
	Negative        Intent = "negative"
	HelpRequest     Intent = "help_request"
	GenerateCommand Intent = "generate_command"
	Ambiguous       Intent = "ambiguous"
)

// negativeWords are whole-word refusal markers. Contractions are matched
// in their apostrophe-stripped form produced by normalize.
var negativeWords = map[string]bool{
	"no": true, "not": true, "dont": true, "stop": true, "wait": true,
	"hold": true, "never": true, "cancel": true, "abort": true,
	"nope": true, "nah": true,
}

// politeNegatives are phrases that contain a negation word but are not
// refusals. They are carved out before the negative test runs, so the
// carve-out always wins.
var politeNegatives = []string{
	"no problem",
	"no worries",
	"no issues",
	"no concerns",
}

// affirmativeWords are whole-word confirmation markers.
var affirmativeWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true,
	"okay": true, "perfect": true, "great": true, "good": true,
	"fine": true, "alright": true, "absolutely": true, "definitely": true,
	"proceed": true,
}

// affirmativePhrases are multi-word confirmations, already normalized.
var affirmativePhrases = []string{
	"sounds good",
	"that works",
	"lets do",
	"lets go",
	"go ahead",
}

var (
	generateCommandRe = regexp.MustCompile(`\b(generate|create|make)\b.*\b(plan|activity|it)\b`)
	helpQuestionRe    = regexp.MustCompile(`\b(difference|differ|how (do|does)|what (is|are)|which|mean|work|works)\b`)
	replayRe          = regexp.MustCompile(`\b(show|see|view|display|repeat)\b.*\b(plan|overview|summary|it|again)\b`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// normalize lowercases, strips terminal punctuation, collapses
// contractions into single tokens, and collapses whitespace.
func normalize(utterance string) string {
	s := strings.ToLower(strings.TrimSpace(utterance))
	s = strings.TrimRight(s, ".!?")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "’", "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// tokens splits a normalized utterance into words, dropping inner punctuation.
func tokens(normalized string) []string {
	return strings.FieldsFunc(normalized, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'))
	})
}

// Classify determines the intent of an utterance. hasPendingPlan reports
// whether a candidate plan is currently awaiting confirmation; a bare
// affirmative with nothing to confirm is ambiguous, not a confirmation.
func Classify(utterance string, hasPendingPlan bool) Intent {
	normalized := normalize(utterance)
	if normalized == "" {
		return Ambiguous
	}

	if isHelpRequest(normalized) {
		return HelpRequest
	}

	negative := isNegative(normalized)
	generate := generateCommandRe.MatchString(normalized)
	affirmative := isAffirmative(normalized)

	// A bare negative always overrides a co-occurring affirmative phrase.
	if negative {
		return Negative
	}
	if generate {
		return GenerateCommand
	}
	if affirmative {
		if hasPendingPlan {
			return Affirmative
		}
		// Nothing to confirm; forward as a revision request.
		return Ambiguous
	}
	return Ambiguous
}

// IsReplayRequest reports whether the utterance asks to see the pending
// plan again ("show me the overview"). Used while confirming to answer
// from stored state instead of re-invoking the planner agent.
func IsReplayRequest(utterance string) bool {
	return replayRe.MatchString(normalize(utterance))
}

// isNegative applies the negation-word test after removing the polite
// carve-out phrases.
func isNegative(normalized string) bool {
	carved := normalized
	for _, phrase := range politeNegatives {
		carved = strings.ReplaceAll(carved, phrase, " ")
	}
	for _, tok := range tokens(carved) {
		if negativeWords[tok] {
			return true
		}
	}
	return false
}

// isAffirmative applies the affirmative word and phrase tests.
func isAffirmative(normalized string) bool {
	for _, tok := range tokens(normalized) {
		if affirmativeWords[tok] {
			return true
		}
	}
	for _, phrase := range affirmativePhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}

// isHelpRequest detects questions about how the planning modes differ or
// work. These are answered immediately without touching session state.
func isHelpRequest(normalized string) bool {
	mentionsModes := strings.Contains(normalized, "mode") ||
		(strings.Contains(normalized, "quick") && strings.Contains(normalized, "smart"))
	if !mentionsModes {
		return false
	}
	return helpQuestionRe.MatchString(normalized)
}
