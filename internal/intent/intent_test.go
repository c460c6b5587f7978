package intent

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		utterance      string
		hasPendingPlan bool
		want           Intent
	}{
		{"bare yes with pending plan", "yes", true, Affirmative},
		{"bare yes without pending plan", "yes", false, Ambiguous},
		{"yes with punctuation", "Yes!", true, Affirmative},
		{"sounds good", "sounds good to me", true, Affirmative},
		{"lets do it phrase", "let's do it", true, Affirmative},
		{"go ahead", "go ahead", true, Affirmative},
		{"bare no", "no", true, Negative},
		{"no wait", "no, wait", true, Negative},
		{"stop", "stop", true, Negative},
		{"cancel that", "cancel that", true, Negative},
		{"dont contraction", "don't do that yet", true, Negative},
		{"hold on", "hold on a second", true, Negative},
		{"polite negative carve-out", "no problem, let's go", true, Affirmative},
		{"no worries carve-out", "no worries, sounds good", true, Affirmative},
		{"no issues carve-out", "no issues here, that works", true, Affirmative},
		{"carve-out alone is ambiguous", "no problem", true, Ambiguous},
		{"negative overrides affirmative", "yes but wait", true, Negative},
		{"negative overrides generate", "no, don't create the plan", true, Negative},
		{"generate command", "generate the plan", false, GenerateCommand},
		{"create command", "create an activity for me", false, GenerateCommand},
		{"make it command", "just make it", false, GenerateCommand},
		{"generate without object", "generate", false, Ambiguous},
		{"help about modes", "what is the difference between quick and smart mode?", true, HelpRequest},
		{"help how modes work", "how does smart mode work", false, HelpRequest},
		{"quick vs smart", "how do quick and smart differ", false, HelpRequest},
		{"quick alone not help", "a quick trip to the store", false, Ambiguous},
		{"freeform is ambiguous", "add a cake tasting on saturday", true, Ambiguous},
		{"empty is ambiguous", "   ", true, Ambiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.utterance, tt.hasPendingPlan)
			if got != tt.want {
				t.Errorf("Classify(%q, %v) = %v, want %v", tt.utterance, tt.hasPendingPlan, got, tt.want)
			}
		})
	}
}

func TestIsReplayRequest(t *testing.T) {
	tests := []struct {
		utterance string
		want      bool
	}{
		{"show me the plan again", true},
		{"can I see the overview?", true},
		{"show the summary", true},
		{"display it again", true},
		{"yes", false},
		{"change the second task", false},
	}

	for _, tt := range tests {
		if got := IsReplayRequest(tt.utterance); got != tt.want {
			t.Errorf("IsReplayRequest(%q) = %v, want %v", tt.utterance, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Yes!", "yes"},
		{"Don't   stop.", "dont stop"},
		{"  OK?  ", "ok"},
		{"let’s do it", "lets do it"},
	}

	for _, tt := range tests {
		if got := normalize(tt.in); got != tt.want {
			t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
