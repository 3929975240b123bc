package intent

import "testing"

func TestClassifyIntents(t *testing.T) {
	classifier := NewRuleClassifier()

	cases := []struct {
		name          string
		text          string
		wantIntent    Intent
		needsInternet bool
	}{
		{"calendar event", "Mark a dentist appointment on my calendar for tomorrow", IntentCalendar, true},
		{"calendar misspelled", "add it to my calender please", IntentCalendar, true},
		{"email summary", "Summarize my unread emails in gmail", IntentEmail, true},
		{"meet beats calendar", "Create a google meet and share the meeting link", IntentMeet, true},
		{"classroom", "What assignments are due in my classroom courses", IntentClassroom, true},
		{"search", "Look up the latest news about the election", IntentSearch, true},
		{"general offline", "Write a short poem about mountains", IntentGeneral, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifier.Classify(tc.text)
			if got.Intent != tc.wantIntent {
				t.Fatalf("unexpected intent: got %q want %q", got.Intent, tc.wantIntent)
			}
			if got.NeedsInternet != tc.needsInternet {
				t.Fatalf("unexpected needs_internet: got %v want %v", got.NeedsInternet, tc.needsInternet)
			}
		})
	}
}

func TestClassifyWordBoundaries(t *testing.T) {
	classifier := NewRuleClassifier()

	// "meeting" contains "meet" as a prefix but must not trigger the meet card.
	got := classifier.Classify("Schedule a team meeting for Friday")
	if got.Intent != IntentCalendar {
		t.Fatalf("unexpected intent: got %q want %q", got.Intent, IntentCalendar)
	}
}

func TestClassifyStrictOnlineKeywords(t *testing.T) {
	classifier := NewRuleClassifier()

	// General intent, but the weather keyword forces connectivity.
	got := classifier.Classify("Tell me about the weather patterns in my notes")
	if !got.NeedsInternet {
		t.Fatalf("expected strict online keyword to force needs_internet")
	}
}

func TestClassifyConfidence(t *testing.T) {
	classifier := NewRuleClassifier()

	matched := classifier.Classify("check my gmail inbox for unread email")
	if matched.Confidence < 0.6 {
		t.Fatalf("expected keyword hit confidence >= 0.6, got %f", matched.Confidence)
	}

	fallback := classifier.Classify("hello there")
	if fallback.Intent != IntentGeneral {
		t.Fatalf("unexpected fallback intent: %q", fallback.Intent)
	}
	if fallback.Confidence != 0.3 {
		t.Fatalf("unexpected fallback confidence: %f", fallback.Confidence)
	}

	empty := classifier.Classify("   ")
	if empty.Confidence != 0 || empty.Intent != IntentGeneral {
		t.Fatalf("unexpected result for empty input: %+v", empty)
	}
}
