package cleanmeta

import "testing"

func TestCleanTitle(t *testing.T) {
	cleaner := NewCleaner()

	testCases := []struct {
		name    string
		input   string
		want    string
		changed bool
	}{
		{
			name:    "plain title untouched",
			input:   "Bohemian Rhapsody",
			want:    "Bohemian Rhapsody",
			changed: false,
		},
		{
			name:    "remaster suffix",
			input:   "Money (Remastered 2011)",
			want:    "Money",
			changed: true,
		},
		{
			name:    "radio edit brackets",
			input:   "One More Time [Radio Edit]",
			want:    "One More Time",
			changed: true,
		},
		{
			name:    "featured artist",
			input:   "Lose Yourself feat. Someone",
			want:    "Lose Yourself",
			changed: true,
		},
		{
			name:    "ft abbreviation",
			input:   "Night Call ft. Another",
			want:    "Night Call",
			changed: true,
		},
		{
			name:    "dash remaster",
			input:   "Breathe - 2011 Remastered Version",
			want:    "Breathe",
			changed: true,
		},
		{
			name:    "meaningful parenthetical kept",
			input:   "I Want You (She's So Heavy)",
			want:    "I Want You (She's So Heavy)",
			changed: false,
		},
		{
			name:    "unbalanced brackets untouched",
			input:   "Broken (title",
			want:    "Broken (title",
			changed: false,
		},
		{
			name:    "whitespace trimmed",
			input:   "  Echoes  ",
			want:    "Echoes",
			changed: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, changed := cleaner.CleanTitle(tc.input)
			if got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
			if changed != tc.changed {
				t.Errorf("Expected changed=%t, got %t", tc.changed, changed)
			}
		})
	}
}

func TestIsLikelyGuff(t *testing.T) {
	cleaner := NewCleaner()

	guffy := []string{"(Remastered 2011)", "[Radio Edit]", "(Live)", "(2019 Remaster)"}
	for _, s := range guffy {
		if !cleaner.isLikelyGuff(s) {
			t.Errorf("Expected %q to be guff", s)
		}
	}

	meaningful := []string{"(She's So Heavy)", "(Don't Fear) The Reaper"}
	for _, s := range meaningful {
		if cleaner.isLikelyGuff(s) {
			t.Errorf("Expected %q to be meaningful", s)
		}
	}
}
