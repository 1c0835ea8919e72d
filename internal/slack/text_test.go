package slack

import "testing"

func TestEmojify_KnownShortcode(t *testing.T) {
	smile, ok := codeMap()[":smile:"]
	if !ok {
		t.Fatal("expected :smile: in code map")
	}
	got := Emojify("hello :smile: world")
	if got != "hello "+smile+" world" {
		t.Errorf("got %q", got)
	}
}

func TestEmojify_UnknownRemoved(t *testing.T) {
	got := Emojify("thanks :custom_party_parrot: for waiting")
	if got != "thanks for waiting" {
		t.Errorf("got %q", got)
	}
}

func TestEmojify_Whitespace(t *testing.T) {
	got := Emojify("  line one \n\n line   two  ")
	if got != "line one line two" {
		t.Errorf("got %q", got)
	}
}

func TestEmojify_PlainText(t *testing.T) {
	if got := Emojify("time is 10:30"); got != "time is 10:30" {
		t.Errorf("got %q", got)
	}
}

func TestStripMention(t *testing.T) {
	cases := []struct {
		text, bot, want string
	}{
		{"<@U0BOT> we fixed it", "U0BOT", "we fixed it"},
		{"<@U0BOT> ping <@U0BOT>", "U0BOT", "ping <@U0BOT>"},
		{"hi <@U0OTHER>", "U0BOT", "hi <@U0OTHER>"},
		{"  no bot configured ", "", "no bot configured"},
	}
	for _, tc := range cases {
		if got := StripMention(tc.text, tc.bot); got != tc.want {
			t.Errorf("StripMention(%q, %q) = %q, want %q", tc.text, tc.bot, got, tc.want)
		}
	}
}
