package relay

import (
	"fmt"
	"net/url"

	"github.com/user/supportrelay/internal/types"
)

// Identity of a relayed user message.
const (
	userUsername  = "User"
	userIconEmoji = ":person_with_crown:"
)

const consoleURL = "https://console.firebase.google.com/u/0/project/%s/firestore/databases/%s/data/~2Fusers~2F%s"

// threadOpener builds the first post of a user's thread. The project line and
// the console button are only present when projectID is set.
func threadOpener(channel, projectID, database, botID string, userID types.UserID) types.Post {
	var projectSection string
	if projectID != "" {
		projectSection = fmt.Sprintf("*Project:* `%s`\n", projectID)
	}
	instructions := "To respond, use this thread."
	if botID != "" {
		instructions = fmt.Sprintf("To respond, mention <@%s> in the thread.", botID)
	}

	post := types.Post{
		Channel:  channel,
		Text:     fmt.Sprintf("Support request from user `%s`", userID),
		Username: projectID,
		Detail:   fmt.Sprintf("%s*User:* `%s`\n\n%s", projectSection, userID, instructions),
	}
	if projectID != "" {
		post.Link = &types.Link{
			ActionID: "open_dashboard",
			Label:    "Open in Firebase 🔗",
			URL:      fmt.Sprintf(consoleURL, projectID, consoleDatabase(database), url.PathEscape(string(userID))),
		}
	}
	return post
}

func consoleDatabase(database string) string {
	if database == "" || database == "(default)" {
		return "-default-"
	}
	return database
}
