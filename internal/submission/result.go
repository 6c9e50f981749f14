package submission

import "net/url"

const defaultConfirmationPath = "/application-confirmation"

// Result is returned by a successful submission.
type Result struct {
	IdentityID    string `json:"identityId,omitempty"`
	ApplicationID string `json:"applicationId"`
	Redirect      string `json:"redirect"`
}

func confirmationRedirect(path, id string) string {
	if path == "" {
		path = defaultConfirmationPath
	}
	return path + "?id=" + url.QueryEscape(id)
}
