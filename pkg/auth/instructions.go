package auth

import (
	"fmt"
	"io"
	"strings"
)

// ShowTokenGuide explains how to create a token mrsync can use
func ShowTokenGuide(w io.Writer, gitlabURL string) {
	base := strings.TrimRight(gitlabURL, "/")

	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w, "GITLAB ACCESS TOKEN")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "mrsync reads merge requests through the GitLab GraphQL API and needs a")
	fmt.Fprintln(w, "personal, group or project access token.")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  1. Open %s/-/user_settings/personal_access_tokens\n", base)
	fmt.Fprintln(w, "  2. Add a new token with the read_api scope")
	fmt.Fprintln(w, "  3. Pick an expiry date that matches how long the job will run")
	fmt.Fprintln(w, "  4. Copy the token (it starts with glpat-) and paste it below")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "The token is kept in the system keychain when available, otherwise in")
	fmt.Fprintln(w, "an encrypted file. MRSYNC_GITLAB_TOKEN overrides both.")
	fmt.Fprintln(w, strings.Repeat("=", 72))
	fmt.Fprintln(w)
}
